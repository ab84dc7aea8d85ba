//go:build windows

package main

import (
	"syscall"
	"unsafe"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

const taskbarWindowClass = "Shell_TrayWnd"

const (
	abmSetState = 0x0000000A
	absAutoHide = 0x01
)

var (
	shell32DLL          = windows.NewLazySystemDLL("shell32.dll")
	procSHAppBarMessage = shell32DLL.NewProc("SHAppBarMessage")
	procIsWindow        = user32DLL.NewProc("IsWindow")
)

// appBarData mirrors APPBARDATA as ABM_SETSTATE wants it.
type appBarData struct {
	CbSize           uint32
	HWnd             win.HWND
	UCallbackMessage uint32
	UEdge            uint32
	Rc               win.RECT
	LParam           uintptr
}

// winTaskbarBackend drives the real shell taskbar: located by class
// name, shown without activation so reveals never steal focus, hidden
// outright, with the shell's own auto-hide flag toggled through the
// appbar channel.
type winTaskbarBackend struct{}

func newTaskbarBackend() taskbarBackend {
	return winTaskbarBackend{}
}

func (winTaskbarBackend) Locate() (uintptr, error) {
	hwnd := win.FindWindow(syscall.StringToUTF16Ptr(taskbarWindowClass), nil)
	if hwnd == 0 {
		return 0, ErrTaskbarNotFound
	}
	return uintptr(hwnd), nil
}

func (winTaskbarBackend) Valid(handle uintptr) bool {
	ret, _, _ := procIsWindow.Call(handle)
	return ret != 0
}

func (b winTaskbarBackend) SetVisible(handle uintptr, visible bool) error {
	if !b.Valid(handle) {
		return errStaleHandle
	}
	cmd := int32(win.SW_HIDE)
	if visible {
		cmd = win.SW_SHOWNOACTIVATE
	}
	win.ShowWindow(win.HWND(handle), cmd)
	return nil
}

func (b winTaskbarBackend) SetAutoHide(handle uintptr, enabled bool) error {
	if !b.Valid(handle) {
		return errStaleHandle
	}
	abd := appBarData{
		CbSize: uint32(unsafe.Sizeof(appBarData{})),
		HWnd:   win.HWND(handle),
	}
	if enabled {
		abd.LParam = absAutoHide
	}
	procSHAppBarMessage.Call(abmSetState, uintptr(unsafe.Pointer(&abd)))
	return nil
}
