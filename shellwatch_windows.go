//go:build windows

package main

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"
)

// Shell hook codes for foreground activation. The RUDEAPP variant is the
// fullscreen/rude flavor of the same notification.
const (
	hshellWindowActivated  = 4
	hshellRudeAppActivated = 0x8004
)

const shellWatchWindowClass = "TaskbarHiderShellHook"

var (
	procRegisterShellHookWindow   = user32DLL.NewProc("RegisterShellHookWindow")
	procDeregisterShellHookWindow = user32DLL.NewProc("DeregisterShellHookWindow")
	procGetClassNameW             = user32DLL.NewProc("GetClassNameW")
)

// winShellHookBackend owns a hidden window on a dedicated OS-locked
// thread, registered as a shell hook window. Its window proc receives
// the SHELLHOOK activation stream plus the shell's TaskbarCreated
// broadcast after an explorer restart.
type winShellHookBackend struct {
	events    chan ForegroundEvent
	recreated chan struct{}

	hwnd           win.HWND
	shellHookMsg   uint32
	taskbarCreated uint32
	loopDone       chan struct{}
	closeOnce      sync.Once
	callback       uintptr
}

func newShellHookBackend() shellHookBackend {
	return &winShellHookBackend{
		events:    make(chan ForegroundEvent, 16),
		recreated: make(chan struct{}, 1),
		loopDone:  make(chan struct{}),
	}
}

func (b *winShellHookBackend) Install() error {
	errCh := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		b.callback = syscall.NewCallback(b.wndProc)
		className, _ := syscall.UTF16PtrFromString(shellWatchWindowClass)
		hInst := win.GetModuleHandle(nil)

		// Resolve the registered message IDs before the window exists so
		// the window proc can match on them from its first message.
		b.shellHookMsg = win.RegisterWindowMessage(syscall.StringToUTF16Ptr("SHELLHOOK"))
		b.taskbarCreated = win.RegisterWindowMessage(syscall.StringToUTF16Ptr("TaskbarCreated"))

		var wc win.WNDCLASSEX
		wc.CbSize = uint32(unsafe.Sizeof(wc))
		wc.LpfnWndProc = b.callback
		wc.HInstance = hInst
		wc.LpszClassName = className
		if win.RegisterClassEx(&wc) == 0 {
			errCh <- fmt.Errorf("RegisterClassEx(%s) failed", shellWatchWindowClass)
			return
		}

		hwnd := win.CreateWindowEx(0, className, className, 0, 0, 0, 0, 0, 0, 0, hInst, nil)
		if hwnd == 0 {
			errCh <- fmt.Errorf("CreateWindowEx(%s) failed", shellWatchWindowClass)
			return
		}
		b.hwnd = hwnd

		if ret, _, callErr := procRegisterShellHookWindow.Call(uintptr(hwnd)); ret == 0 {
			win.DestroyWindow(hwnd)
			errCh <- fmt.Errorf("RegisterShellHookWindow: %v", callErr)
			return
		}
		errCh <- nil

		var msg win.MSG
		for win.GetMessage(&msg, 0, 0, 0) > 0 {
			win.TranslateMessage(&msg)
			win.DispatchMessage(&msg)
		}
		b.closeOnce.Do(func() { close(b.events) })
		close(b.loopDone)
	}()
	return <-errCh
}

// wndProc runs on the backend thread. SHELLHOOK activations carry the
// activated window in lParam; it is classified by window class name
// right here (a local user32 call, cheap) and relayed without blocking.
func (b *winShellHookBackend) wndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	switch msg {
	case win.WM_CLOSE:
		procDeregisterShellHookWindow.Call(uintptr(hwnd))
		win.DestroyWindow(hwnd)
		return 0
	case win.WM_DESTROY:
		win.PostQuitMessage(0)
		return 0
	case b.shellHookMsg:
		if wParam == hshellWindowActivated || wParam == hshellRudeAppActivated {
			// A null window still matters: its class reads as "", which
			// the service takes as the current overlay losing the
			// foreground.
			b.post(ForegroundEvent{Window: lParam, Class: windowClassName(win.HWND(lParam))})
		}
		return 0
	case b.taskbarCreated:
		select {
		case b.recreated <- struct{}{}:
		default:
		}
		return 0
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}

func (b *winShellHookBackend) post(ev ForegroundEvent) {
	select {
	case b.events <- ev:
	default:
		// The service is behind; a lost activation only delays a reveal
		// until the next one.
	}
}

func (b *winShellHookBackend) Uninstall() error {
	if b.hwnd == 0 {
		return nil
	}
	win.PostMessage(b.hwnd, win.WM_CLOSE, 0, 0)
	select {
	case <-b.loopDone:
	case <-time.After(time.Second):
		log.Printf("shellwatch: hook window thread did not exit in time")
	}
	return nil
}

func (b *winShellHookBackend) Events() <-chan ForegroundEvent {
	return b.events
}

func (b *winShellHookBackend) TaskbarCreated() <-chan struct{} {
	return b.recreated
}

// windowClassName returns the class of hwnd, or "" if it cannot be read.
func windowClassName(hwnd win.HWND) string {
	var buf [256]uint16
	n, _, _ := procGetClassNameW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf[:n])
}
