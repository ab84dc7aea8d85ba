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
	"golang.org/x/sys/windows"
)

// Virtual-key codes for the left and right OS keys. Either one is the
// trigger key.
const (
	vkLWin = 0x5B
	vkRWin = 0x5C
)

const whKeyboardLL = 13

// kbdllHookStruct mirrors KBDLLHOOKSTRUCT.
type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

var (
	user32DLL               = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookExW   = user32DLL.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32DLL.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32DLL.NewProc("CallNextHookEx")
	procPostThreadMessageW  = user32DLL.NewProc("PostThreadMessageW")
)

// winKeyHookBackend installs a low-level keyboard hook on a dedicated
// OS-locked thread that pumps messages for it. The hook callback filters
// for the OS keys, posts their transitions to the relay channel without
// blocking, and always forwards the event down the hook chain. Input is
// observed, never consumed.
type winKeyHookBackend struct {
	events    chan KeyEvent
	hook      uintptr
	threadID  uint32
	loopDone  chan struct{}
	closeOnce sync.Once
	// Keeps the callback referenced for the life of the backend.
	callback uintptr
}

func newKeyHookBackend() keyHookBackend {
	return &winKeyHookBackend{
		events:   make(chan KeyEvent, 8),
		loopDone: make(chan struct{}),
	}
}

func (b *winKeyHookBackend) Install() error {
	errCh := make(chan error, 1)
	go func() {
		// Low-level hooks are delivered through the installing thread's
		// message loop, so the hook and the pump share one locked thread.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		b.callback = syscall.NewCallback(b.hookProc)
		hook, _, callErr := procSetWindowsHookExW.Call(whKeyboardLL, b.callback, 0, 0)
		if hook == 0 {
			errCh <- fmt.Errorf("SetWindowsHookExW: %v", callErr)
			return
		}
		b.hook = hook
		b.threadID = windows.GetCurrentThreadId()
		errCh <- nil

		var msg win.MSG
		for win.GetMessage(&msg, 0, 0, 0) > 0 {
			win.TranslateMessage(&msg)
			win.DispatchMessage(&msg)
		}
		procUnhookWindowsHookEx.Call(b.hook)
		b.closeOnce.Do(func() { close(b.events) })
		close(b.loopDone)
	}()
	return <-errCh
}

// hookProc runs on the hook thread for every keyboard transition in the
// system. It must stay fast: classify, post without blocking, forward.
func (b *winKeyHookBackend) hookProc(code int, wParam, lParam uintptr) uintptr {
	if code >= 0 {
		kb := (*kbdllHookStruct)(unsafe.Pointer(lParam))
		if kb.VkCode == vkLWin || kb.VkCode == vkRWin {
			switch wParam {
			case win.WM_KEYDOWN, win.WM_SYSKEYDOWN:
				b.post(KeyEvent{Down: true})
			case win.WM_KEYUP, win.WM_SYSKEYUP:
				b.post(KeyEvent{Down: false})
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wParam, lParam)
	return ret
}

func (b *winKeyHookBackend) post(ev KeyEvent) {
	select {
	case b.events <- ev:
	default:
		// Relay full; drop rather than stall the system-wide input chain.
	}
}

func (b *winKeyHookBackend) Uninstall() error {
	if b.threadID == 0 {
		return nil
	}
	ret, _, callErr := procPostThreadMessageW.Call(uintptr(b.threadID), win.WM_QUIT, 0, 0)
	if ret == 0 {
		return fmt.Errorf("PostThreadMessageW: %v", callErr)
	}
	select {
	case <-b.loopDone:
	case <-time.After(time.Second):
		log.Printf("winkey: hook thread did not exit in time")
	}
	return nil
}

func (b *winKeyHookBackend) Events() <-chan KeyEvent {
	return b.events
}
