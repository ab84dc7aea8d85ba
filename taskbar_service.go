package main

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// ErrTaskbarNotFound is returned when no taskbar window exists to
// manage. At startup this is fatal; during recovery it just means the
// shell has not finished restarting yet.
var ErrTaskbarNotFound = errors.New("taskbar: no taskbar window found")

// errStaleHandle marks a visibility call against a window that no longer
// exists (the shell restarted). Swallowed at the call site; the recovery
// pass re-resolves the handle.
var errStaleHandle = errors.New("taskbar: stale window handle")

// taskbarBackend abstracts the OS shell so tests can run against a fake
// taskbar.
type taskbarBackend interface {
	// Locate resolves the primary taskbar window.
	Locate() (uintptr, error)
	// Valid reports whether the handle still refers to a live window.
	Valid(handle uintptr) bool
	// SetVisible shows or hides the window. Returns errStaleHandle if
	// the window is gone.
	SetVisible(handle uintptr, visible bool) error
	// SetAutoHide flips the shell's own auto-hide attribute for the bar.
	SetAutoHide(handle uintptr, enabled bool) error
}

// TaskbarService owns the taskbar handle and the two idempotent
// visibility commands. Hide collapses the bar and enables the shell's
// auto-hide so the shell keeps it collapsed on its own; Show reveals it
// without activating it and disables auto-hide so it stays on screen.
// Commands are fire-and-forget: a stale handle is recorded for the
// recovery pass instead of surfacing to the caller.
type TaskbarService struct {
	backend taskbarBackend

	mu      sync.Mutex
	handle  uintptr
	onStale func()

	wantVisible atomic.Bool
	stale       atomic.Bool
}

// NewTaskbarService creates a TaskbarService over the real shell.
func NewTaskbarService() *TaskbarService {
	return &TaskbarService{backend: newTaskbarBackend()}
}

// newTaskbarServiceWithBackend creates a TaskbarService with a custom
// backend (tests).
func newTaskbarServiceWithBackend(b taskbarBackend) *TaskbarService {
	return &TaskbarService{backend: b}
}

// SetStaleNotify registers a callback invoked when a command first hits
// a stale handle. Wired to the recovery service before startup.
func (t *TaskbarService) SetStaleNotify(fn func()) {
	t.mu.Lock()
	t.onStale = fn
	t.mu.Unlock()
}

// Acquire resolves the taskbar window. Called once at startup; a missing
// taskbar is fatal to the program's purpose.
func (t *TaskbarService) Acquire() error {
	h, err := t.backend.Locate()
	if err != nil {
		return fmt.Errorf("locating taskbar: %w", err)
	}
	t.mu.Lock()
	t.handle = h
	t.mu.Unlock()
	t.stale.Store(false)
	log.Printf("taskbar: acquired handle %#x", h)
	return nil
}

// Hide collapses the taskbar. Idempotent.
func (t *TaskbarService) Hide() {
	t.wantVisible.Store(false)
	t.apply()
}

// Show reveals the taskbar without stealing focus. Idempotent.
func (t *TaskbarService) Show() {
	t.wantVisible.Store(true)
	t.apply()
}

// Reassert re-applies the last commanded state. The recovery pass calls
// it after re-resolving the handle and periodically as a guard against
// the shell undoing our state behind our back.
func (t *TaskbarService) Reassert() {
	t.apply()
}

// apply pushes the desired state at the shell. The lock is held across
// the desired-state read and both backend calls so concurrent appliers
// (machine commands, recovery reasserts) serialize and the last one to
// run always delivers the latest desired state. Both underlying
// operations are idempotent, so repeated applies are harmless.
func (t *TaskbarService) apply() {
	t.mu.Lock()
	h := t.handle
	if h == 0 {
		t.mu.Unlock()
		return
	}
	visible := t.wantVisible.Load()
	err := t.backend.SetVisible(h, visible)
	if err == nil {
		err = t.backend.SetAutoHide(h, !visible)
	}
	t.mu.Unlock()
	if err != nil {
		t.reportStale(err)
	}
}

func (t *TaskbarService) reportStale(err error) {
	if !errors.Is(err, errStaleHandle) {
		log.Printf("taskbar: visibility call failed: %v", err)
		return
	}
	if t.stale.CompareAndSwap(false, true) {
		log.Printf("taskbar: handle went stale, awaiting recovery")
		t.mu.Lock()
		fn := t.onStale
		t.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

// Stale reports whether a command failed against a dead handle since the
// last successful resolve.
func (t *TaskbarService) Stale() bool {
	return t.stale.Load()
}

// Healthy reports whether the stored handle still refers to a live
// window.
func (t *TaskbarService) Healthy() bool {
	t.mu.Lock()
	h := t.handle
	t.mu.Unlock()
	return h != 0 && t.backend.Valid(h)
}

// Reacquire re-resolves the taskbar after a shell restart and re-asserts
// the desired state against the fresh handle.
func (t *TaskbarService) Reacquire() error {
	h, err := t.backend.Locate()
	if err != nil {
		return fmt.Errorf("re-locating taskbar: %w", err)
	}
	t.mu.Lock()
	t.handle = h
	t.mu.Unlock()
	t.stale.Store(false)
	log.Printf("taskbar: reacquired handle %#x", h)
	t.apply()
	return nil
}

// Release hands the taskbar back to the shell: visible, auto-hide off.
// The bootstrap calls it once after the state machine has stopped; the
// machine itself never does.
func (t *TaskbarService) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.handle
	if h == 0 {
		return
	}
	if err := t.backend.SetVisible(h, true); err != nil {
		log.Printf("taskbar: release: %v", err)
		return
	}
	if err := t.backend.SetAutoHide(h, false); err != nil {
		log.Printf("taskbar: release: %v", err)
	}
	log.Printf("taskbar: released")
}
