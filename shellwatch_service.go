package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrShellHookUnavailable is returned when shell activation
// notifications cannot be registered. Degraded mode: key-driven reveal
// still works, so callers log and carry on.
var ErrShellHookUnavailable = errors.New("shellwatch: shell hook unavailable")

// overlayClasses are the window classes of shell overlay surfaces that
// should keep the taskbar revealed while they hold the foreground.
var overlayClasses = map[string]struct{}{
	"Windows.UI.Core.CoreWindow":          {},
	"Shell_TrayWnd":                       {},
	"Shell_SecondaryTrayWnd":              {},
	"TopLevelWindowForOverflowXamlIsland": {},
	"XamlExplorerHostIslandWindow":        {},
}

// ForegroundEvent is one raw foreground change as the shell reports it:
// window identity plus class name. The backend reports every change;
// classification happens in the service.
type ForegroundEvent struct {
	Window uintptr
	Class  string
}

// shellHookBackend abstracts the shell notification channel so tests can
// feed synthetic foreground changes.
type shellHookBackend interface {
	Install() error
	Uninstall() error
	Events() <-chan ForegroundEvent
	// TaskbarCreated signals the shell announcing a fresh taskbar
	// (explorer restarted).
	TaskbarCreated() <-chan struct{}
}

// ShellWatchService turns the shell's foreground-change stream into
// overlay activated/deactivated pairs for the recognized overlay
// classes, and relays the shell's taskbar-recreated announcement.
//
// The shell only ever says "this window is now foreground", so the
// transitions are derived here. When focus moves from one recognized
// overlay straight to another, the new overlay's activation is emitted
// before the old one's deactivation, so at least one overlay is active
// across the handoff and the machine never sees a false idle instant.
type ShellWatchService struct {
	mu        sync.Mutex
	backend   shellHookBackend
	installed atomic.Bool
	cancel    context.CancelFunc
	doneCh    chan struct{}
}

// NewShellWatchService creates a ShellWatchService backed by the
// platform shell hook.
func NewShellWatchService() *ShellWatchService {
	return &ShellWatchService{backend: newShellHookBackend()}
}

// newShellWatchServiceWithBackend creates a ShellWatchService with a
// custom backend (tests).
func newShellWatchServiceWithBackend(b shellHookBackend) *ShellWatchService {
	return &ShellWatchService{backend: b}
}

// Start registers for shell notifications and launches the translating
// goroutine. onOverlay receives derived overlay transitions;
// onTaskbarCreated fires when the shell announces a new taskbar window.
// A registration failure is returned for the caller to treat as
// degraded, not fatal.
func (s *ShellWatchService) Start(ctx context.Context, onOverlay func(OverlayEvent), onTaskbarCreated func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Install(); err != nil {
		return fmt.Errorf("%w: %v", ErrShellHookUnavailable, err)
	}
	s.installed.Store(true)
	log.Printf("shellwatch: shell hook registered")

	listenCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	doneCh := make(chan struct{})
	s.doneCh = doneCh
	events := s.backend.Events()
	recreated := s.backend.TaskbarCreated()
	go func() {
		defer close(doneCh)
		// The recognized overlay currently holding the foreground, if
		// any. Owned by this goroutine.
		var active *ForegroundEvent
		for {
			select {
			case <-listenCtx.Done():
				return
			case _, ok := <-recreated:
				if !ok {
					return
				}
				log.Printf("shellwatch: shell announced a new taskbar")
				if onTaskbarCreated != nil {
					onTaskbarCreated()
				}
			case ev, ok := <-events:
				if !ok {
					return
				}
				_, recognized := overlayClasses[ev.Class]
				switch {
				case recognized && active == nil:
					onOverlay(OverlayEvent{Activated: true, Window: ev.Window, Class: ev.Class})
					cur := ev
					active = &cur
				case recognized && active.Window != ev.Window:
					// Overlay-to-overlay handoff: activate the new one
					// first so the overlay set never empties in between.
					onOverlay(OverlayEvent{Activated: true, Window: ev.Window, Class: ev.Class})
					onOverlay(OverlayEvent{Activated: false, Window: active.Window, Class: active.Class})
					cur := ev
					active = &cur
				case !recognized && active != nil:
					onOverlay(OverlayEvent{Activated: false, Window: active.Window, Class: active.Class})
					active = nil
				}
			}
		}
	}()
	return nil
}

// Stop deregisters the shell hook and waits briefly for the translating
// goroutine to exit.
func (s *ShellWatchService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	doneCh := s.doneCh
	s.cancel = nil
	s.mu.Unlock()

	if s.installed.CompareAndSwap(true, false) {
		if err := s.backend.Uninstall(); err != nil {
			log.Printf("shellwatch: uninstall: %v", err)
		} else {
			log.Printf("shellwatch: shell hook removed")
		}
	}
	if cancel != nil {
		cancel()
	}
	if doneCh != nil {
		select {
		case <-doneCh:
		case <-time.After(200 * time.Millisecond):
			log.Printf("shellwatch: Stop() timed out waiting for listener exit")
		}
	}
}

// Installed reports whether shell notifications are currently
// registered.
func (s *ShellWatchService) Installed() bool {
	return s.installed.Load()
}
