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

// ErrHookInstall is returned when the global key observation cannot be
// installed. Without it the agent has no reveal trigger, so callers
// treat it as fatal.
var ErrHookInstall = errors.New("winkey: failed to install keyboard hook")

// KeyEvent is one observed transition of the trigger key. Either OS key
// (left or right) counts as the trigger key.
type KeyEvent struct {
	Down bool
}

// keyHookBackend abstracts the low-level keyboard observation so tests
// can use a mock. The real backend watches system-wide and never
// consumes input.
type keyHookBackend interface {
	Install() error
	Uninstall() error
	Events() <-chan KeyEvent
}

// WinKeyService watches the OS key system-wide and forwards its down/up
// transitions. It observes only; every keystroke continues to the rest
// of the system untouched.
type WinKeyService struct {
	mu        sync.Mutex
	backend   keyHookBackend
	installed atomic.Bool
	cancel    context.CancelFunc
	doneCh    chan struct{}
}

// NewWinKeyService creates a WinKeyService backed by the platform hook.
func NewWinKeyService() *WinKeyService {
	return &WinKeyService{backend: newKeyHookBackend()}
}

// newWinKeyServiceWithBackend creates a WinKeyService with a custom
// backend (tests).
func newWinKeyServiceWithBackend(b keyHookBackend) *WinKeyService {
	return &WinKeyService{backend: b}
}

// Start installs the hook and launches a goroutine forwarding key
// transitions to onEvent until ctx is cancelled or Stop is called.
func (s *WinKeyService) Start(ctx context.Context, onEvent func(KeyEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Install(); err != nil {
		return fmt.Errorf("%w: %v", ErrHookInstall, err)
	}
	s.installed.Store(true)
	log.Printf("winkey: hook installed")

	listenCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	doneCh := make(chan struct{})
	s.doneCh = doneCh
	events := s.backend.Events()
	go func() {
		defer close(doneCh)
		for {
			select {
			case <-listenCtx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

// Stop uninstalls the hook and waits briefly for the forwarding
// goroutine to exit, so no callback is in flight when teardown
// continues.
func (s *WinKeyService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	doneCh := s.doneCh
	s.cancel = nil
	s.mu.Unlock()

	if s.installed.CompareAndSwap(true, false) {
		if err := s.backend.Uninstall(); err != nil {
			log.Printf("winkey: uninstall: %v", err)
		} else {
			log.Printf("winkey: hook removed")
		}
	}
	if cancel != nil {
		cancel()
	}
	if doneCh != nil {
		select {
		case <-doneCh:
		case <-time.After(200 * time.Millisecond):
			log.Printf("winkey: Stop() timed out waiting for listener exit")
		}
	}
}

// Installed reports whether the hook is currently installed.
func (s *WinKeyService) Installed() bool {
	return s.installed.Load()
}
