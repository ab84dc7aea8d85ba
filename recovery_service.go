package main

import (
	"context"
	"log"
	"sync"
	"time"
)

// defaultRecoveryInterval is the cadence of the recovery pass. Shell
// restarts are rare and not latency-sensitive; the TaskbarCreated kick
// covers the fast path when the shell hook is available.
const defaultRecoveryInterval = 3 * time.Second

// taskbarRecoverer is the slice of TaskbarService the recovery pass
// needs.
type taskbarRecoverer interface {
	Stale() bool
	Healthy() bool
	Reacquire() error
	Reassert()
}

// RecoveryService re-resolves the taskbar handle after the shell
// restarts and re-asserts the intended visibility on a slow cadence, so
// the agent survives explorer crashes and updates without restarting.
type RecoveryService struct {
	taskbar  taskbarRecoverer
	interval time.Duration
	kick     chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewRecoveryService creates a RecoveryService over the given taskbar
// with the default cadence.
func NewRecoveryService(taskbar taskbarRecoverer) *RecoveryService {
	return newRecoveryServiceWithInterval(taskbar, defaultRecoveryInterval)
}

// newRecoveryServiceWithInterval lets tests shrink the cadence.
func newRecoveryServiceWithInterval(taskbar taskbarRecoverer, interval time.Duration) *RecoveryService {
	return &RecoveryService{
		taskbar:  taskbar,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Start launches the periodic pass.
func (r *RecoveryService) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	doneCh := make(chan struct{})
	r.doneCh = doneCh
	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.pass()
			case <-r.kick:
				r.pass()
			}
		}
	}()
}

// Kick requests an immediate pass, e.g. when the shell announces a new
// taskbar or a command just hit a stale handle. Non-blocking; one
// pending kick is enough.
func (r *RecoveryService) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// pass re-resolves the handle if it is stale or dead, otherwise
// re-asserts the desired state against the current one.
func (r *RecoveryService) pass() {
	if r.taskbar.Stale() || !r.taskbar.Healthy() {
		if err := r.taskbar.Reacquire(); err != nil {
			log.Printf("recovery: %v (will retry)", err)
		}
		return // Reacquire re-asserts on success
	}
	r.taskbar.Reassert()
}

// Stop ends the periodic pass and waits briefly for it to exit.
func (r *RecoveryService) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	doneCh := r.doneCh
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if doneCh != nil {
		select {
		case <-doneCh:
		case <-time.After(200 * time.Millisecond):
			log.Printf("recovery: Stop() timed out waiting for loop exit")
		}
	}
}
