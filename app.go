package main

import (
	"context"
	"log"
	"sync"
)

// App wires the services together and owns startup order and the
// shutdown sequence. The tray's Quit item and the signal handler both
// land in RequestShutdown.
type App struct {
	taskbar    *TaskbarService
	winKey     *WinKeyService
	shellWatch *ShellWatchService
	machine    *VisibilityMachine
	recovery   *RecoveryService

	shutdownOnce sync.Once
	done         chan struct{}
}

// NewApp builds the service graph over the provided OS-facing services.
// A stale taskbar handle nudges the recovery pass immediately instead
// of waiting out the next tick.
func NewApp(taskbar *TaskbarService, winKey *WinKeyService, shellWatch *ShellWatchService) *App {
	a := &App{
		taskbar:    taskbar,
		winKey:     winKey,
		shellWatch: shellWatch,
		machine:    NewVisibilityMachine(taskbar),
		recovery:   NewRecoveryService(taskbar),
		done:       make(chan struct{}),
	}
	taskbar.SetStaleNotify(a.recovery.Kick)
	return a
}

// Startup brings the agent up. The fatal preconditions come first, a
// resolvable taskbar and an installable key hook, before anything
// touches the screen, so a failed start leaves the desktop untouched.
// A missing shell hook only degrades to key-only reveal.
func (a *App) Startup(ctx context.Context) error {
	if err := a.taskbar.Acquire(); err != nil {
		return err
	}
	if err := a.winKey.Start(ctx, a.machine.HandleKey); err != nil {
		return err
	}
	a.machine.Start(ctx)
	if err := a.shellWatch.Start(ctx, a.machine.HandleOverlay, a.recovery.Kick); err != nil {
		log.Printf("shellwatch: continuing with key-only reveal: %v", err)
	}
	a.recovery.Start(ctx)
	return nil
}

// RequestShutdown runs the shutdown sequence exactly once: uninstall
// both signal sources, stop the machine (killing any pending hide
// deadline), stop the recovery pass, then hand the taskbar back to the
// shell. Safe to call from any goroutine, any number of times.
func (a *App) RequestShutdown() {
	a.shutdownOnce.Do(func() {
		log.Printf("app: shutdown requested")
		a.winKey.Stop()
		a.shellWatch.Stop()
		a.machine.Stop()
		a.recovery.Stop()
		a.taskbar.Release()
		close(a.done)
	})
}

// Done is closed once the shutdown sequence has completed.
func (a *App) Done() <-chan struct{} {
	return a.done
}
