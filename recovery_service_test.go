package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeRecoverer counts recovery actions against a settable health
// state.
type fakeRecoverer struct {
	mu           sync.Mutex
	stale        bool
	healthy      bool
	reacquireErr error
	reacquires   int
	reasserts    int
}

func (f *fakeRecoverer) Stale() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale
}

func (f *fakeRecoverer) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeRecoverer) Reacquire() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reacquires++
	if f.reacquireErr != nil {
		return f.reacquireErr
	}
	f.stale = false
	f.healthy = true
	return nil
}

func (f *fakeRecoverer) Reassert() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasserts++
}

func (f *fakeRecoverer) counts() (reacquires, reasserts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reacquires, f.reasserts
}

// ── Tests ────────────────────────────────────────────────

func TestRecoveryServiceReassertsOnCadence(t *testing.T) {
	fake := &fakeRecoverer{healthy: true}
	svc := newRecoveryServiceWithInterval(fake, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	waitUntil(t, func() bool { _, n := fake.counts(); return n >= 2 },
		func() string { return "fewer than 2 reasserts" })
	if n, _ := fake.counts(); n != 0 {
		t.Errorf("reacquires = %d while healthy; want 0", n)
	}
}

func TestRecoveryServiceReacquiresStaleHandle(t *testing.T) {
	fake := &fakeRecoverer{stale: true, healthy: true}
	svc := newRecoveryServiceWithInterval(fake, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	waitUntil(t, func() bool { n, _ := fake.counts(); return n >= 1 },
		func() string { return "no reacquire for a stale handle" })
	waitUntil(t, func() bool { return !fake.Stale() },
		func() string { return "stale flag not cleared" })
	// With the handle fresh again the passes go back to reasserting.
	waitUntil(t, func() bool { _, n := fake.counts(); return n >= 1 },
		func() string { return "no reassert after reacquire" })
}

func TestRecoveryServiceReacquiresDeadHandle(t *testing.T) {
	fake := &fakeRecoverer{healthy: false}
	svc := newRecoveryServiceWithInterval(fake, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	waitUntil(t, func() bool { n, _ := fake.counts(); return n >= 1 },
		func() string { return "no reacquire for a dead handle" })
}

func TestRecoveryServiceKickRunsImmediately(t *testing.T) {
	fake := &fakeRecoverer{healthy: true}
	svc := newRecoveryServiceWithInterval(fake, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Kick()
	waitUntil(t, func() bool { _, n := fake.counts(); return n >= 1 },
		func() string { return "kick did not trigger a pass" })
}

func TestRecoveryServiceRetriesAfterFailure(t *testing.T) {
	fake := &fakeRecoverer{stale: true, healthy: true, reacquireErr: errors.New("no taskbar window yet")}
	svc := newRecoveryServiceWithInterval(fake, 15*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	// The shell may take a while to come back; the pass must keep
	// retrying instead of giving up after the first failure.
	waitUntil(t, func() bool { n, _ := fake.counts(); return n >= 3 },
		func() string { n, _ := fake.counts(); return fmt.Sprintf("reacquires = %d; want at least 3", n) })
}
