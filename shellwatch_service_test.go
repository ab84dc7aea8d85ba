package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockShellHookBackend feeds synthetic foreground changes to the
// service.
type mockShellHookBackend struct {
	installErr  error
	uninstalled bool
	events      chan ForegroundEvent
	recreated   chan struct{}
}

func newMockShellHook() *mockShellHookBackend {
	return &mockShellHookBackend{
		events:    make(chan ForegroundEvent, 16),
		recreated: make(chan struct{}, 1),
	}
}

func (m *mockShellHookBackend) Install() error {
	return m.installErr
}

func (m *mockShellHookBackend) Uninstall() error {
	m.uninstalled = true
	return nil
}

func (m *mockShellHookBackend) Events() <-chan ForegroundEvent {
	return m.events
}

func (m *mockShellHookBackend) TaskbarCreated() <-chan struct{} {
	return m.recreated
}

func (m *mockShellHookBackend) simulateForeground(window uintptr, class string) {
	m.events <- ForegroundEvent{Window: window, Class: class}
}

func (m *mockShellHookBackend) simulateTaskbarCreated() {
	m.recreated <- struct{}{}
}

// startWatch starts the service with a buffered collector for the
// derived overlay transitions.
func startWatch(t *testing.T, mock *mockShellHookBackend) (*ShellWatchService, chan OverlayEvent) {
	t.Helper()
	svc := newShellWatchServiceWithBackend(mock)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	overlays := make(chan OverlayEvent, 16)
	if err := svc.Start(ctx, func(ev OverlayEvent) { overlays <- ev }, nil); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, overlays
}

func nextOverlay(t *testing.T, ch chan OverlayEvent) OverlayEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for an overlay event")
		return OverlayEvent{}
	}
}

func expectNoOverlay(t *testing.T, ch chan OverlayEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected overlay event: %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

// ── Tests ────────────────────────────────────────────────

func TestShellWatchServiceActivation(t *testing.T) {
	mock := newMockShellHook()
	_, overlays := startWatch(t, mock)

	mock.simulateForeground(0x10, "Windows.UI.Core.CoreWindow")

	ev := nextOverlay(t, overlays)
	if !ev.Activated {
		t.Error("Activated = false; want true")
	}
	if ev.Window != 0x10 {
		t.Errorf("Window = %#x; want 0x10", ev.Window)
	}
	if ev.Class != "Windows.UI.Core.CoreWindow" {
		t.Errorf("Class = %q; want %q", ev.Class, "Windows.UI.Core.CoreWindow")
	}
}

func TestShellWatchServiceIgnoresRegularWindows(t *testing.T) {
	mock := newMockShellHook()
	_, overlays := startWatch(t, mock)

	mock.simulateForeground(0x20, "Chrome_WidgetWin_1")
	expectNoOverlay(t, overlays)
}

func TestShellWatchServiceDeactivationOnFocusLoss(t *testing.T) {
	mock := newMockShellHook()
	_, overlays := startWatch(t, mock)

	mock.simulateForeground(0x10, "Windows.UI.Core.CoreWindow")
	mock.simulateForeground(0x20, "Chrome_WidgetWin_1")

	if ev := nextOverlay(t, overlays); !ev.Activated {
		t.Errorf("first event Activated = false; want true")
	}
	ev := nextOverlay(t, overlays)
	if ev.Activated {
		t.Error("second event Activated = true; want false")
	}
	if ev.Window != 0x10 {
		t.Errorf("deactivated Window = %#x; want 0x10", ev.Window)
	}
}

func TestShellWatchServiceNullForegroundDeactivates(t *testing.T) {
	mock := newMockShellHook()
	_, overlays := startWatch(t, mock)

	// Some activations arrive with no window at all, so the class reads
	// as empty. With nothing active that is noise; with an overlay up it
	// means the overlay lost the foreground.
	mock.simulateForeground(0, "")
	expectNoOverlay(t, overlays)

	mock.simulateForeground(0x10, "Windows.UI.Core.CoreWindow")
	if ev := nextOverlay(t, overlays); !ev.Activated {
		t.Errorf("first event Activated = false; want true")
	}

	mock.simulateForeground(0, "")
	ev := nextOverlay(t, overlays)
	if ev.Activated {
		t.Error("second event Activated = true; want false")
	}
	if ev.Window != 0x10 {
		t.Errorf("deactivated Window = %#x; want 0x10", ev.Window)
	}
}

func TestShellWatchServiceHandoffKeepsOneActive(t *testing.T) {
	mock := newMockShellHook()
	_, overlays := startWatch(t, mock)

	// Focus moves straight from one overlay to another. The new
	// activation must arrive before the old deactivation so the overlay
	// set never looks empty in between.
	mock.simulateForeground(0x10, "Windows.UI.Core.CoreWindow")
	mock.simulateForeground(0x20, "Shell_TrayWnd")

	first := nextOverlay(t, overlays)
	second := nextOverlay(t, overlays)
	third := nextOverlay(t, overlays)

	if !first.Activated || first.Window != 0x10 {
		t.Errorf("event 1 = %+v; want activation of 0x10", first)
	}
	if !second.Activated || second.Window != 0x20 {
		t.Errorf("event 2 = %+v; want activation of 0x20", second)
	}
	if third.Activated || third.Window != 0x10 {
		t.Errorf("event 3 = %+v; want deactivation of 0x10", third)
	}
}

func TestShellWatchServiceDuplicateForeground(t *testing.T) {
	mock := newMockShellHook()
	_, overlays := startWatch(t, mock)

	mock.simulateForeground(0x10, "Windows.UI.Core.CoreWindow")
	mock.simulateForeground(0x10, "Windows.UI.Core.CoreWindow")

	nextOverlay(t, overlays)
	expectNoOverlay(t, overlays)
}

func TestShellWatchServiceInstallError(t *testing.T) {
	mock := newMockShellHook()
	mock.installErr = errors.New("RegisterShellHookWindow failed")
	svc := newShellWatchServiceWithBackend(mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := svc.Start(ctx, func(OverlayEvent) {}, nil)
	if err == nil {
		t.Fatal("Start() expected error; got nil")
	}
	if !errors.Is(err, ErrShellHookUnavailable) {
		t.Errorf("Start() error = %v; want ErrShellHookUnavailable", err)
	}
	if svc.Installed() {
		t.Error("Installed() = true after failed install; want false")
	}
}

func TestShellWatchServiceTaskbarCreatedRelay(t *testing.T) {
	mock := newMockShellHook()
	svc := newShellWatchServiceWithBackend(mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kicked := make(chan struct{}, 1)
	err := svc.Start(ctx, func(OverlayEvent) {}, func() { kicked <- struct{}{} })
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer svc.Stop()

	mock.simulateTaskbarCreated()
	select {
	case <-kicked:
	case <-time.After(time.Second):
		t.Fatal("taskbar-created announcement not relayed")
	}
}

func TestShellWatchServiceStopUninstalls(t *testing.T) {
	mock := newMockShellHook()
	svc, _ := startWatch(t, mock)

	svc.Stop()
	if svc.Installed() {
		t.Error("Installed() = true after Stop(); want false")
	}
	if !mock.uninstalled {
		t.Error("backend Uninstall() not called by Stop()")
	}
}
