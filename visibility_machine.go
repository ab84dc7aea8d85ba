package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bep/debounce"
)

// defaultHideDelay is how long the taskbar stays visible after the last
// reveal condition clears. It absorbs the race between a key release and
// the shell opening its own UI in response to that same key.
const defaultHideDelay = 400 * time.Millisecond

// visibilityState is the machine's notion of the taskbar.
type visibilityState int

const (
	stateHidden      visibilityState = iota
	stateRevealed                    // physically shown
	statePendingHide                 // physically shown, hide deadline armed
)

func (s visibilityState) String() string {
	switch s {
	case stateHidden:
		return "hidden"
	case stateRevealed:
		return "revealed"
	case statePendingHide:
		return "pending-hide"
	default:
		return "unknown"
	}
}

// taskbarCommander is the slice of TaskbarService the machine drives.
type taskbarCommander interface {
	Show()
	Hide()
}

// OverlayEvent reports a recognized system overlay (start menu, task
// switcher and friends) gaining or losing the foreground.
type OverlayEvent struct {
	Activated bool
	Window    uintptr // identity of the overlay window
	Class     string
}

type eventKind int

const (
	evKeyDown eventKind = iota
	evKeyUp
	evOverlayOn
	evOverlayOff
	evDeadline
)

func (k eventKind) String() string {
	switch k {
	case evKeyDown:
		return "key-down"
	case evKeyUp:
		return "key-up"
	case evOverlayOn:
		return "overlay-on"
	case evOverlayOff:
		return "overlay-off"
	case evDeadline:
		return "deadline"
	default:
		return "unknown"
	}
}

type machineEvent struct {
	kind   eventKind
	window uintptr
	class  string
	gen    uint64 // deadline generation; stale fires are discarded
}

// VisibilityMachine decides when the taskbar shows and hides. Key and
// overlay transitions and deadline expiries all funnel through one
// queue with a single consumer goroutine, so transitions never race and
// the controller is called from exactly one place. Events that have no
// entry in the transition table for the current state are dropped,
// which makes out-of-order and duplicate deliveries harmless.
type VisibilityMachine struct {
	taskbar  taskbarCommander
	delay    time.Duration
	debounce func(func()) // single-shot restartable deadline

	events chan machineEvent

	// Owned by the run loop; never touched outside it.
	state    visibilityState
	keyHeld  bool
	overlays map[uintptr]string // active overlay window -> class
	gen      uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	doneCh  chan struct{}
	started bool
}

// NewVisibilityMachine creates a machine driving the given controller
// with the default hide delay.
func NewVisibilityMachine(taskbar taskbarCommander) *VisibilityMachine {
	return newVisibilityMachineWithDelay(taskbar, defaultHideDelay)
}

// newVisibilityMachineWithDelay lets tests shrink the hide delay.
func newVisibilityMachineWithDelay(taskbar taskbarCommander, delay time.Duration) *VisibilityMachine {
	return &VisibilityMachine{
		taskbar:  taskbar,
		delay:    delay,
		debounce: debounce.New(delay),
		events:   make(chan machineEvent, 64),
		state:    stateHidden,
		overlays: make(map[uintptr]string),
	}
}

// Start force-hides the taskbar (the initial state is Hidden) and
// launches the consumer loop.
func (m *VisibilityMachine) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	doneCh := make(chan struct{})
	m.doneCh = doneCh
	m.started = true

	m.taskbar.Hide()
	log.Printf("visibility: %v (startup)", m.state)

	go func() {
		defer close(doneCh)
		for {
			select {
			case <-runCtx.Done():
				return
			case ev := <-m.events:
				m.dispatch(ev)
			}
		}
	}()
}

// Stop ends the consumer loop and waits briefly for it to exit. A
// deadline already in flight becomes a dead letter: nothing consumes
// it, so no hide can execute after Stop returns.
func (m *VisibilityMachine) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	doneCh := m.doneCh
	m.started = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if doneCh != nil {
		select {
		case <-doneCh:
		case <-time.After(200 * time.Millisecond):
			log.Printf("visibility: Stop() timed out waiting for loop exit")
		}
	}
}

// HandleKey enqueues a trigger-key transition. Called by WinKeyService.
func (m *VisibilityMachine) HandleKey(ev KeyEvent) {
	if ev.Down {
		m.post(machineEvent{kind: evKeyDown})
	} else {
		m.post(machineEvent{kind: evKeyUp})
	}
}

// HandleOverlay enqueues an overlay transition. Called by
// ShellWatchService.
func (m *VisibilityMachine) HandleOverlay(ev OverlayEvent) {
	kind := evOverlayOff
	if ev.Activated {
		kind = evOverlayOn
	}
	m.post(machineEvent{kind: kind, window: ev.Window, class: ev.Class})
}

func (m *VisibilityMachine) post(ev machineEvent) {
	select {
	case m.events <- ev:
	default:
		// Only possible if the loop is gone or badly wedged. Dropping is
		// safe: every transition is recomputed from current state.
		log.Printf("visibility: event queue full, dropping %v", ev.kind)
	}
}

// dispatch runs one event through the transition table.
func (m *VisibilityMachine) dispatch(ev machineEvent) {
	switch ev.kind {
	case evKeyDown:
		if m.keyHeld {
			return // auto-repeat while held
		}
		m.keyHeld = true
		m.reveal("key down")
	case evKeyUp:
		if !m.keyHeld {
			return // up without a preceding down
		}
		m.keyHeld = false
		m.armIfIdle("key up")
	case evOverlayOn:
		if _, ok := m.overlays[ev.window]; ok {
			return // duplicate activation
		}
		m.overlays[ev.window] = ev.class
		m.reveal("overlay " + ev.class)
	case evOverlayOff:
		if _, ok := m.overlays[ev.window]; !ok {
			return // deactivation for an overlay we never tracked
		}
		delete(m.overlays, ev.window)
		m.armIfIdle("overlay gone " + ev.class)
	case evDeadline:
		if m.state != statePendingHide || ev.gen != m.gen {
			return // cancelled or superseded deadline
		}
		m.state = stateHidden
		m.taskbar.Hide()
		log.Printf("visibility: %v (deadline)", m.state)
	}
}

// reveal moves to Revealed, showing the taskbar only on the
// Hidden -> Revealed edge. Bumping gen invalidates any armed deadline.
func (m *VisibilityMachine) reveal(why string) {
	m.gen++
	switch m.state {
	case stateHidden:
		m.taskbar.Show()
		m.state = stateRevealed
		log.Printf("visibility: %v (%s)", m.state, why)
	case statePendingHide:
		m.state = stateRevealed
		log.Printf("visibility: hide cancelled (%s)", why)
	case stateRevealed:
		// already shown
	}
}

// armIfIdle arms the hide deadline, but only when no reveal condition
// remains: the key must be up and the overlay set empty at the same
// instant. The taskbar stays physically visible until the deadline
// fires.
func (m *VisibilityMachine) armIfIdle(why string) {
	if m.state != stateRevealed {
		return
	}
	if m.keyHeld || len(m.overlays) > 0 {
		return
	}
	m.gen++
	gen := m.gen
	m.state = statePendingHide
	m.debounce(func() {
		m.post(machineEvent{kind: evDeadline, gen: gen})
	})
	log.Printf("visibility: hide in %v (%s)", m.delay, why)
}
