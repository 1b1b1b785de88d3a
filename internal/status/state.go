package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
)

// State represents the sync session's lifecycle state.
type State string

const (
	Booting      State = "BOOTING"
	Loading      State = "LOADING"
	Subscribing  State = "SUBSCRIBING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	SignedOut    State = "SIGNED_OUT"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {Loading, Error},
	Loading:      {Subscribing, SignedOut, Error},
	Subscribing:  {Ready, Reconnecting, SignedOut, Error},
	Ready:        {Reconnecting, SignedOut, Error},
	Reconnecting: {Subscribing, SignedOut, Error},
	SignedOut:    {Booting},
	Error:        {Booting},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	if !slices.Contains(validTransitions[from], to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	m.current = to
	m.mu.Unlock()

	m.bus.Emit(bus.SessionStatusChange, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
