// Package status tracks the lifecycle of one transport channel.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/studyhall/chatsync/internal/bus"
)

// State is a channel lifecycle state.
type State string

const (
	Closed     State = "CLOSED"
	Connecting State = "CONNECTING"
	Open       State = "OPEN"
	Error      State = "ERROR"
)

// validTransitions defines allowed state transitions. ERROR behaves like
// CLOSED for reconnection purposes.
var validTransitions = map[State][]State{
	Closed:     {Connecting},
	Connecting: {Open, Closed, Error},
	Open:       {Closed, Error},
	Error:      {Connecting, Closed},
}

// Machine tracks and enforces channel state transitions for one purpose.
type Machine struct {
	mu      sync.RWMutex
	purpose string
	peer    string
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Closed state.
func NewMachine(purpose, peer string, b *bus.Bus) *Machine {
	return &Machine{
		purpose: purpose,
		peer:    peer,
		current: Closed,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Live reports whether the channel is OPEN.
func (m *Machine) Live() bool {
	return m.Current() == Open
}

// Down reports whether the channel needs a reconnect (CLOSED or ERROR).
func (m *Machine) Down() bool {
	s := m.Current()
	return s == Closed || s == Error
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("%s channel: invalid transition from %s to %s", m.purpose, m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.ChannelStateChanged, StatusChange{
		Purpose: m.purpose,
		Peer:    m.peer,
		From:    from,
		To:      to,
	})
	return nil
}

// StatusChange is the payload for channel state events.
type StatusChange struct {
	Purpose string
	Peer    string
	From    State
	To      State
}
