package status

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/waconsole/internal/bus"
)

// State is a named state of a Machine.
type State string

// Conversation states, one machine per contact.
const (
	Idle    State = "IDLE"
	Loading State = "LOADING"
	Ready   State = "READY"
)

// Database sync states, one machine per process. Idle is shared.
const (
	Syncing State = "SYNCING"
)

// Link states of the messaging transport.
const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	Error        State = "ERROR"
)

// Table maps each state to the states reachable from it.
type Table map[State][]State

// ConversationTable drives a per-contact conversation load.
var ConversationTable = Table{
	Idle:    {Loading},
	Loading: {Ready, Idle},
	Ready:   {},
}

// DatabaseTable guards the single in-flight database sync.
var DatabaseTable = Table{
	Idle:    {Syncing},
	Syncing: {Idle},
}

// LinkTable tracks the transport connection.
var LinkTable = Table{
	Booting:      {AuthRequired, Connecting, Connected, Error},
	AuthRequired: {Connecting, Error},
	Connecting:   {Connected, AuthRequired, Reconnecting, Error},
	Connected:    {Reconnecting, AuthRequired, Error},
	Reconnecting: {Connecting, Connected, AuthRequired, Error},
	Error:        {Booting, Connecting},
}

// ErrInvalidTransition is wrapped by Transition when the table forbids a move.
var ErrInvalidTransition = errors.New("invalid transition")

// Machine tracks and enforces transitions over a Table. Transition is an
// atomic check-and-set, so a Machine doubles as an in-flight guard.
type Machine struct {
	mu      sync.RWMutex
	name    string
	table   Table
	current State
	bus     *bus.Bus
	kind    string
}

// Option configures a Machine.
type Option func(*Machine)

// WithEvents publishes a StatusChange with the given kind on every transition.
func WithEvents(b *bus.Bus, kind string) Option {
	return func(m *Machine) {
		m.bus = b
		m.kind = kind
	}
}

// NewMachine creates a machine named name starting at initial.
func NewMachine(name string, table Table, initial State, opts ...Option) *Machine {
	m := &Machine{name: name, table: table, current: initial}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Name returns the machine's name.
func (m *Machine) Name() string { return m.name }

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to the given state, or returns an error wrapping
// ErrInvalidTransition when the table does not allow it.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	if !slices.Contains(m.table[from], to) {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w from %s to %s", m.name, ErrInvalidTransition, from, to)
	}
	m.current = to
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Emit(m.kind, StatusChange{Name: m.name, From: from, To: to})
	}
	return nil
}

// StatusChange is the payload for state change events.
type StatusChange struct {
	Name string
	From State
	To   State
}
