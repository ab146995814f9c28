package lifecycle

import (
	"fmt"
	"sync"

	perrors "github.com/drblury/puppets/internal/runtime/errors"
)

type key struct {
	from  State
	event string
}

// Change describes one accepted transition. From and To may be equal.
type Change struct {
	From  State
	To    State
	Event string
}

// Hooks observe a machine. Every field is optional.
type Hooks struct {
	OnEnter    func(Change)
	OnRejected func(current State, event string, err error)
}

// Merge returns hooks running h first and other second.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnEnter: func(c Change) {
			if h.OnEnter != nil {
				h.OnEnter(c)
			}
			if other.OnEnter != nil {
				other.OnEnter(c)
			}
		},
		OnRejected: func(current State, event string, err error) {
			if h.OnRejected != nil {
				h.OnRejected(current, event, err)
			}
			if other.OnRejected != nil {
				other.OnRejected(current, event, err)
			}
		},
	}
}

// Machine holds the current state of one puppet.
type Machine struct {
	table Table
	index map[key]State
	hooks Hooks

	mu    sync.RWMutex
	state State
}

// NewMachine validates t and returns a machine in t.Initial.
func NewMachine(t Table, hooks Hooks) (*Machine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	index := make(map[key]State, len(t.Transitions))
	for _, tr := range t.Transitions {
		index[key{from: tr.From, event: tr.Event}] = tr.To
	}
	return &Machine{table: t, index: index, hooks: hooks, state: t.Initial}, nil
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Flags returns the flags of the current state.
func (m *Machine) Flags() Flags {
	return FlagsFor(m.State())
}

// Table returns the definition the machine was built from.
func (m *Machine) Table() Table {
	return m.table
}

// Can reports whether event is accepted from the current state.
func (m *Machine) Can(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lookup(m.state, event)
	return ok
}

func (m *Machine) lookup(from State, event string) (State, bool) {
	if to, ok := m.index[key{from: from, event: event}]; ok {
		return to, true
	}
	to, ok := m.index[key{from: Any, event: event}]
	return to, ok
}

// Fire applies event. Transitions from the exact current state take
// precedence over Any. Rejected events leave the state unchanged and return an
// error wrapping ErrInvalidTransition.
func (m *Machine) Fire(event string) (State, error) {
	m.mu.Lock()
	from := m.state
	to, ok := m.lookup(from, event)
	if ok {
		m.state = to
	}
	m.mu.Unlock()

	if !ok {
		err := fmt.Errorf("%w: %q from %q", perrors.ErrInvalidTransition, event, from)
		if m.hooks.OnRejected != nil {
			m.hooks.OnRejected(from, event, err)
		}
		return from, err
	}
	if m.hooks.OnEnter != nil {
		m.hooks.OnEnter(Change{From: from, To: to, Event: event})
	}
	return to, nil
}

// Reset returns to the initial state without running hooks.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = m.table.Initial
}
