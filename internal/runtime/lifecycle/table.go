package lifecycle

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	perrors "github.com/drblury/puppets/internal/runtime/errors"
)

// Local events raised by the region piece.
const (
	EventOpen    = "open:region"
	EventReady   = "ready:region"
	EventClosing = "closing:region"
	EventClose   = "close:region"
)

// Transition moves the machine from From to To when Event fires.
type Transition struct {
	From  State  `yaml:"from"`
	Event string `yaml:"event"`
	To    State  `yaml:"to"`
}

// Table is a complete machine definition.
type Table struct {
	Initial     State        `yaml:"initial"`
	States      []State      `yaml:"states"`
	Transitions []Transition `yaml:"transitions"`
}

// DefaultTable accepts the four region events from any state.
func DefaultTable() Table {
	return Table{
		Initial: Stopped,
		States:  []State{Stopped, Started, Ready, Stopping},
		Transitions: []Transition{
			{From: Any, Event: EventOpen, To: Started},
			{From: Any, Event: EventReady, To: Ready},
			{From: Any, Event: EventClosing, To: Stopping},
			{From: Any, Event: EventClose, To: Stopped},
		},
	}
}

// StrictTable only accepts the forward sequence
// stopped → started → ready → stopping → stopped, plus an early close from
// started.
func StrictTable() Table {
	return Table{
		Initial: Stopped,
		States:  []State{Stopped, Started, Ready, Stopping},
		Transitions: []Transition{
			{From: Stopped, Event: EventOpen, To: Started},
			{From: Started, Event: EventReady, To: Ready},
			{From: Started, Event: EventClosing, To: Stopping},
			{From: Ready, Event: EventClosing, To: Stopping},
			{From: Stopping, Event: EventClose, To: Stopped},
		},
	}
}

// Validate reports every problem with the table.
func (t Table) Validate() error {
	var errs []error
	known := make(map[State]bool, len(t.States))
	for _, s := range t.States {
		if s == "" || s == Any {
			errs = append(errs, fmt.Errorf("%w: %q is not a valid state name", perrors.ErrUnknownState, s))
			continue
		}
		known[s] = true
	}
	if !known[t.Initial] {
		errs = append(errs, fmt.Errorf("%w: initial state %q", perrors.ErrUnknownState, t.Initial))
	}

	seen := make(map[key]bool, len(t.Transitions))
	for i, tr := range t.Transitions {
		if tr.Event == "" {
			errs = append(errs, fmt.Errorf("transition %d: event is required", i))
		}
		if tr.From != Any && !known[tr.From] {
			errs = append(errs, fmt.Errorf("transition %d: %w: from %q", i, perrors.ErrUnknownState, tr.From))
		}
		if !known[tr.To] {
			errs = append(errs, fmt.Errorf("transition %d: %w: to %q", i, perrors.ErrUnknownState, tr.To))
		}
		k := key{from: tr.From, event: tr.Event}
		if seen[k] {
			errs = append(errs, fmt.Errorf("transition %d: duplicate event %q from %q", i, tr.Event, tr.From))
		}
		seen[k] = true
	}
	return errors.Join(errs...)
}

// Events returns the distinct events of the table in declaration order.
func (t Table) Events() []string {
	seen := make(map[string]bool, len(t.Transitions))
	events := make([]string, 0, len(t.Transitions))
	for _, tr := range t.Transitions {
		if !seen[tr.Event] {
			seen[tr.Event] = true
			events = append(events, tr.Event)
		}
	}
	return events
}

// ParseTable decodes and validates a YAML table. A missing initial state
// defaults to the first listed state.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("decode lifecycle table: %w", err)
	}
	if t.Initial == "" && len(t.States) > 0 {
		t.Initial = t.States[0]
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}
