package statemachine

import "fmt"

// Guard decides whether a transition may be taken for the given input.
type Guard[S, E ~string] func(from S, event E, data any) bool

type transition[S, E ~string] struct {
	to     S
	guards []Guard[S, E]
}

// Machine is a stateless transition table. The current state lives in the
// persisted record, so the same Machine can be shared by every goroutine.
// It is safe for concurrent use once built.
type Machine[S, E ~string] struct {
	table    map[S]map[E][]transition[S, E]
	terminal map[S]struct{}
}

// Option configures a Machine during construction.
type Option[S, E ~string] func(*Machine[S, E]) error

// WithTransition registers a transition from one or more source states.
// Transitions for the same state/event pair are evaluated in registration
// order and the first one whose guards all pass wins.
func WithTransition[S, E ~string](to S, event E, from []S, guards ...Guard[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		if to == "" || event == "" || len(from) == 0 {
			return ErrInvalidTransition
		}
		for _, f := range from {
			if f == "" {
				return ErrInvalidTransition
			}
			if _, ok := m.terminal[f]; ok {
				return fmt.Errorf("%w: %q is terminal", ErrInvalidTransition, f)
			}
			if m.table[f] == nil {
				m.table[f] = make(map[E][]transition[S, E])
			}
			m.table[f][event] = append(m.table[f][event], transition[S, E]{to: to, guards: guards})
		}
		return nil
	}
}

// WithTerminal marks states that absorb every event.
func WithTerminal[S, E ~string](states ...S) Option[S, E] {
	return func(m *Machine[S, E]) error {
		for _, s := range states {
			if len(m.table[s]) > 0 {
				return fmt.Errorf("%w: %q already has outgoing transitions", ErrInvalidTransition, s)
			}
			m.terminal[s] = struct{}{}
		}
		return nil
	}
}

// New builds a transition table.
func New[S, E ~string](opts ...Option[S, E]) (*Machine[S, E], error) {
	m := &Machine[S, E]{
		table:    make(map[S]map[E][]transition[S, E]),
		terminal: make(map[S]struct{}),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is like New but panics on a malformed table.
func MustNew[S, E ~string](opts ...Option[S, E]) *Machine[S, E] {
	m, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Next resolves the target state for event fired in state from.
// It never mutates anything; callers apply the returned state themselves.
func (m *Machine[S, E]) Next(from S, event E, data any) (S, error) {
	if event == "" {
		return from, ErrInvalidEvent
	}

	candidates, ok := m.table[from][event]
	if !ok || len(candidates) == 0 {
		return from, NewErrNoTransitionAvailable(string(from), string(event))
	}

	for _, t := range candidates {
		if allowed(t.guards, from, event, data) {
			return t.to, nil
		}
	}

	return from, NewErrTransitionRejected(string(from), string(event))
}

// Can reports whether event would be accepted in state from.
func (m *Machine[S, E]) Can(from S, event E, data any) bool {
	_, err := m.Next(from, event, data)
	return err == nil
}

// IsTerminal reports whether s was registered as terminal.
func (m *Machine[S, E]) IsTerminal(s S) bool {
	_, ok := m.terminal[s]
	return ok
}

// Events lists events that have at least one transition out of from.
// Guards are not evaluated.
func (m *Machine[S, E]) Events(from S) []E {
	events := make([]E, 0, len(m.table[from]))
	for e := range m.table[from] {
		events = append(events, e)
	}
	return events
}

func allowed[S, E ~string](guards []Guard[S, E], from S, event E, data any) bool {
	for _, g := range guards {
		if g != nil && !g(from, event, data) {
			return false
		}
	}
	return true
}
