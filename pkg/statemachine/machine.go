package statemachine

import (
	"context"
	"sync"
)

// Machine is a thread-safe in-memory state machine.
// The table is fixed at construction and indexed as [from][event]to.
type Machine[S, E comparable] struct {
	current     S
	transitions map[S]map[E]S
	observers   []Observer[S, E]
	mu          sync.RWMutex
}

func newMachine[S, E comparable](initial S) *Machine[S, E] {
	return &Machine[S, E]{
		current:     initial,
		transitions: make(map[S]map[E]S),
	}
}

// add registers a row. A later row for the same from/event pair replaces
// the earlier one.
func (m *Machine[S, E]) add(t Transition[S, E]) {
	if _, ok := m.transitions[t.From]; !ok {
		m.transitions[t.From] = make(map[E]S)
	}
	m.transitions[t.From][t.Event] = t.To
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Fire applies event to the current state and returns the new state. On
// error the state is unchanged and returned as is.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	m.mu.Lock()
	from := m.current
	to, ok := m.transitions[from][event]
	if !ok {
		m.mu.Unlock()
		return from, NewErrNoTransitionAvailable(from, event)
	}
	m.current = to
	m.mu.Unlock()

	for _, o := range m.observers {
		o(ctx, from, to, event)
	}
	return to, nil
}
