package statemachine

import (
	"fmt"
)

// Option configures a state machine during construction.
type Option[S, E comparable] func(*Machine[S, E])

// New creates a new state machine with the given initial state and options.
func New[S, E comparable](initial S, opts ...Option[S, E]) (*Machine[S, E], error) {
	m := newMachine[S, E](initial)
	for _, opt := range opts {
		opt(m)
	}
	if len(m.transitions) == 0 {
		return nil, fmt.Errorf("state machine %v: no transitions defined", initial)
	}
	return m, nil
}

// MustNew creates a new state machine with the given initial state and options.
// Panics if construction fails.
func MustNew[S, E comparable](initial S, opts ...Option[S, E]) *Machine[S, E] {
	m, err := New(initial, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

// WithTransition adds a single row to the table.
func WithTransition[S, E comparable](from, to S, event E) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.add(Transition[S, E]{From: from, To: to, Event: event})
	}
}

// WithTransitions adds a whole transition table at once.
func WithTransitions[S, E comparable](table []Transition[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		for _, t := range table {
			m.add(t)
		}
	}
}

// WithObserver registers a callback run after every completed transition.
func WithObserver[S, E comparable](o Observer[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}
