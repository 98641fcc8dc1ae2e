// Package statemachine implements a typed finite-state machine driven by an
// explicit transition table.
//
// States and events are any comparable types, typically string-based
// constants:
//
//	type State string
//	type Event string
//
//	sm := statemachine.MustNew[State, Event]("anonymous",
//	    statemachine.WithTransition[State, Event]("anonymous", "initializing", "start"),
//	    statemachine.WithTransition[State, Event]("initializing", "authenticated", "recovered"),
//	)
//
//	to, err := sm.Fire(ctx, "start")
//
// Firing an event with no row for the current state returns
// ErrNoTransitionAvailable and leaves the state unchanged. Observers are
// notified after the state changed, outside the lock.
package statemachine
