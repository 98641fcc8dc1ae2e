package auth

import (
	"context"

	"github.com/dmitrymomot/scanauth/pkg/logger"
	"github.com/dmitrymomot/scanauth/pkg/statemachine"
)

// State is the lifecycle state of a Manager.
type State string

const (
	StateAnonymous     State = "anonymous"
	StateInitializing  State = "initializing"
	StateAuthenticated State = "authenticated"
	StateSigningOut    State = "signing_out"
)

// Event drives the transitions between states.
type Event string

const (
	EventStart          Event = "start"
	EventRecovered      Event = "recovered"
	EventRecoveryFailed Event = "recovery_failed"
	EventSignedIn       Event = "signed_in"
	EventTokenRefreshed Event = "token_refreshed"
	EventSignOut        Event = "sign_out"
	EventCleanedUp      Event = "cleaned_up"
)

// transitions is the complete table; any other pair is rejected.
var transitions = []statemachine.Transition[State, Event]{
	{From: StateAnonymous, To: StateInitializing, Event: EventStart},
	{From: StateInitializing, To: StateAuthenticated, Event: EventRecovered},
	{From: StateInitializing, To: StateAnonymous, Event: EventRecoveryFailed},
	{From: StateAnonymous, To: StateAuthenticated, Event: EventSignedIn},
	{From: StateAuthenticated, To: StateAuthenticated, Event: EventSignedIn},
	{From: StateAuthenticated, To: StateAuthenticated, Event: EventTokenRefreshed},
	{From: StateAuthenticated, To: StateSigningOut, Event: EventSignOut},
	{From: StateSigningOut, To: StateAnonymous, Event: EventCleanedUp},
}

func (m *Manager) newMachine() *statemachine.Machine[State, Event] {
	return statemachine.MustNew(StateAnonymous,
		statemachine.WithTransitions(transitions),
		statemachine.WithObserver[State, Event](func(ctx context.Context, from, to State, event Event) {
			m.logger.InfoContext(ctx, "auth state changed",
				logger.Component("auth"),
				logger.Transition(string(from), string(to), string(event)),
			)
			m.metrics.RecordTransition(string(from), string(to), string(event))
		}),
	)
}
