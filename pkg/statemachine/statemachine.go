package statemachine

import (
	"context"
)

// Observer is notified after a transition completed.
type Observer[S, E comparable] func(ctx context.Context, from, to S, event E)

// Transition is one row of the table: event moves the machine from From to To.
type Transition[S, E comparable] struct {
	From  S
	To    S
	Event E
}
