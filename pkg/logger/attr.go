package logger

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// IdentityID records the identity provider account id under "identity_id".
// The zero UUID yields an empty Attr.
func IdentityID(id uuid.UUID) slog.Attr {
	if id == uuid.Nil {
		return slog.Attr{}
	}
	return slog.String("identity_id", id.String())
}

// Email records an account email under "email".
func Email(email string) slog.Attr {
	if email == "" {
		return slog.Attr{}
	}
	return slog.String("email", email)
}

// State records an auth state name under "state".
func State(name string) slog.Attr {
	return slog.String("state", name)
}

// Transition records a state change as a "transition" group.
func Transition(from, to, event string) slog.Attr {
	return slog.Group("transition",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("event", event),
	)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Result records an outcome classification under "result".
func Result(r string) slog.Attr {
	return slog.String("result", r)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Action records a usage action under "action".
func Action(name string) slog.Attr {
	return slog.String("action", name)
}
