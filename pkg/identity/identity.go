package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/scanauth/pkg/session"
)

// Provider errors. Transport and server failures surface as ErrUnavailable;
// rejected credentials as ErrInvalidCredentials.
var (
	ErrInvalidCredentials = errors.New("identity.invalid_credentials")
	ErrUnavailable        = errors.New("identity.unavailable")
	ErrUserExists         = errors.New("identity.user_already_registered")
	ErrInvalidRequest     = errors.New("identity.invalid_request")
	ErrMissingConfig      = errors.New("identity.missing_config")
)

// EventType names a provider auth event.
type EventType string

// Provider events.
const (
	EventSignedIn         EventType = "SIGNED_IN"
	EventSignedOut        EventType = "SIGNED_OUT"
	EventTokenRefreshed   EventType = "TOKEN_REFRESHED"
	EventUserUpdated      EventType = "USER_UPDATED"
	EventPasswordRecovery EventType = "PASSWORD_RECOVERY"
)

// Event is an auth state change reported by the provider.
type Event struct {
	Type    EventType
	Session *session.Session // nil for SIGNED_OUT and USER_UPDATED
}

// User is the provider's account record.
type User struct {
	ID               uuid.UUID      `json:"id"`
	Email            string         `json:"email"`
	Metadata         map[string]any `json:"user_metadata,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
}

// SignUpResult is returned by SignUp. Session is nil when the provider
// requires email verification before issuing one.
type SignUpResult struct {
	User    User
	Session *session.Session
}

// Provider is the session-issuing identity service.
type Provider interface {
	// GetCurrentSession returns the persisted session, refreshing it when
	// expired. It returns nil, nil when there is none.
	GetCurrentSession(ctx context.Context) (*session.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error)
	// Forget drops locally persisted credentials without a network call.
	Forget(ctx context.Context) error
	// SignOut revokes accessToken at the provider.
	SignOut(ctx context.Context, accessToken string) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, password string) error
	// Subscribe returns a channel of events and a function that stops the
	// subscription and closes the channel.
	Subscribe() (<-chan Event, func())
}
