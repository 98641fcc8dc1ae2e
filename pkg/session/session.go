package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Session is the live proof of authentication for one identity.
type Session struct {
	Credential *oauth2.Token `json:"credential"`
	IdentityID uuid.UUID     `json:"identity_id"`
	Email      string        `json:"email,omitempty"`
	ExpiresAt  time.Time     `json:"expires_at"`
	// Metadata is the user metadata captured by the provider at sign-up.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// accessClaims are the claims read from provider access tokens.
type accessClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// FromToken builds a Session from a provider token. The access token is
// expected to be a JWT; its signature is not checked here, the resource API
// does that when the credential is validated.
func FromToken(tok *oauth2.Token) (*Session, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, ErrMissingCredential
	}

	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, &claims); err != nil {
		return nil, errors.Join(ErrMalformedCredential, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.Join(ErrMissingSubject, err)
	}

	expiresAt := tok.Expiry
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &Session{
		Credential: tok,
		IdentityID: id,
		Email:      claims.Email,
		ExpiresAt:  expiresAt.UTC(),
		Metadata:   claims.UserMetadata,
	}, nil
}

// BearerToken returns the access token or empty string for a nil session.
func (s *Session) BearerToken() string {
	if s == nil || s.Credential == nil {
		return ""
	}
	return s.Credential.AccessToken
}

// IsExpired reports whether the session expired at now. A zero ExpiresAt
// never expires.
func (s *Session) IsExpired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SameCredential reports whether both sessions carry the same access token.
func (s *Session) SameCredential(other *Session) bool {
	if s == nil || other == nil {
		return false
	}
	return s.BearerToken() != "" && s.BearerToken() == other.BearerToken()
}
