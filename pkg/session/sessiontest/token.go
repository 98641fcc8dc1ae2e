// Package sessiontest provides helpers for building provider-like
// credentials in tests.
package sessiontest

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const signingKey = "sessiontest-signing-key"

// AccessToken returns an HS256 JWT with the subject, email and expiry claims
// the identity provider puts into access tokens.
func AccessToken(id uuid.UUID, email string, expiresAt time.Time) string {
	return AccessTokenWithMetadata(id, email, expiresAt, nil)
}

// AccessTokenWithMetadata is AccessToken with a user_metadata claim.
func AccessTokenWithMetadata(id uuid.UUID, email string, expiresAt time.Time, md map[string]any) string {
	claims := jwt.MapClaims{
		"sub":   id.String(),
		"email": email,
		"exp":   expiresAt.Unix(),
		"iat":   expiresAt.Add(-time.Hour).Unix(),
		"role":  "authenticated",
	}
	if md != nil {
		claims["user_metadata"] = md
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		panic(err)
	}
	return signed
}

// Token wraps AccessToken in an oauth2.Token with a refresh token.
func Token(id uuid.UUID, email string, expiresAt time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  AccessToken(id, email, expiresAt),
		TokenType:    "bearer",
		RefreshToken: "refresh-" + uuid.NewString(),
		Expiry:       expiresAt,
	}
}
