package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is the error body returned by the auth server.
type APIError struct {
	Status      int    `json:"-"`
	Code        string `json:"error_code,omitempty"`
	Name        string `json:"error,omitempty"`
	Description string `json:"error_description,omitempty"`
	Msg         string `json:"msg,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Description
	for _, m := range []string{e.Msg, e.Message, e.Name, e.Code} {
		if msg != "" {
			break
		}
		msg = m
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("identity: %d %s", e.Status, msg)
}

func (e *APIError) text() string {
	return strings.ToLower(strings.Join([]string{e.Code, e.Name, e.Description, e.Msg, e.Message}, " "))
}

// classify maps an error response onto the package sentinels.
func classify(e *APIError) error {
	switch {
	case e.Status == http.StatusTooManyRequests || e.Status >= 500:
		return errors.Join(ErrUnavailable, e)
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return errors.Join(ErrInvalidCredentials, e)
	}

	t := e.text()
	switch {
	case strings.Contains(t, "already registered"),
		strings.Contains(t, "user_already_exists"),
		strings.Contains(t, "email_exists"):
		return errors.Join(ErrUserExists, e)
	case strings.Contains(t, "invalid_grant"),
		strings.Contains(t, "invalid_credentials"),
		strings.Contains(t, "invalid login credentials"),
		strings.Contains(t, "refresh_token_not_found"),
		strings.Contains(t, "bad_jwt"):
		return errors.Join(ErrInvalidCredentials, e)
	default:
		return errors.Join(ErrInvalidRequest, e)
	}
}
