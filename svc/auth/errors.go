package auth

import (
	"context"
	"errors"

	"github.com/dmitrymomot/scanauth/pkg/identity"
)

var (
	// ErrTransientNetwork is a retriable failure that leaves session state untouched
	ErrTransientNetwork = errors.New("auth.transient_network")

	// ErrInvalidCredential means the credential was rejected and session state was destroyed
	ErrInvalidCredential = errors.New("auth.invalid_credential")

	// ErrStartupTimeout means session recovery exceeded the startup bound; retry is safe
	ErrStartupTimeout = errors.New("auth.startup_timeout: timed out, please retry")

	ErrNotAuthenticated     = errors.New("auth.not_authenticated")
	ErrAlreadyAuthenticated = errors.New("auth.already_authenticated")
	ErrAlreadyStarted       = errors.New("auth.already_started")
	ErrClosed               = errors.New("auth.closed")
	ErrInvalidConfig        = errors.New("auth.invalid_config")
	ErrMissingDependency    = errors.New("auth.missing_dependency")
)

// providerError maps identity provider failures onto the package taxonomy.
// Unknown errors are returned as is.
func providerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, identity.ErrInvalidCredentials):
		return errors.Join(ErrInvalidCredential, err)
	case errors.Is(err, identity.ErrUnavailable):
		return errors.Join(ErrTransientNetwork, err)
	default:
		return err
	}
}
