package session

import "errors"

var (
	// ErrMissingCredential indicates a token without an access token
	ErrMissingCredential = errors.New("session.missing_credential")

	// ErrMalformedCredential indicates the access token claims could not be read
	ErrMalformedCredential = errors.New("session.malformed_credential")

	// ErrMissingSubject indicates the access token carries no usable subject claim
	ErrMissingSubject = errors.New("session.missing_subject")
)
