// Package backend checks a session credential against the resource API.
//
// Validate issues one cheap authenticated request and classifies the
// outcome. Only an explicit 401 means the credential is Invalid. Network
// failures, timeouts and server-side errors are Unreachable: they say
// nothing about the credential and must not destroy a session.
//
//	v := backend.NewValidator(cfg.ValidationURL, backend.WithAPIKey(cfg.APIKey))
//	switch v.Validate(ctx, sess) {
//	case backend.Valid:
//	case backend.Invalid:
//	case backend.Unreachable:
//	}
package backend
