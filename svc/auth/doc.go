// Package auth owns the client-side session lifecycle.
//
// A Manager serializes every state change onto a single command queue:
// user actions (SignIn, SignUp, SignOut, ...), identity provider events and
// scheduled re-validation of unverified sessions. The states are
//
//	anonymous -> initializing -> authenticated -> signing_out -> anonymous
//
// and are enforced by a transition table built on pkg/statemachine.
// Initializing is only visited once, by Start.
//
// Basic usage:
//
//	mgr, err := auth.NewManager(cfg, provider, validator, reconciler,
//		auth.WithMetadataCache(cache),
//		auth.WithUsage(counter),
//		auth.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//	defer mgr.Close()
//
//	if err := mgr.Start(ctx); errors.Is(err, auth.ErrStartupTimeout) {
//		// show "timed out, please retry"
//	}
//
// Reads (CurrentUser, CurrentProfile, State, IsLoading, ...) never block and
// are safe from any goroutine.
//
// Sign-out clears local state before returning and never fails. The remote
// revocation runs detached and races SignOutTimeout; its outcome is logged
// and counted, nothing else.
package auth
