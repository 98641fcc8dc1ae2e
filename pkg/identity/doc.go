// Package identity talks to the session-issuing identity service.
//
// Provider is the narrow surface the auth state machine depends on.
// GoTrueClient implements it over the HTTP API of a GoTrue-compatible auth
// server and keeps the issued token set in a TokenStore, so a restarted
// process can recover its session:
//
//	client, err := identity.NewGoTrueClient(cfg.URL,
//	    identity.WithAPIKey(cfg.APIKey),
//	    identity.WithTokenStore(identity.NewFileTokenStore(cfg.TokenFile)),
//	)
//	go client.Run(ctx) // keeps the access token fresh, emits TOKEN_REFRESHED
//
//	events, stop := client.Subscribe()
//	defer stop()
package identity
