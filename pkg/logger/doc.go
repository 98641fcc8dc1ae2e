// Package logger builds *slog.Logger instances for the session lifecycle
// components and keeps attribute naming consistent across them.
//
// New returns a logger configured through functional options. The handler is
// wrapped with LogHandlerDecorator, which runs registered ContextExtractor
// callbacks on every record so that values carried by the context (for
// example the operation id assigned to every auth command) end up in the log
// line without each call site passing them explicitly.
//
// Attribute helpers such as IdentityID, State, Event and Error live in
// attr.go. Helpers that receive a nil or zero value return an empty
// slog.Attr, which slog drops silently:
//
//	log.InfoContext(ctx, "session validated",
//	    logger.Component("backend"),
//	    logger.IdentityID(sess.IdentityID),
//	    logger.Error(err),
//	)
//
// Environment presets (WithEnvironment) pick text output at debug level for
// development and JSON at info level for staging and production.
package logger
