// Package session holds the process-wide current session: the credential
// issued by the identity provider, the identity it belongs to and when it
// expires.
//
// Holder is a plain container with an explicit Set/Clear lifecycle. It does
// no validation and no policy; the auth service is its only writer and every
// other component reads through Current. Each Set and Clear is mirrored to a
// MetadataRecorder so that a restarted process can cheaply tell whether a
// session existed before (see package sessionmeta).
//
//	holder := session.NewHolder(session.WithRecorder(metaCache))
//	sess, err := session.FromToken(tok)
//	if err != nil {
//	    return err
//	}
//	holder.Set(ctx, sess)
package session
