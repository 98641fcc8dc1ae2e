// Package profile keeps exactly one application profile per identity.
//
// A Reconciler sits between the auth service and a profile Store. Ensure
// fetches the profile for an authenticated identity and creates it from the
// sign-up metadata when the store reports ErrNotFound. Any other fetch error
// is returned as is; it never turns into a create attempt. Concurrent Ensure
// calls for one identity share a single store round trip.
//
// Profile fields collected at sign-up may not be persistable yet, for
// example when the provider asks for email verification before it issues a
// session. Those fields are parked as a PendingUpdate in a PendingStore and
// applied by the next successful Ensure for the same identity.
package profile
