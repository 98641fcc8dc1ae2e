// Package sessionmeta records a breadcrumb saying "a session existed" so a
// restarted process can decide whether asking the identity provider for a
// persisted session is worth a network round trip.
//
// The breadcrumb is never a source of truth. A true answer from
// HadRecentSession triggers a recovery attempt, never a grant; a false
// answer skips recovery entirely. When the backing storage is unavailable
// the cache fails closed and reports false.
//
// Three implementations are provided: MemoryCache for tests and single
// process use, FileCache for a local JSON file that survives restarts, and
// RedisCache for recycled containers sharing a Redis instance.
package sessionmeta
