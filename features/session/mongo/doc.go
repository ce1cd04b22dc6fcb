// Package mongo provides MongoDB-backed implementations of the harmony
// script and session stores.
//
// Scripts are stored as canonical envelope JSON; sessions are stored as
// structured documents so the listing index can query updated_at without
// decoding full rows. The engine serializes all writes to a session through
// the per-session lock, so the store relies on simple replace semantics.
package mongo
