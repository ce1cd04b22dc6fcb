// Package lock provides per-session mutual exclusion for the harmony
// engine. A Provider grants an exclusive, non-reentrant handle keyed on the
// session id; every read and write of a session row by the engine happens
// inside such a handle. The in-memory implementation uses a count-1
// semaphore per key; features/lock/redis provides a distributed variant.
package lock

import "context"

type (
	// Handle is an acquired lock. Release must be safe to call exactly once
	// on every exit path, including failure; implementations guard against
	// double release.
	Handle interface {
		// Release frees the lock. Releasing more than once is a no-op.
		Release()
	}

	// Provider grants exclusive per-key locks. Acquisition blocks until the
	// lock is free or ctx is done; it is bounded only by cancellation.
	Provider interface {
		// Acquire obtains the exclusive lock for key, honoring ctx
		// cancellation while waiting.
		Acquire(ctx context.Context, key string) (Handle, error)
	}
)
