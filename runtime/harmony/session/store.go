package session

import (
	"context"
	"errors"
	"time"

	"goa.design/harmony/runtime/harmony/envelope"
)

type (
	// ScriptStore persists registered envelopes under opaque script ids.
	// Registration has replace semantics: putting an existing id overwrites.
	ScriptStore interface {
		// PutScript stores env under scriptID, replacing any previous envelope.
		PutScript(ctx context.Context, scriptID string, env *envelope.Envelope) error
		// GetScript loads the envelope registered under scriptID.
		// Returns ErrScriptNotFound when missing.
		GetScript(ctx context.Context, scriptID string) (*envelope.Envelope, error)
		// DeleteScript removes the envelope registered under scriptID.
		// Deleting an unknown id is a no-op.
		DeleteScript(ctx context.Context, scriptID string) error
	}

	// Store persists session rows. The engine only touches a row while
	// holding the per-session lock, so implementations need not serialize
	// writers themselves beyond basic thread safety.
	Store interface {
		// SaveSession persists the session, overwriting any previous state.
		SaveSession(ctx context.Context, sess *Session) error
		// LoadSession loads the session. Returns ErrSessionNotFound when missing.
		LoadSession(ctx context.Context, sessionID string) (*Session, error)
		// DeleteSession removes the session. Returns ErrSessionNotFound when
		// missing.
		DeleteSession(ctx context.Context, sessionID string) error
	}

	// IndexEntry is the listing projection of a session row.
	IndexEntry struct {
		// SessionID is the session identifier.
		SessionID string
		// ScriptID names the script the session executes.
		ScriptID string
		// UpdatedAt is the last mutation time, the primary list sort key.
		UpdatedAt time.Time
	}

	// IndexStore lists session summaries for paging. Implementations may be
	// backed by the same storage as Store.
	IndexStore interface {
		// ListSessions returns entries for scriptID, or all entries when
		// scriptID is empty. Order is unspecified; the service sorts.
		ListSessions(ctx context.Context, scriptID string) ([]IndexEntry, error)
	}
)

var (
	// ErrSessionNotFound indicates a session does not exist in the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrScriptNotFound indicates a script does not exist in the store.
	ErrScriptNotFound = errors.New("script not found")
)
