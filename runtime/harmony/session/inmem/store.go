// Package inmem provides in-memory implementations of the session store
// contracts.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation (for example features/session/mongo).
package inmem

import (
	"context"
	"errors"
	"sync"

	"goa.design/harmony/runtime/harmony/envelope"
	"goa.design/harmony/runtime/harmony/session"
)

type (
	// ScriptStore is an in-memory implementation of session.ScriptStore.
	// It is safe for concurrent use.
	ScriptStore struct {
		mu      sync.RWMutex
		scripts map[string]*envelope.Envelope
	}

	// SessionStore is an in-memory implementation of session.Store and
	// session.IndexStore. It is safe for concurrent use.
	SessionStore struct {
		mu       sync.RWMutex
		sessions map[string]*session.Session
	}
)

var (
	_ session.ScriptStore = (*ScriptStore)(nil)
	_ session.Store       = (*SessionStore)(nil)
	_ session.IndexStore  = (*SessionStore)(nil)
)

// NewScriptStore returns an empty ScriptStore.
func NewScriptStore() *ScriptStore {
	return &ScriptStore{scripts: make(map[string]*envelope.Envelope)}
}

// PutScript implements session.ScriptStore. Registering an existing id
// replaces the stored envelope.
func (s *ScriptStore) PutScript(_ context.Context, scriptID string, env *envelope.Envelope) error {
	if scriptID == "" {
		return errors.New("script id is required")
	}
	if env == nil {
		return errors.New("envelope is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[scriptID] = env.Clone()
	return nil
}

// GetScript implements session.ScriptStore.
func (s *ScriptStore) GetScript(_ context.Context, scriptID string) (*envelope.Envelope, error) {
	if scriptID == "" {
		return nil, errors.New("script id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.scripts[scriptID]
	if !ok {
		return nil, session.ErrScriptNotFound
	}
	return env.Clone(), nil
}

// DeleteScript implements session.ScriptStore. Deleting an unknown id is a
// no-op.
func (s *ScriptStore) DeleteScript(_ context.Context, scriptID string) error {
	if scriptID == "" {
		return errors.New("script id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scripts, scriptID)
	return nil
}

// Reset removes all stored scripts.
func (s *ScriptStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = make(map[string]*envelope.Envelope)
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*session.Session)}
}

// SaveSession implements session.Store.
func (s *SessionStore) SaveSession(_ context.Context, sess *session.Session) error {
	if sess == nil {
		return errors.New("session is required")
	}
	if sess.ID == "" {
		return errors.New("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// LoadSession implements session.Store.
func (s *SessionStore) LoadSession(_ context.Context, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// DeleteSession implements session.Store.
func (s *SessionStore) DeleteSession(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return session.ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// ListSessions implements session.IndexStore. Order is unspecified; the
// service sorts.
func (s *SessionStore) ListSessions(_ context.Context, scriptID string) ([]session.IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session.IndexEntry, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if scriptID != "" && sess.ScriptID != scriptID {
			continue
		}
		out = append(out, session.IndexEntry{
			SessionID: sess.ID,
			ScriptID:  sess.ScriptID,
			UpdatedAt: sess.UpdatedAt,
		})
	}
	return out, nil
}

// Reset removes all stored sessions.
func (s *SessionStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*session.Session)
}
