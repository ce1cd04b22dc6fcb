package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"goa.design/harmony/runtime/harmony/canon"
	"goa.design/harmony/runtime/harmony/chat"
	"goa.design/harmony/runtime/harmony/envelope"
	"goa.design/harmony/runtime/harmony/executor"
	"goa.design/harmony/runtime/harmony/lock"
	"goa.design/harmony/runtime/harmony/telemetry"
	"goa.design/harmony/runtime/harmony/tools"
	"goa.design/harmony/runtime/harmony/wire"
)

type (
	// Service drives message-by-message session execution. All session
	// mutations happen under the per-session lock; collaborators are
	// injected and never constructed internally, except for defaults noted
	// on Options.
	Service struct {
		scripts   ScriptStore
		sessions  Store
		index     IndexStore
		locks     lock.Provider
		chat      chat.Service
		tools     tools.Router
		avail     tools.Availability
		validator canon.Validator
		interp    *executor.Interpreter
		log       telemetry.Logger
		metrics   telemetry.Metrics
		tracer    telemetry.Tracer
		clock     func() time.Time
		newID     func() string
	}

	// Options configures a Service.
	Options struct {
		// Scripts persists registered envelopes. Required.
		Scripts ScriptStore
		// Sessions persists session rows. Required.
		Sessions Store
		// Index lists sessions for paging. Defaults to Sessions when it
		// implements IndexStore.
		Index IndexStore
		// Locks provides per-session mutual exclusion. Required.
		Locks lock.Provider
		// Chat is the language-model collaborator. Required.
		Chat chat.Service
		// Tools dispatches tool invocations. Required.
		Tools tools.Router
		// Availability answers preflight queries. Required.
		Availability tools.Availability
		// Validator checks canonical envelopes and scripts. Defaults to the
		// compiled schema validator.
		Validator canon.Validator
		// Logger, Metrics, and Tracer default to no-ops.
		Logger  telemetry.Logger
		Metrics telemetry.Metrics
		Tracer  telemetry.Tracer
		// Clock overrides time.Now, for tests.
		Clock func() time.Time
		// NewID overrides uuid generation, for tests.
		NewID func() string
	}

	// StartRequest creates a session.
	StartRequest struct {
		// ScriptID names a registered envelope. Required.
		ScriptID string
		// SessionID is optional; a uuid is generated when empty.
		SessionID string
		// Metadata carries caller labels, keyed case-insensitively.
		Metadata map[string]string
	}

	// ExecuteRequest drives one message execution.
	ExecuteRequest struct {
		// SessionID identifies the session. Required.
		SessionID string
		// ExecutionID is the optional idempotency key. Retries with the same
		// key return the original record without re-running collaborators.
		ExecutionID string
		// Input is the per-call input bag handed to the evaluator.
		Input map[string]any
	}

	// ListRequest pages session identifiers, optionally scoped to a script.
	ListRequest struct {
		ScriptID string
		Page     PageRequest
	}
)

// NewService validates the options and constructs a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Scripts == nil {
		return nil, errors.New("script store is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Locks == nil {
		return nil, errors.New("lock provider is required")
	}
	if opts.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if opts.Tools == nil {
		return nil, errors.New("tool router is required")
	}
	if opts.Availability == nil {
		return nil, errors.New("tool availability is required")
	}
	index := opts.Index
	if index == nil {
		idx, ok := opts.Sessions.(IndexStore)
		if !ok {
			return nil, errors.New("index store is required when the session store does not list")
		}
		index = idx
	}
	validator := opts.Validator
	if validator == nil {
		v, err := canon.NewValidator()
		if err != nil {
			return nil, fmt.Errorf("build schema validator: %w", err)
		}
		validator = v
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Service{
		scripts:   opts.Scripts,
		sessions:  opts.Sessions,
		index:     index,
		locks:     opts.Locks,
		chat:      opts.Chat,
		tools:     opts.Tools,
		avail:     opts.Availability,
		validator: validator,
		interp:    executor.New(logger),
		log:       logger,
		metrics:   metrics,
		tracer:    tracer,
		clock:     clock,
		newID:     newID,
	}, nil
}

// RegisterScript parses wire text, canonicalizes and validates the envelope
// (including embedded scripts), and stores it under a fresh script id.
// Parse and schema errors are returned synchronously and nothing is
// persisted.
func (s *Service) RegisterScript(ctx context.Context, wireText string) (string, error) {
	env, err := wire.Parse(wireText)
	if err != nil {
		return "", err
	}
	return s.RegisterEnvelope(ctx, env)
}

// RegisterEnvelope canonicalizes, validates, and stores a programmatically
// built envelope under a fresh script id.
func (s *Service) RegisterEnvelope(ctx context.Context, env *envelope.Envelope) (string, error) {
	canonical, err := canon.Canonicalize(env)
	if err != nil {
		return "", err
	}
	jsonText, err := canon.MarshalEnvelope(canonical)
	if err != nil {
		return "", fmt.Errorf("encode canonical envelope: %w", err)
	}
	if verr := s.validator.ValidateEnvelope(jsonText); verr != nil {
		return "", verr
	}
	for i := range canonical.Messages {
		msg := &canonical.Messages[i]
		if msg.ContentType != envelope.ContentTypeScript {
			continue
		}
		if verr := s.validator.ValidateScript(msg.Content); verr != nil {
			return "", verr.WithDetail("index", i)
		}
	}
	scriptID := s.newID()
	if err := s.scripts.PutScript(ctx, scriptID, canonical); err != nil {
		return "", fmt.Errorf("store script: %w", err)
	}
	s.log.Info(ctx, "script registered", "script_id", scriptID, "messages", len(canonical.Messages))
	return scriptID, nil
}

// GetScript loads a registered envelope.
func (s *Service) GetScript(ctx context.Context, scriptID string) (*envelope.Envelope, error) {
	return s.scripts.GetScript(ctx, scriptID)
}

// DeleteScript removes a registered envelope. Sessions already bound to it
// keep their script id and fail on their next execute.
func (s *Service) DeleteScript(ctx context.Context, scriptID string) error {
	return s.scripts.DeleteScript(ctx, scriptID)
}

// StartSession creates a session bound to a registered script.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (*StatusResponse, error) {
	if req.ScriptID == "" {
		return nil, errors.New("script id is required")
	}
	if _, err := s.scripts.GetScript(ctx, req.ScriptID); err != nil {
		return nil, fmt.Errorf("load script %q: %w", req.ScriptID, err)
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.newID()
	}
	sess := NewSession(sessionID, req.ScriptID, s.clock().UTC(), req.Metadata)
	if err := s.sessions.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	s.log.Info(ctx, "session started", "session_id", sessionID, "script_id", req.ScriptID)
	return statusResponse(sess), nil
}

// GetStatus returns the status projection for a session.
func (s *Service) GetStatus(ctx context.Context, sessionID string) (*StatusResponse, error) {
	sess, release, err := s.loadLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()
	return statusResponse(sess), nil
}

// GetHistory returns the full execution history for a session.
func (s *Service) GetHistory(ctx context.Context, sessionID string) (*HistoryResponse, error) {
	sess, release, err := s.loadLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()
	return &HistoryResponse{
		SessionID:    sess.ID,
		ScriptID:     sess.ScriptID,
		CurrentIndex: sess.CurrentIndex,
		Status:       sess.Status,
		History:      append([]Record(nil), sess.History...),
	}, nil
}

// GetHistoryItem returns the most recent record for an envelope index, when
// one exists.
func (s *Service) GetHistoryItem(ctx context.Context, sessionID string, index int) (*HistoryItemResponse, error) {
	sess, release, err := s.loadLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()
	resp := &HistoryItemResponse{SessionID: sess.ID, ScriptID: sess.ScriptID, Index: index}
	for i := len(sess.History) - 1; i >= 0; i-- {
		if sess.History[i].Index == index {
			record := sess.History[i]
			resp.Record = &record
			break
		}
	}
	return resp, nil
}

// ListSessions pages session identifiers ordered by updatedAt descending,
// tie-broken by session id ascending.
func (s *Service) ListSessions(ctx context.Context, req ListRequest) (*SessionListResponse, error) {
	entries, err := s.index.ListSessions(ctx, req.ScriptID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sortIndex(entries)

	limit := clampLimit(req.Page.Limit)
	offset := decodeToken(req.Page.ContinuationToken)
	if offset > len(entries) {
		offset = len(entries)
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}

	resp := &SessionListResponse{ScriptID: req.ScriptID}
	for _, entry := range entries[offset:end] {
		resp.SessionIDs = append(resp.SessionIDs, entry.SessionID)
	}
	if end < len(entries) {
		resp.ContinuationToken = encodeToken(end)
	}
	return resp, nil
}

// DeleteSession removes a session. Deletion is terminal-equivalent for
// retrieval: subsequent operations return ErrSessionNotFound.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	handle, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer handle.Release()
	return s.sessions.DeleteSession(ctx, sessionID)
}

// loadLocked acquires the session lock and loads the row. The returned
// release function must be called once the caller is done with the session.
func (s *Service) loadLocked(ctx context.Context, sessionID string) (*Session, func(), error) {
	if sessionID == "" {
		return nil, nil, errors.New("session id is required")
	}
	handle, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.sessions.LoadSession(ctx, sessionID)
	if err != nil {
		handle.Release()
		return nil, nil, err
	}
	return sess, handle.Release, nil
}

func statusResponse(sess *Session) *StatusResponse {
	return &StatusResponse{
		SessionID:     sess.ID,
		ScriptID:      sess.ScriptID,
		CurrentIndex:  sess.CurrentIndex,
		Status:        sess.Status,
		CreatedAt:     sess.CreatedAt,
		UpdatedAt:     sess.UpdatedAt,
		HistoryCount:  len(sess.History),
		ArtifactCount: sess.Artifacts.Len(),
		Metadata:      sess.Metadata.Snapshot(),
	}
}
