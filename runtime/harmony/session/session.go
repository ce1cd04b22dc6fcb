// Package session implements the harmony session service: durable session
// state, message-by-message execution under a per-session lock, idempotent
// execution records, preflight gating, artifacts, and the transcript. Store
// contracts are pluggable; the inmem subpackage provides the reference
// implementation and features/session/mongo a durable one.
package session

import (
	"time"

	"goa.design/harmony/runtime/harmony/caseless"
	"goa.design/harmony/runtime/harmony/harmonyerrors"
)

type (
	// Status is the lifecycle state of a session.
	Status string

	// RecordStatus is the outcome of a single message execution.
	RecordStatus string

	// ArtifactType classifies artifact content.
	ArtifactType string

	// Artifact is a structured output attached to an execution record and/or
	// the session. Artifacts are immutable once created.
	Artifact struct {
		// Name identifies the artifact within its record.
		Name string `json:"name"`
		// ContentType classifies Content.
		ContentType ArtifactType `json:"contentType"`
		// Content is the JSON-encodable payload.
		Content any `json:"content"`
		// CreatedAt records when the artifact was produced.
		CreatedAt time.Time `json:"createdAt"`
		// Producer optionally names the component that produced the artifact.
		Producer string `json:"producer,omitempty"`
	}

	// Record is a MessageExecutionRecord: the immutable account of one
	// message execution attempt. Exactly one record is appended per distinct
	// (index, executionId) pair; idempotent retries return the existing
	// record.
	Record struct {
		// Index is the envelope index the execution targeted.
		Index int `json:"index"`
		// ExecutionID is the caller-supplied idempotency key, when provided.
		ExecutionID string `json:"executionId,omitempty"`
		// Status is the execution outcome.
		Status RecordStatus `json:"status"`
		// StartedAt records when execution began.
		StartedAt time.Time `json:"startedAt"`
		// CompletedAt records when the record was sealed.
		CompletedAt time.Time `json:"completedAt"`
		// Inputs is a light snapshot of the per-call input bag.
		Inputs map[string]any `json:"inputs,omitempty"`
		// Outputs lists the artifacts the execution produced.
		Outputs []Artifact `json:"outputs,omitempty"`
		// Logs carries one-line execution notes.
		Logs []string `json:"logs,omitempty"`
		// Err is the structured failure, for Blocked and Failed records.
		Err *harmonyerrors.Error `json:"error,omitempty"`
	}

	// ChatEntry is one durable, user-visible transcript line.
	ChatEntry struct {
		// Role is the normalized speaker role.
		Role string `json:"role"`
		// Content is the entry text.
		Content string `json:"content"`
		// Timestamp orders the transcript; ties break by append order.
		Timestamp time.Time `json:"timestamp"`
		// SourceIndex is the envelope index that produced the entry, when known.
		SourceIndex *int `json:"sourceIndex,omitempty"`
	}

	// Session is the mutable runtime state bound to one script. All engine
	// mutations happen inside the per-session lock.
	Session struct {
		// ID is the opaque unique session identifier.
		ID string
		// ScriptID names the registered envelope the session executes.
		ScriptID string
		// CurrentIndex is the execution pointer. It never decreases.
		CurrentIndex int
		// Status is the lifecycle state.
		Status Status
		// CreatedAt records session creation.
		CreatedAt time.Time
		// UpdatedAt records the last engine mutation.
		UpdatedAt time.Time
		// Vars is the variable bag, keyed case-insensitively.
		Vars *caseless.Map[any]
		// Artifacts holds session-scoped artifacts, keyed case-insensitively.
		Artifacts *caseless.Map[Artifact]
		// History is the append-only record sequence.
		History []Record
		// Transcript is the ordered user-visible conversation log.
		Transcript []ChatEntry
		// Metadata carries caller-supplied labels, keyed case-insensitively.
		Metadata *caseless.Map[string]
		// ExecutionIndex maps idempotency keys to history positions, keyed
		// case-insensitively.
		ExecutionIndex *caseless.Map[int]
	}
)

// Session status values.
const (
	StatusCreated   Status = "Created"
	StatusRunning   Status = "Running"
	StatusBlocked   Status = "Blocked"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
)

// Record status values.
const (
	RecordRunning   RecordStatus = "Running"
	RecordSucceeded RecordStatus = "Succeeded"
	RecordBlocked   RecordStatus = "Blocked"
	RecordSkipped   RecordStatus = "Skipped"
	RecordFailed    RecordStatus = "Failed"
)

// Artifact content types.
const (
	ArtifactText      ArtifactType = "text"
	ArtifactJSON      ArtifactType = "json"
	ArtifactToolTrace ArtifactType = "tool-trace"
	ArtifactPreflight ArtifactType = "preflight"
)

// LastToolTraceArtifact is the session artifact name holding the most recent
// tool trace.
const LastToolTraceArtifact = "last_tool_trace"

// Terminal reports whether the status admits no further transitions.
// Subsequent executes on a terminal session yield Skipped records and do not
// mutate vars, artifacts, or the pointer.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// NewSession constructs a Created session bound to scriptID.
func NewSession(id, scriptID string, now time.Time, metadata map[string]string) *Session {
	return &Session{
		ID:             id,
		ScriptID:       scriptID,
		Status:         StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
		Vars:           caseless.New[any](),
		Artifacts:      caseless.New[Artifact](),
		Metadata:       caseless.FromMap(metadata),
		ExecutionIndex: caseless.New[int](),
	}
}

// Clone returns a deep-enough copy of the session for defensive store
// round-trips: all maps and slices are detached; artifact and record content
// values are shared (records are immutable once completed).
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Vars = s.Vars.Clone()
	out.Artifacts = s.Artifacts.Clone()
	out.Metadata = s.Metadata.Clone()
	out.ExecutionIndex = s.ExecutionIndex.Clone()
	out.History = make([]Record, len(s.History))
	for i, r := range s.History {
		r.Outputs = append([]Artifact(nil), r.Outputs...)
		r.Logs = append([]string(nil), r.Logs...)
		out.History[i] = r
	}
	out.Transcript = append([]ChatEntry(nil), s.Transcript...)
	return &out
}
