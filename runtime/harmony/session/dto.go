package session

import "time"

// Stable external payloads returned by the session service. These shapes are
// the engine's contract with remote control planes; extend them, do not
// repurpose fields.
type (
	// ExecuteResponse reports one message execution.
	ExecuteResponse struct {
		SessionID     string         `json:"sessionId"`
		ScriptID      string         `json:"scriptId"`
		ExecutedIndex int            `json:"executedIndex"`
		NextIndex     int            `json:"nextIndex"`
		SessionStatus string         `json:"sessionStatus"`
		Record        Record         `json:"record"`
		Outputs       []Artifact     `json:"outputs,omitempty"`
		Vars          map[string]any `json:"vars,omitempty"`
	}

	// StatusResponse is the session status projection.
	StatusResponse struct {
		SessionID     string            `json:"sessionId"`
		ScriptID      string            `json:"scriptId"`
		CurrentIndex  int               `json:"currentIndex"`
		Status        Status            `json:"status"`
		CreatedAt     time.Time         `json:"createdAt"`
		UpdatedAt     time.Time         `json:"updatedAt"`
		HistoryCount  int               `json:"historyCount"`
		ArtifactCount int               `json:"artifactCount"`
		Metadata      map[string]string `json:"metadata,omitempty"`
	}

	// HistoryResponse carries the full execution history.
	HistoryResponse struct {
		SessionID    string   `json:"sessionId"`
		ScriptID     string   `json:"scriptId"`
		CurrentIndex int      `json:"currentIndex"`
		Status       Status   `json:"status"`
		History      []Record `json:"history"`
	}

	// HistoryItemResponse carries a single history record, when present.
	HistoryItemResponse struct {
		SessionID string  `json:"sessionId"`
		ScriptID  string  `json:"scriptId"`
		Index     int     `json:"index"`
		Record    *Record `json:"record,omitempty"`
	}

	// SessionListResponse is one page of session identifiers.
	SessionListResponse struct {
		ScriptID          string   `json:"scriptId,omitempty"`
		SessionIDs        []string `json:"sessionIds"`
		ContinuationToken string   `json:"continuationToken,omitempty"`
	}

	// PageRequest bounds a listing. Limit defaults to DefaultPageSize and is
	// clamped to [1, MaxPageSize]. The continuation token is opaque;
	// unparseable tokens degrade to the first page.
	PageRequest struct {
		Limit             int    `json:"limit,omitempty"`
		ContinuationToken string `json:"continuationToken,omitempty"`
	}
)
