package session

import (
	"context"
	"fmt"

	"goa.design/harmony/runtime/harmony/chat"
	"goa.design/harmony/runtime/harmony/envelope"
	"goa.design/harmony/runtime/harmony/executor"
	"goa.design/harmony/runtime/harmony/harmonyerrors"
	"goa.design/harmony/runtime/harmony/preflight"
	"goa.design/harmony/runtime/harmony/tools"
	"goa.design/harmony/runtime/harmony/transcript"
)

// Metric and span names emitted by the execution path.
const (
	metricExecuteTotal = "harmony.execute.total"
	metricToolDuration = "harmony.tool.duration"
	spanExecuteNext    = "harmony.execute_next"
)

// ExecuteNext executes the message at the session's current index.
func (s *Service) ExecuteNext(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	ctx, span := s.tracer.Start(ctx, spanExecuteNext)
	defer span.End()
	resp, err := s.execute(ctx, req, -1)
	if err != nil {
		span.RecordError(err)
	}
	return resp, err
}

// ExecuteMessage executes the message at an explicit envelope index. The
// index must be in range; out-of-range indexes fail without mutating the
// session.
func (s *Service) ExecuteMessage(ctx context.Context, req ExecuteRequest, index int) (*ExecuteResponse, error) {
	if index < 0 {
		return nil, harmonyerrors.Newf(harmonyerrors.CodeServiceError,
			"message index must be non-negative, got %d", index)
	}
	return s.execute(ctx, req, index)
}

// execute drives one message execution. index < 0 means "use the session's
// current pointer" (ExecuteNext semantics, where running past the end
// completes the session); an explicit index out of range is a caller error.
func (s *Service) execute(ctx context.Context, req ExecuteRequest, index int) (*ExecuteResponse, error) {
	sess, release, err := s.loadLocked(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock().UTC()

	// Idempotent retry: same key at the same index returns the original
	// record without touching any collaborator or the session row. Checked
	// before the terminal gate so a retry of the completing execution still
	// short-circuits.
	if req.ExecutionID != "" {
		target := index
		if target < 0 {
			target = sess.CurrentIndex
		}
		if pos, ok := sess.ExecutionIndex.Get(req.ExecutionID); ok && pos < len(sess.History) && sess.History[pos].Index == target {
			s.log.Debug(ctx, "idempotent retry", "session_id", sess.ID, "execution_id", req.ExecutionID, "index", target)
			return response(sess, sess.History[pos]), nil
		}
	}

	// Terminal sessions accept no further work: record the attempt and
	// leave vars, artifacts, and the pointer untouched.
	if sess.Status.Terminal() {
		record := Record{
			Index:       sess.CurrentIndex,
			ExecutionID: req.ExecutionID,
			Status:      RecordSkipped,
			StartedAt:   now,
			Logs:        []string{fmt.Sprintf("session is %s; execution skipped", sess.Status)},
		}
		return s.seal(ctx, sess, record, req.ExecutionID)
	}

	env, err := s.scripts.GetScript(ctx, sess.ScriptID)
	if err != nil {
		return nil, fmt.Errorf("load script %q: %w", sess.ScriptID, err)
	}

	if index < 0 {
		index = sess.CurrentIndex
		if index >= len(env.Messages) {
			// Pointer ran past the envelope: nothing left to execute.
			sess.Status = StatusCompleted
			record := Record{
				Index:       index,
				ExecutionID: req.ExecutionID,
				Status:      RecordSkipped,
				StartedAt:   now,
				Logs:        []string{"no message at index; session completed"},
			}
			return s.seal(ctx, sess, record, req.ExecutionID)
		}
	} else if index >= len(env.Messages) {
		return nil, harmonyerrors.Newf(harmonyerrors.CodeServiceError,
			"message index %d out of range [0,%d)", index, len(env.Messages))
	}

	record := Record{
		Index:       index,
		ExecutionID: req.ExecutionID,
		Status:      RecordRunning,
		StartedAt:   now,
		Inputs:      req.Input,
	}
	msg := &env.Messages[index]

	switch {
	case msg.IsContextOnly():
		s.executeContext(sess, msg, index, &record)
	case msg.IsScript():
		if err := s.executeScript(ctx, sess, env, msg, index, req.Input, &record); err != nil {
			return nil, err
		}
	default:
		record.Status = RecordSkipped
		record.Logs = append(record.Logs, fmt.Sprintf("message shape not executable (role %s, termination %q)", msg.Role, msg.Termination))
		advance(sess, index)
		if sess.Status == StatusCreated {
			sess.Status = StatusRunning
		}
	}

	return s.seal(ctx, sess, record, req.ExecutionID)
}

// executeContext handles plain context messages: transcript entry, message
// artifact, pointer advance.
func (s *Service) executeContext(sess *Session, msg *envelope.Message, index int, record *Record) {
	now := s.clock().UTC()
	text := msg.Text()
	idx := index
	sess.Transcript = append(sess.Transcript, ChatEntry{
		Role:        transcript.NormalizeRole(msg.Role),
		Content:     text,
		Timestamp:   now,
		SourceIndex: &idx,
	})
	record.Outputs = append(record.Outputs, Artifact{
		Name:        "message",
		ContentType: ArtifactText,
		Content:     text,
		CreatedAt:   now,
		Producer:    "session",
	})
	record.Status = RecordSucceeded
	advance(sess, index)
	if sess.Status == StatusCreated || sess.Status == StatusBlocked {
		sess.Status = StatusRunning
	}
}

// executeScript handles harmony-script messages: preflight gate, recorded
// tool routing, interpreter run, vars merge, final artifact and transcript
// line.
func (s *Service) executeScript(ctx context.Context, sess *Session, env *envelope.Envelope, msg *envelope.Message, index int, input map[string]any, record *Record) error {
	report, err := preflight.Check(ctx, env, s.avail)
	if err != nil {
		return err
	}
	if !report.Ready() {
		s.blockOnPreflight(ctx, sess, report, index, record)
		return nil
	}

	script, err := msg.DecodeScript()
	if err != nil {
		record.Status = RecordFailed
		record.Err = harmonyerrors.Wrap(harmonyerrors.CodeExecutionError, "decode harmony script", err)
		sess.Status = StatusFailed
		return nil
	}

	router := tools.NewRecorder(s.tools, s.traceSink(ctx, sess, record))
	result, runErr := s.interp.Run(ctx, executor.Request{
		Script:  script,
		Vars:    sess.Vars.Snapshot(),
		Input:   mergeInput(sess.Vars.Snapshot(), input),
		History: chatHistory(sess),
		Chat:    s.chat,
		Tools:   router,
	})
	if runErr != nil {
		if ctx.Err() != nil {
			// Cancellation is not a session failure; surface it without
			// persisting the partial mutation.
			return ctx.Err()
		}
		record.Status = RecordFailed
		record.Err = harmonyerrors.FromError(harmonyerrors.CodeExecutionError, runErr)
		record.Logs = append(record.Logs, runErr.Error())
		sess.Status = StatusFailed
		s.log.Error(ctx, "script execution failed", "session_id", sess.ID, "index", index, "err", runErr)
		return nil
	}

	sess.Vars.Merge(result.Vars)
	now := s.clock().UTC()
	if result.FinalText != "" {
		idx := index
		final := Artifact{
			Name:        "final",
			ContentType: ArtifactText,
			Content:     result.FinalText,
			CreatedAt:   now,
			Producer:    "executor",
		}
		record.Outputs = append(record.Outputs, final)
		sess.Artifacts.Set(final.Name, final)
		sess.Transcript = append(sess.Transcript, ChatEntry{
			Role:        transcript.NormalizeRole(envelope.RoleAssistant),
			Content:     result.FinalText,
			Timestamp:   now,
			SourceIndex: &idx,
		})
	}
	if result.Halted {
		record.Logs = append(record.Logs, "script halted")
	}
	record.Status = RecordSucceeded
	advance(sess, index)
	sess.Status = StatusCompleted
	return nil
}

// advance moves the pointer past index. The pointer is monotone: executing
// an earlier message again must not rewind it.
func advance(sess *Session, index int) {
	if index+1 > sess.CurrentIndex {
		sess.CurrentIndex = index + 1
	}
}

// blockOnPreflight records a preflight miss: blocked transcript line,
// preflight artifact, Blocked record and session status, pointer pinned to
// the blocking message.
func (s *Service) blockOnPreflight(ctx context.Context, sess *Session, report preflight.Report, index int, record *Record) {
	now := s.clock().UTC()
	idx := index
	summary := transcript.PreflightBlockedSummary(len(report.MissingRecipients))
	sess.Transcript = append(sess.Transcript, ChatEntry{
		Role:        envelope.RoleSystem,
		Content:     summary,
		Timestamp:   now,
		SourceIndex: &idx,
	})
	record.Outputs = append(record.Outputs, Artifact{
		Name:        "preflight",
		ContentType: ArtifactPreflight,
		Content:     report,
		CreatedAt:   now,
		Producer:    "preflight",
	})
	record.Status = RecordBlocked
	record.Err = harmonyerrors.New(harmonyerrors.CodeMissingTool, summary).
		WithDetail("missing", identStrings(report.MissingRecipients))
	sess.Status = StatusBlocked
	sess.CurrentIndex = index
	s.log.Warn(ctx, "preflight blocked", "session_id", sess.ID, "index", index, "missing", len(report.MissingRecipients))
}

// traceSink builds the recorder sink that turns tool traces into record and
// session artifacts, transcript summaries, logs, and the duration timer.
func (s *Service) traceSink(ctx context.Context, sess *Session, record *Record) tools.Sink {
	return func(trace tools.Trace) {
		now := s.clock().UTC()
		artifact := Artifact{
			Name:        "tool:" + string(trace.Recipient),
			ContentType: ArtifactToolTrace,
			Content:     trace,
			CreatedAt:   now,
			Producer:    "tools",
		}
		record.Outputs = append(record.Outputs, artifact)
		sess.Artifacts.Set(LastToolTraceArtifact, artifact)

		duration := trace.CompletedAt.Sub(trace.StartedAt)
		summary := transcript.ToolSummary(trace.Recipient, trace.Succeeded, duration)
		sess.Transcript = append(sess.Transcript, ChatEntry{
			Role:      "tool",
			Content:   summary,
			Timestamp: now,
		})
		record.Logs = append(record.Logs, summary)

		s.metrics.RecordTimer(metricToolDuration, duration, "recipient", string(trace.Recipient))
		if trace.Succeeded {
			s.log.Info(ctx, "tool invoked", "session_id", sess.ID, "recipient", trace.Recipient, "duration_ms", duration.Milliseconds())
		} else {
			s.log.Error(ctx, "tool invocation failed", "session_id", sess.ID, "recipient", trace.Recipient, "kind", trace.ErrorKind, "err", trace.ErrorMessage)
		}
	}
}

// seal finishes the record, appends it to the history, registers the
// idempotency key, and persists the session. Cancellation before the save
// discards the in-memory mutation.
func (s *Service) seal(ctx context.Context, sess *Session, record Record, executionID string) (*ExecuteResponse, error) {
	now := s.clock().UTC()
	record.CompletedAt = now
	sess.History = append(sess.History, record)
	if executionID != "" {
		sess.ExecutionIndex.Set(executionID, len(sess.History)-1)
	}
	sess.UpdatedAt = now

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.sessions.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	s.metrics.IncCounter(metricExecuteTotal, 1, "status", string(record.Status))
	s.log.Info(ctx, "message executed",
		"session_id", sess.ID, "index", record.Index,
		"record_status", record.Status, "session_status", sess.Status)
	return response(sess, record), nil
}

// response projects the session and the just-appended record into the
// external payload.
func response(sess *Session, record Record) *ExecuteResponse {
	return &ExecuteResponse{
		SessionID:     sess.ID,
		ScriptID:      sess.ScriptID,
		ExecutedIndex: record.Index,
		NextIndex:     sess.CurrentIndex,
		SessionStatus: string(sess.Status),
		Record:        record,
		Outputs:       record.Outputs,
		Vars:          sess.Vars.Snapshot(),
	}
}

// chatHistory projects the durable transcript into chat entries, dropping
// empty lines.
func chatHistory(sess *Session) []chat.Entry {
	entries := make([]chat.Entry, 0, len(sess.Transcript))
	for _, e := range sess.Transcript {
		if e.Content == "" {
			continue
		}
		entries = append(entries, chat.Entry{
			Role:        e.Role,
			Content:     e.Content,
			SourceIndex: e.SourceIndex,
		})
	}
	return entries
}

// mergeInput layers the per-call input over the session vars snapshot.
func mergeInput(vars, input map[string]any) map[string]any {
	out := make(map[string]any, len(vars)+len(input))
	for k, v := range vars {
		out[k] = v
	}
	for k, v := range input {
		out[k] = v
	}
	return out
}

func identStrings(idents []tools.Ident) []string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = string(id)
	}
	return out
}
