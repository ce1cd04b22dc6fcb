package session_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/harmony/runtime/harmony/chat"
	"goa.design/harmony/runtime/harmony/harmonyerrors"
	"goa.design/harmony/runtime/harmony/lock"
	"goa.design/harmony/runtime/harmony/session"
	"goa.design/harmony/runtime/harmony/session/inmem"
	"goa.design/harmony/runtime/harmony/tools"
)

// chatStub counts invocations and returns a fixed reply.
type chatStub struct {
	reply string
	calls int
	hook  func(ctx context.Context)
}

func (c *chatStub) GetAssistantReply(ctx context.Context, _ []chat.Entry, _ chat.Filter) (string, error) {
	c.calls++
	if c.hook != nil {
		c.hook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.reply, nil
}

// fixture bundles a service with its collaborators and stores.
type fixture struct {
	svc      *session.Service
	scripts  *inmem.ScriptStore
	sessions *inmem.SessionStore
	registry *tools.Registry
	chat     *chatStub
	now      time.Time
	toolHits map[string]int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		scripts:  inmem.NewScriptStore(),
		sessions: inmem.NewSessionStore(),
		registry: tools.NewRegistry(),
		chat:     &chatStub{reply: "Final answer from LLM."},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		toolHits: make(map[string]int),
	}
	seq := 0
	svc, err := session.NewService(session.Options{
		Scripts:      f.scripts,
		Sessions:     f.sessions,
		Locks:        lock.NewMutexProvider(),
		Chat:         f.chat,
		Tools:        f.registry,
		Availability: f.registry,
		Clock:        func() time.Time { f.now = f.now.Add(time.Second); return f.now },
		NewID:        func() string { seq++; return fmt.Sprintf("id-%d", seq) },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) registerTool(t *testing.T, name string, result func(args map[string]any) any) {
	t.Helper()
	require.NoError(t, f.registry.Register(tools.Ident(name), func(_ context.Context, args map[string]any) (any, error) {
		f.toolHits[name]++
		return result(args), nil
	}))
}

func (f *fixture) start(t *testing.T, wireText string) string {
	t.Helper()
	ctx := context.Background()
	scriptID, err := f.svc.RegisterScript(ctx, wireText)
	require.NoError(t, err)
	status, err := f.svc.StartSession(ctx, session.StartRequest{ScriptID: scriptID})
	require.NoError(t, err)
	return status.SessionID
}

const happyPathWire = "<|start|>system<|message|>You are Harmony MVP. Follow HRF.<|end|>" +
	"<|start|>user<|message|>Say hello.<|end|>" +
	"<|start|>assistant <|channel|>commentary<|message|>" +
	`{"steps":[` +
	`{"type":"tool-call","recipient":"demo.echo","channel":"commentary",` +
	`"args":{"text":"hello from tool"},"save_as":"toolResult"},` +
	`{"type":"assistant-message","channel":"final","content":"."}]}<|end|>`

func TestContextOnlyAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.start(t, "<|start|>system<|message|>You are Harmony MVP. Follow HRF.<|end|>")

	resp, err := f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
	require.NoError(t, err)
	require.Equal(t, 0, resp.ExecutedIndex)
	require.Equal(t, session.RecordSucceeded, resp.Record.Status)
	require.Equal(t, 1, resp.NextIndex)
	require.Len(t, resp.Outputs, 1)
	require.Equal(t, "message", resp.Outputs[0].Name)
	require.Equal(t, session.ArtifactText, resp.Outputs[0].ContentType)
	require.Equal(t, "You are Harmony MVP. Follow HRF.", resp.Outputs[0].Content)

	hist, err := f.svc.GetHistory(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, hist.History, 1)
	require.Equal(t, session.StatusRunning, hist.Status)

	sess, err := f.sessions.LoadSession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, sess.Transcript, 1)
	require.Equal(t, "system", sess.Transcript[0].Role)
	require.Equal(t, 1, sess.CurrentIndex)
}

func TestHappyPathScript(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerTool(t, "demo.echo", func(args map[string]any) any {
		return map[string]any{"echo": args["text"]}
	})
	sessionID := f.start(t, happyPathWire)

	var resp *session.ExecuteResponse
	var err error
	for i := 0; i < 3; i++ {
		resp, err = f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
		require.NoError(t, err)
	}

	require.Equal(t, string(session.StatusCompleted), resp.SessionStatus)
	require.Contains(t, resp.Vars, "toolResult")
	require.Equal(t, 1, f.toolHits["demo.echo"])

	sess, err := f.sessions.LoadSession(ctx, sessionID)
	require.NoError(t, err)
	final, ok := sess.Artifacts.Get("final")
	require.True(t, ok)
	require.Equal(t, "Final answer from LLM.", final.Content)

	var assistantLine bool
	for _, e := range sess.Transcript {
		if e.Role == "assistant" && e.Content == "Final answer from LLM." {
			assistantLine = true
		}
	}
	require.True(t, assistantLine, "transcript carries the final assistant entry")
}

func TestBlockedPreflight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wireText := "<|start|>system<|message|>ctx<|end|>" +
		"<|start|>user<|message|>go<|end|>" +
		"<|start|>assistant <|channel|>commentary<|message|>" +
		`{"steps":[{"type":"tool-call","recipient":"demo.search","channel":"commentary"}]}<|end|>`
	sessionID := f.start(t, wireText)

	for i := 0; i < 2; i++ {
		_, err := f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
		require.NoError(t, err)
	}
	resp, err := f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
	require.NoError(t, err)

	require.Equal(t, session.RecordBlocked, resp.Record.Status)
	require.Equal(t, string(session.StatusBlocked), resp.SessionStatus)
	require.Equal(t, 2, resp.NextIndex, "pointer pinned to the blocking message")
	require.NotNil(t, resp.Record.Err)
	require.Equal(t, harmonyerrors.CodeMissingTool, resp.Record.Err.Code)

	sess, err := f.sessions.LoadSession(ctx, sessionID)
	require.NoError(t, err)
	last := sess.Transcript[len(sess.Transcript)-1]
	require.True(t, strings.HasPrefix(last.Content, "[preflight] blocked"))

	require.Equal(t, 0, f.chat.calls)
	require.Empty(t, f.toolHits)

	// Registering the tool unblocks the retry.
	f.registerTool(t, "demo.search", func(map[string]any) any { return "found" })
	resp, err = f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
	require.NoError(t, err)
	require.Equal(t, session.RecordSucceeded, resp.Record.Status)
	require.Equal(t, string(session.StatusCompleted), resp.SessionStatus)
}

func TestIdempotentRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wireText := "<|start|>system<|message|>ctx<|end|>" +
		"<|start|>user<|message|>go<|end|>" +
		"<|start|>assistant <|channel|>commentary<|message|>" +
		`{"steps":[{"type":"assistant-message","channel":"final","content":"done"}]}<|end|>`
	sessionID := f.start(t, wireText)

	req := session.ExecuteRequest{SessionID: sessionID, ExecutionID: "exec-123"}
	first, err := f.svc.ExecuteMessage(ctx, req, 2)
	require.NoError(t, err)
	require.Equal(t, session.RecordSucceeded, first.Record.Status)

	second, err := f.svc.ExecuteMessage(ctx, req, 2)
	require.NoError(t, err)
	require.Equal(t, first.Record, second.Record, "retry returns the original record")

	hist, err := f.svc.GetHistory(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, hist.History, 1, "retry does not append history")
	require.Empty(t, f.toolHits)
	require.Equal(t, 0, f.chat.calls)
}

func TestToolTraceArtifacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerTool(t, "demo.lookup", func(args map[string]any) any {
		return map[string]any{"answer": args["query"]}
	})
	wireText := "<|start|>assistant <|channel|>commentary<|message|>" +
		`{"steps":[` +
		`{"type":"tool-call","recipient":"demo.lookup","channel":"commentary",` +
		`"args":{"query":"hello"},"save_as":"toolResult"},` +
		`{"type":"assistant-message","channel":"final","content":"done"}]}<|end|>`
	sessionID := f.start(t, wireText)

	resp, err := f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
	require.NoError(t, err)

	var trace *session.Artifact
	for i := range resp.Record.Outputs {
		if resp.Record.Outputs[i].Name == "tool:demo.lookup" {
			trace = &resp.Record.Outputs[i]
		}
	}
	require.NotNil(t, trace, "record outputs carry the tool trace")
	require.Equal(t, session.ArtifactToolTrace, trace.ContentType)

	require.Equal(t, map[string]any{"answer": "hello"}, resp.Vars["toolResult"])

	sess, err := f.sessions.LoadSession(ctx, sessionID)
	require.NoError(t, err)
	_, ok := sess.Artifacts.Get(session.LastToolTraceArtifact)
	require.True(t, ok)

	var summary bool
	for _, e := range sess.Transcript {
		if strings.HasPrefix(e.Content, "[tool:demo.lookup] ok") {
			summary = true
		}
	}
	require.True(t, summary, "transcript carries the tool summary line")
}

func TestPagingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for id, offset := range map[string]time.Duration{
		"s1": 3 * time.Second,
		"s2": 1 * time.Second,
		"s3": 2 * time.Second,
	} {
		sess := session.NewSession(id, "script-A", base, nil)
		sess.UpdatedAt = base.Add(offset)
		require.NoError(t, f.sessions.SaveSession(ctx, sess))
	}

	page1, err := f.svc.ListSessions(ctx, session.ListRequest{
		ScriptID: "script-A",
		Page:     session.PageRequest{Limit: 2},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"s1", "s3"}, page1.SessionIDs)
	require.NotEmpty(t, page1.ContinuationToken)

	page2, err := f.svc.ListSessions(ctx, session.ListRequest{
		ScriptID: "script-A",
		Page:     session.PageRequest{Limit: 2, ContinuationToken: page1.ContinuationToken},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"s2"}, page2.SessionIDs)
	require.Empty(t, page2.ContinuationToken, "final page has no continuation")
}

func TestTerminalSessionSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.start(t, "<|start|>system<|message|>only<|end|>")

	_, err := f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
	require.NoError(t, err)
	// Pointer past the end completes the session.
	resp, err := f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
	require.NoError(t, err)
	require.Equal(t, string(session.StatusCompleted), resp.SessionStatus)

	before, err := f.sessions.LoadSession(ctx, sessionID)
	require.NoError(t, err)

	resp, err = f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
	require.NoError(t, err)
	require.Equal(t, session.RecordSkipped, resp.Record.Status)
	require.Equal(t, string(session.StatusCompleted), resp.SessionStatus)

	after, err := f.sessions.LoadSession(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, before.CurrentIndex, after.CurrentIndex)
	require.Equal(t, before.Vars.Snapshot(), after.Vars.Snapshot())
	require.Equal(t, len(before.History)+1, len(after.History), "skip is still recorded")
}

func TestExecuteMessageOutOfRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.start(t, "<|start|>system<|message|>only<|end|>")

	_, err := f.svc.ExecuteMessage(ctx, session.ExecuteRequest{SessionID: sessionID}, 5)
	require.Error(t, err)
	require.Equal(t, harmonyerrors.CodeServiceError, harmonyerrors.Code(err))

	hist, err := f.svc.GetHistory(ctx, sessionID)
	require.NoError(t, err)
	require.Empty(t, hist.History, "failed index validation does not mutate the session")
}

func TestExecuteMessageNeverRewindsPointer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wireText := "<|start|>system<|message|>one<|end|>" +
		"<|start|>system<|message|>two<|end|>" +
		"<|start|>user<|message|>three<|end|>"
	sessionID := f.start(t, wireText)

	for i := 0; i < 2; i++ {
		_, err := f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
		require.NoError(t, err)
	}

	resp, err := f.svc.ExecuteMessage(ctx, session.ExecuteRequest{SessionID: sessionID}, 0)
	require.NoError(t, err)
	require.Equal(t, 0, resp.ExecutedIndex)
	require.Equal(t, session.RecordSucceeded, resp.Record.Status)
	require.Equal(t, 2, resp.NextIndex, "re-running an earlier message must not rewind the pointer")

	sess, err := f.sessions.LoadSession(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, 2, sess.CurrentIndex)
	require.Len(t, sess.History, 3, "the re-run still appends a record")
	require.Len(t, sess.Transcript, 3, "and a transcript entry")

	// The next ExecuteNext picks up where the pointer left off.
	resp, err = f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
	require.NoError(t, err)
	require.Equal(t, 2, resp.ExecutedIndex)
	require.Equal(t, 3, resp.NextIndex)
}

func TestRegisterScriptRejectsBadWire(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RegisterScript(context.Background(), "<|start|>system<|message|>no terminator")
	require.Error(t, err)
	require.Equal(t, harmonyerrors.CodeParseMissingTerminator, harmonyerrors.Code(err))
}

func TestRegisterScriptRejectsBadScript(t *testing.T) {
	f := newFixture(t)
	// tool-call step without a recipient fails the script schema.
	_, err := f.svc.RegisterScript(context.Background(),
		"<|start|>assistant <|channel|>commentary<|message|>"+
			`{"steps":[{"type":"tool-call","channel":"commentary"}]}<|end|>`)
	require.Error(t, err)
	require.Equal(t, harmonyerrors.CodeSchemaScriptFailed, harmonyerrors.Code(err))
}

func TestStartSessionUnknownScript(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartSession(context.Background(), session.StartRequest{ScriptID: "missing"})
	require.ErrorIs(t, err, session.ErrScriptNotFound)
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.start(t, "<|start|>system<|message|>only<|end|>")

	require.NoError(t, f.svc.DeleteSession(ctx, sessionID))
	_, err := f.svc.GetStatus(ctx, sessionID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestCancellationDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	wireText := "<|start|>assistant <|channel|>commentary<|message|>" +
		`{"steps":[{"type":"assistant-message","channel":"final","content":"."}]}<|end|>`
	sessionID := f.start(t, wireText)

	ctx, cancel := context.WithCancel(context.Background())
	f.chat.hook = func(context.Context) { cancel() }

	_, err := f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
	require.ErrorIs(t, err, context.Canceled)

	sess, err := f.sessions.LoadSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, session.StatusCreated, sess.Status, "cancelled execution leaves the stored row untouched")
	require.Empty(t, sess.History)
}

func TestGetHistoryItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.start(t, "<|start|>system<|message|>only<|end|>")

	_, err := f.svc.ExecuteNext(ctx, session.ExecuteRequest{SessionID: sessionID})
	require.NoError(t, err)

	item, err := f.svc.GetHistoryItem(ctx, sessionID, 0)
	require.NoError(t, err)
	require.NotNil(t, item.Record)
	require.Equal(t, session.RecordSucceeded, item.Record.Status)

	item, err = f.svc.GetHistoryItem(ctx, sessionID, 7)
	require.NoError(t, err)
	require.Nil(t, item.Record)
}
