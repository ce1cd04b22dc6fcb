package preflight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harmony/runtime/harmony/envelope"
	"goa.design/harmony/runtime/harmony/tools"
)

func scriptMessage(steps []any) envelope.Message {
	return envelope.Message{
		Role:        envelope.RoleAssistant,
		Channel:     envelope.ChannelCommentary,
		ContentType: envelope.ContentTypeScript,
		Termination: envelope.TerminationEnd,
		Content:     map[string]any{"steps": steps},
	}
}

func TestRequiredRecipientsWalksMessagesAndSteps(t *testing.T) {
	env := &envelope.Envelope{Messages: []envelope.Message{
		{Role: envelope.RoleAssistant, Channel: envelope.ChannelCommentary,
			ContentType: envelope.ContentTypeJSON, Termination: envelope.TerminationCall,
			Recipient: "demo.echo", Content: map[string]any{}},
		scriptMessage([]any{
			map[string]any{"type": "tool-call", "recipient": "demo.search",
				"channel": "commentary"},
			map[string]any{"type": "if", "condition": "$vars.x",
				"then": []any{map[string]any{"type": "tool-call", "recipient": "demo.lookup",
					"channel": "commentary"}},
				"else": []any{map[string]any{"type": "tool-call", "recipient": "DEMO.ECHO",
					"channel": "commentary"}},
			},
		}),
	}}

	required, err := RequiredRecipients(env)
	require.NoError(t, err)
	// First-seen order with case-insensitive dedup.
	require.Equal(t, []tools.Ident{"demo.echo", "demo.search", "demo.lookup"}, required)
}

func TestCheckAllAvailable(t *testing.T) {
	reg := tools.NewRegistry()
	handler := func(context.Context, map[string]any) (any, error) { return nil, nil }
	require.NoError(t, reg.Register("demo.search", handler))

	env := &envelope.Envelope{Messages: []envelope.Message{scriptMessage([]any{
		map[string]any{"type": "tool-call", "recipient": "demo.search", "channel": "commentary"},
	})}}

	report, err := Check(context.Background(), env, reg)
	require.NoError(t, err)
	require.True(t, report.Ready())
	require.Equal(t, []tools.Ident{"demo.search"}, report.RequiredRecipients)
	require.Empty(t, report.MissingRecipients)
}

func TestCheckReportsMissing(t *testing.T) {
	env := &envelope.Envelope{Messages: []envelope.Message{scriptMessage([]any{
		map[string]any{"type": "tool-call", "recipient": "demo.search", "channel": "commentary"},
	})}}

	report, err := Check(context.Background(), env, tools.NewRegistry())
	require.NoError(t, err)
	require.False(t, report.Ready())
	require.Equal(t, []tools.Ident{"demo.search"}, report.MissingRecipients)
}

func TestRequiredRecipientsEmptyEnvelope(t *testing.T) {
	required, err := RequiredRecipients(&envelope.Envelope{})
	require.NoError(t, err)
	require.Empty(t, required)
}
