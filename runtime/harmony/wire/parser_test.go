package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harmony/runtime/harmony/envelope"
	"goa.design/harmony/runtime/harmony/harmonyerrors"
)

func TestParseSystemTextFrame(t *testing.T) {
	env, err := Parse("<|start|>system<|message|>You are Harmony MVP. Follow HRF.<|end|>")
	require.NoError(t, err)
	require.Len(t, env.Messages, 1)
	msg := env.Messages[0]
	require.Equal(t, envelope.RoleSystem, msg.Role)
	require.Equal(t, envelope.Channel(""), msg.Channel)
	require.Equal(t, envelope.ContentTypeText, msg.ContentType)
	require.Equal(t, "You are Harmony MVP. Follow HRF.", msg.Content)
	require.Equal(t, envelope.Termination(""), msg.Termination)
}

func TestParseToolCallFrame(t *testing.T) {
	text := "<|start|>assistant <|channel|>commentary to=demo.echo <|constrain|>json<|message|>" +
		`{"text":"hello from tool"}<|call|>`
	env, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, env.Messages, 1)
	msg := env.Messages[0]
	require.Equal(t, envelope.RoleAssistant, msg.Role)
	require.Equal(t, envelope.ChannelCommentary, msg.Channel)
	require.Equal(t, "demo.echo", msg.Recipient)
	require.Equal(t, envelope.ContentTypeJSON, msg.ContentType)
	require.Equal(t, envelope.TerminationCall, msg.Termination)
	require.Equal(t, map[string]any{"text": "hello from tool"}, msg.Content)
}

func TestParseAssistantChannelDefaults(t *testing.T) {
	// No channel, no call terminator: defaults to final.
	env, err := Parse("<|start|>assistant<|message|>done<|end|>")
	require.NoError(t, err)
	require.Equal(t, envelope.ChannelFinal, env.Messages[0].Channel)

	// No channel with a call terminator: routes to commentary.
	env, err = Parse(`<|start|>assistant<|message|>{"x":1}<|call|>`)
	require.NoError(t, err)
	require.Equal(t, envelope.ChannelCommentary, env.Messages[0].Channel)
	require.Equal(t, envelope.ContentTypeJSON, env.Messages[0].ContentType)
}

func TestParseScriptInference(t *testing.T) {
	text := "<|start|>assistant <|channel|>commentary<|message|>" +
		`{"steps":[{"type":"halt"}]}<|end|>`
	env, err := Parse(text)
	require.NoError(t, err)
	msg := env.Messages[0]
	require.Equal(t, envelope.ContentTypeScript, msg.ContentType)
	require.True(t, msg.IsScript())
	require.Equal(t, envelope.TerminationEnd, msg.Termination)
}

func TestParseStripsOuterNewlines(t *testing.T) {
	env, err := Parse("<|start|>user<|message|>\r\nhello\nworld\n<|end|>")
	require.NoError(t, err)
	require.Equal(t, "hello\nworld", env.Messages[0].Content)
}

func TestParseMultipleFrames(t *testing.T) {
	text := "<|start|>system<|message|>a<|end|>junk between frames" +
		"<|start|>user<|message|>b<|end|>"
	env, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, env.Messages, 2)
	require.Equal(t, "a", env.Messages[0].Content)
	require.Equal(t, "b", env.Messages[1].Content)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		text string
		code string
	}{
		{"missing message", "<|start|>system no message token<|end|>", harmonyerrors.CodeParseMissingMessage},
		{"missing terminator", "<|start|>system<|message|>body", harmonyerrors.CodeParseMissingTerminator},
		{"empty role", "<|start|><|message|>body<|end|>", harmonyerrors.CodeParseEmptyRole},
		{"invalid json", `<|start|>assistant <|channel|>commentary <|constrain|>json<|message|>{broken<|call|>`, harmonyerrors.CodeParseInvalidJSON},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.text)
			require.Error(t, err)
			require.Equal(t, tc.code, harmonyerrors.Code(err))
		})
	}
}

func TestRenderToolCallFrame(t *testing.T) {
	env := &envelope.Envelope{Version: envelope.CurrentVersion, Messages: []envelope.Message{{
		Role:        envelope.RoleAssistant,
		Channel:     envelope.ChannelCommentary,
		Recipient:   "demo.echo",
		ContentType: envelope.ContentTypeJSON,
		Termination: envelope.TerminationCall,
		Content:     map[string]any{"text": "hi"},
	}}}
	text, err := Render(env)
	require.NoError(t, err)
	require.Equal(t, "<|start|>assistant <|channel|>commentary to=demo.echo <|constrain|>json<|message|>"+
		`{"text":"hi"}<|call|>`+"\n", text)
}
