package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harmony/runtime/harmony/chat"
	"goa.design/harmony/runtime/harmony/envelope"
	"goa.design/harmony/runtime/harmony/harmonyerrors"
	"goa.design/harmony/runtime/harmony/tools"
)

// chatStub returns a fixed reply and counts invocations.
type chatStub struct {
	reply string
	calls int
}

func (c *chatStub) GetAssistantReply(context.Context, []chat.Entry, chat.Filter) (string, error) {
	c.calls++
	return c.reply, nil
}

func TestRunRequiresScriptAndSteps(t *testing.T) {
	it := New(nil)
	ctx := context.Background()

	_, err := it.Run(ctx, Request{})
	require.Equal(t, harmonyerrors.CodeMissingScript, harmonyerrors.Code(err))

	_, err = it.Run(ctx, Request{Script: &envelope.Script{}})
	require.Equal(t, harmonyerrors.CodeNoSteps, harmonyerrors.Code(err))
}

func TestRunToolCallAndPlaceholderFinal(t *testing.T) {
	reg := tools.NewRegistry()
	var gotArgs map[string]any
	require.NoError(t, reg.Register("demo.echo", func(_ context.Context, args map[string]any) (any, error) {
		gotArgs = args
		return map[string]any{"echo": args["text"]}, nil
	}))
	cs := &chatStub{reply: "Final answer from LLM."}

	res, err := New(nil).Run(context.Background(), Request{
		Script: &envelope.Script{Steps: []envelope.Step{
			envelope.ToolCallStep{Recipient: "demo.echo", Channel: envelope.ChannelCommentary,
				Args: map[string]any{"text": "hello from tool"}, SaveAs: "toolResult"},
			envelope.AssistantMessageStep{Channel: envelope.ChannelFinal, Content: "."},
		}},
		Chat:  cs,
		Tools: reg,
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"text": "hello from tool"}, gotArgs)
	require.Equal(t, "Final answer from LLM.", res.FinalText)
	require.Equal(t, map[string]any{"echo": "hello from tool"}, res.Vars["toolResult"])
	require.Equal(t, 1, cs.calls, "placeholder final delegates to chat exactly once")
	require.False(t, res.Halted)
}

func TestRunResolvesExpressionArgs(t *testing.T) {
	reg := tools.NewRegistry()
	var gotArgs map[string]any
	require.NoError(t, reg.Register("demo.search", func(_ context.Context, args map[string]any) (any, error) {
		gotArgs = args
		return nil, nil
	}))

	_, err := New(nil).Run(context.Background(), Request{
		Script: &envelope.Script{Steps: []envelope.Step{
			envelope.ExtractInputStep{Vars: map[string]string{"q": "$input.query"}},
			envelope.ToolCallStep{Recipient: "demo.search", Channel: envelope.ChannelCommentary,
				Args: map[string]any{"query": "$vars.q", "limit": 5.0}},
			envelope.AssistantMessageStep{Channel: envelope.ChannelFinal, Content: "done"},
		}},
		Input: map[string]any{"query": "weather"},
		Chat:  &chatStub{},
		Tools: reg,
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"query": "weather", "limit": 5.0}, gotArgs)
}

func TestRunTemplateFinal(t *testing.T) {
	res, err := New(nil).Run(context.Background(), Request{
		Script: &envelope.Script{
			Vars: map[string]any{"name": "default"},
			Steps: []envelope.Step{
				envelope.AssistantMessageStep{Channel: envelope.ChannelFinal,
					ContentTemplate: "Hello {{ vars.name }}"},
			},
		},
		Vars: map[string]any{"name": "ada"},
		Chat: &chatStub{},
	})
	require.NoError(t, err)
	require.Equal(t, "Hello ada", res.FinalText, "run vars override script defaults")
}

func TestRunIfBranchesAndHalt(t *testing.T) {
	cs := &chatStub{reply: "unused"}
	res, err := New(nil).Run(context.Background(), Request{
		Script: &envelope.Script{Steps: []envelope.Step{
			envelope.IfStep{
				Condition: "$vars.count > 0",
				Then:      []envelope.Step{envelope.HaltStep{}},
				Else: []envelope.Step{envelope.AssistantMessageStep{
					Channel: envelope.ChannelFinal, Content: "else branch"}},
			},
		}},
		Vars: map[string]any{"count": 3.0},
		Chat: cs,
	})
	require.NoError(t, err)
	require.True(t, res.Halted, "halt propagates out of the branch")
	require.Empty(t, res.FinalText)
	require.Equal(t, 0, cs.calls, "halted runs skip the summarize fallback")
}

func TestRunSummarizeFallback(t *testing.T) {
	cs := &chatStub{reply: "summary"}
	res, err := New(nil).Run(context.Background(), Request{
		Script: &envelope.Script{Steps: []envelope.Step{
			envelope.AssistantMessageStep{Channel: envelope.ChannelAnalysis, Content: "thinking"},
		}},
		Chat: cs,
	})
	require.NoError(t, err)
	require.Equal(t, "summary", res.FinalText)
	require.Equal(t, 1, cs.calls)
	// Analysis entry, summarize instruction, and the closing reply.
	require.Len(t, res.Appended, 3)
	require.Equal(t, envelope.ChannelAnalysis, res.Appended[0].Channel)
	require.Equal(t, summarizeInstruction, res.Appended[1].Content)
}

func TestRunChannelRules(t *testing.T) {
	ctx := context.Background()

	_, err := New(nil).Run(ctx, Request{
		Script: &envelope.Script{Steps: []envelope.Step{
			envelope.ToolCallStep{Recipient: "demo.echo", Channel: envelope.ChannelFinal},
		}},
		Chat:  &chatStub{},
		Tools: tools.NewRegistry(),
	})
	require.Equal(t, harmonyerrors.CodeExecutionError, harmonyerrors.Code(err))

	_, err = New(nil).Run(ctx, Request{
		Script: &envelope.Script{Steps: []envelope.Step{
			envelope.AssistantMessageStep{Channel: envelope.ChannelCommentary, Content: "x"},
		}},
		Chat: &chatStub{},
	})
	require.Equal(t, harmonyerrors.CodeExecutionError, harmonyerrors.Code(err))
}

func TestRunInvalidExpressionSyntax(t *testing.T) {
	_, err := New(nil).Run(context.Background(), Request{
		Script: &envelope.Script{Steps: []envelope.Step{
			envelope.ExtractInputStep{Vars: map[string]string{"x": "query"}},
		}},
		Chat: &chatStub{},
	})
	require.Error(t, err)
	require.Equal(t, harmonyerrors.CodeExecutionError, harmonyerrors.Code(err))
	var herr *harmonyerrors.Error
	require.ErrorAs(t, err, &herr)
	require.Equal(t, "Invalid expression syntax", herr.Message)
}
