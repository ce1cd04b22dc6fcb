// Package executor runs harmony scripts step by step against an evaluation
// context, invoking the chat and tool collaborators as the steps demand. The
// interpreter is stateless across runs; all per-run state lives in the
// Request and the returned Result.
package executor

import (
	"context"
	"fmt"

	"goa.design/harmony/runtime/harmony/chat"
	"goa.design/harmony/runtime/harmony/envelope"
	"goa.design/harmony/runtime/harmony/eval"
	"goa.design/harmony/runtime/harmony/harmonyerrors"
	"goa.design/harmony/runtime/harmony/telemetry"
	"goa.design/harmony/runtime/harmony/tools"
)

type (
	// Interpreter executes scripts. Construct via New; a nil logger degrades
	// to the no-op logger.
	Interpreter struct {
		log telemetry.Logger
	}

	// Request carries everything one script run needs. Vars are merged over
	// the script's default vars; Input is the per-call input bag. History
	// seeds the chat context handed to the chat collaborator.
	Request struct {
		Script  *envelope.Script
		Vars    map[string]any
		Input   map[string]any
		History []chat.Entry
		Chat    chat.Service
		Tools   tools.Router
	}

	// Result is the outcome of a completed script run.
	Result struct {
		// Vars is the final variable bag, keyed by original casings.
		Vars map[string]any
		// FinalText is the user-visible reply, when one was produced.
		FinalText string
		// Halted reports whether a halt step terminated the run.
		Halted bool
		// Appended lists chat entries produced during the run (analysis
		// output and the final assistant reply), in order.
		Appended []chat.Entry
	}

	// runState threads the mutable run state through step execution.
	runState struct {
		ectx     *eval.Context
		history  []chat.Entry
		appended []chat.Entry
		final    string
	}
)

// summarizeInstruction is appended as a system entry when a script completes
// without producing final text, before the closing chat call.
const summarizeInstruction = "Summarize the results of the executed steps for the user."

// New constructs an Interpreter. Pass nil to disable logging.
func New(log telemetry.Logger) *Interpreter {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Interpreter{log: log}
}

// Run executes the script and returns the resulting vars, final text, and
// appended chat entries. It fails with MISSING_HARMONY_SCRIPT when no script
// is provided, NO_HARMONY_STEPS when the step list is empty, and
// HRF_EXECUTION_ERROR for evaluator, tool, and channel-rule violations.
func (it *Interpreter) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Script == nil {
		return nil, harmonyerrors.New(harmonyerrors.CodeMissingScript,
			"envelope has no harmony script to execute")
	}
	if len(req.Script.Steps) == 0 {
		return nil, harmonyerrors.New(harmonyerrors.CodeNoSteps,
			"harmony script has zero steps")
	}

	// Session vars override script defaults; per-call input sits alongside.
	seed := make(map[string]any, len(req.Script.Vars)+len(req.Vars))
	for k, v := range req.Script.Vars {
		seed[k] = v
	}
	for k, v := range req.Vars {
		seed[k] = v
	}
	state := &runState{
		ectx:    eval.NewContext(seed, req.Input),
		history: append([]chat.Entry(nil), req.History...),
	}

	halted, err := it.runSteps(ctx, req, state, req.Script.Steps)
	if err != nil {
		return nil, err
	}

	if state.final == "" && !halted {
		// The script produced no final output: ask the chat collaborator to
		// close the turn from the accumulated history.
		state.appendEntry(chat.Entry{Role: envelope.RoleSystem, Content: summarizeInstruction})
		reply, err := req.Chat.GetAssistantReply(ctx, state.history, nil)
		if err != nil {
			return nil, execError("chat", err)
		}
		state.final = reply
		state.appendEntry(chat.Entry{Role: envelope.RoleAssistant, Channel: envelope.ChannelFinal, Content: reply})
	}

	return &Result{
		Vars:      state.ectx.Vars(),
		FinalText: state.final,
		Halted:    halted,
		Appended:  state.appended,
	}, nil
}

// runSteps executes steps in order. It returns true when a halt step
// terminated execution; halts propagate out of nested branches.
func (it *Interpreter) runSteps(ctx context.Context, req Request, state *runState, steps []envelope.Step) (bool, error) {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		switch s := step.(type) {
		case envelope.ExtractInputStep:
			if err := it.runExtractInput(state, s); err != nil {
				return false, err
			}
		case envelope.ToolCallStep:
			if err := it.runToolCall(ctx, req, state, s); err != nil {
				return false, err
			}
		case envelope.IfStep:
			halted, err := it.runIf(ctx, req, state, s)
			if err != nil {
				return false, err
			}
			if halted {
				return true, nil
			}
		case envelope.AssistantMessageStep:
			if err := it.runAssistantMessage(ctx, req, state, s); err != nil {
				return false, err
			}
		case envelope.HaltStep:
			return true, nil
		default:
			return false, harmonyerrors.Newf(harmonyerrors.CodeExecutionError,
				"unsupported step type %T", step)
		}
	}
	return false, nil
}

func (it *Interpreter) runExtractInput(state *runState, step envelope.ExtractInputStep) error {
	for name, expr := range step.Vars {
		if err := eval.ValidateSyntax(expr); err != nil {
			return err
		}
		value, err := state.ectx.Resolve(expr)
		if err != nil {
			return execError("evaluate", err)
		}
		state.ectx.SetVar(name, value)
	}
	return nil
}

func (it *Interpreter) runToolCall(ctx context.Context, req Request, state *runState, step envelope.ToolCallStep) error {
	if step.Channel != envelope.ChannelCommentary {
		return harmonyerrors.Newf(harmonyerrors.CodeExecutionError,
			"tool-call channel must be %q, got %q", envelope.ChannelCommentary, step.Channel)
	}
	args, err := it.resolveArgs(state, step.Args)
	if err != nil {
		return err
	}
	it.log.Debug(ctx, "invoking tool", "recipient", step.Recipient)
	result, err := req.Tools.Invoke(ctx, tools.Ident(step.Recipient), args)
	if err != nil {
		return execError("tool", fmt.Errorf("invoke %q: %w", step.Recipient, err))
	}
	if step.SaveAs != "" {
		state.ectx.SetVar(step.SaveAs, result)
	}
	return nil
}

// resolveArgs evaluates tool-call arguments: string values starting with "$"
// are expressions, everything else passes verbatim.
func (it *Interpreter) resolveArgs(state *runState, args map[string]any) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		s, ok := value.(string)
		if !ok || len(s) == 0 || s[0] != '$' {
			out[key] = value
			continue
		}
		resolved, err := state.ectx.Resolve(s)
		if err != nil {
			return nil, execError("evaluate", err)
		}
		out[key] = resolved
	}
	return out, nil
}

func (it *Interpreter) runIf(ctx context.Context, req Request, state *runState, step envelope.IfStep) (bool, error) {
	if err := eval.ValidateSyntax(step.Condition); err != nil {
		return false, err
	}
	truthy, err := state.ectx.EvalBool(step.Condition)
	if err != nil {
		return false, execError("evaluate", err)
	}
	if truthy {
		return it.runSteps(ctx, req, state, step.Then)
	}
	return it.runSteps(ctx, req, state, step.Else)
}

func (it *Interpreter) runAssistantMessage(ctx context.Context, req Request, state *runState, step envelope.AssistantMessageStep) error {
	if step.Channel != envelope.ChannelAnalysis && step.Channel != envelope.ChannelFinal {
		return harmonyerrors.Newf(harmonyerrors.CodeExecutionError,
			"assistant-message channel must be %q or %q, got %q",
			envelope.ChannelAnalysis, envelope.ChannelFinal, step.Channel)
	}
	text := step.Content
	if step.ContentTemplate != "" {
		text = state.ectx.RenderTemplate(step.ContentTemplate)
	}

	if step.Channel == envelope.ChannelAnalysis {
		// Analysis output joins the chat history but is never user-visible.
		state.appendEntry(chat.Entry{Role: envelope.RoleAssistant, Channel: envelope.ChannelAnalysis, Content: text})
		return nil
	}

	// Final channel: a placeholder body ("" or ".") delegates to the chat
	// collaborator.
	if text != "" && text != "." {
		state.final = text
		state.appendEntry(chat.Entry{Role: envelope.RoleAssistant, Channel: envelope.ChannelFinal, Content: text})
		return nil
	}
	reply, err := req.Chat.GetAssistantReply(ctx, state.history, nil)
	if err != nil {
		return execError("chat", err)
	}
	state.final = reply
	state.appendEntry(chat.Entry{Role: envelope.RoleAssistant, Channel: envelope.ChannelFinal, Content: reply})
	return nil
}

func (s *runState) appendEntry(entry chat.Entry) {
	s.history = append(s.history, entry)
	s.appended = append(s.appended, entry)
}

// execError wraps a collaborator or evaluator failure into the structured
// execution error, preserving the already-coded error when there is one.
func execError(kind string, err error) *harmonyerrors.Error {
	if err == nil {
		return nil
	}
	if code := harmonyerrors.Code(err); code != "" {
		return harmonyerrors.FromError(code, err)
	}
	return harmonyerrors.Wrap(harmonyerrors.CodeExecutionError, err.Error(), err).
		WithDetail("kind", kind)
}
