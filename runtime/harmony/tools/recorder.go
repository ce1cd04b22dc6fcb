package tools

import (
	"context"
	"time"

	"goa.design/harmony/runtime/harmony/harmonyerrors"
)

type (
	// Trace captures a single tool invocation observed by the Recorder. Args
	// are a defensive copy taken before dispatch; either Result or the error
	// fields are populated depending on the outcome.
	Trace struct {
		// Recipient is the invoked tool identifier.
		Recipient Ident
		// Args is a copy of the invocation arguments.
		Args map[string]any
		// StartedAt records when dispatch began.
		StartedAt time.Time
		// CompletedAt records when dispatch returned.
		CompletedAt time.Time
		// Succeeded reports whether the invocation returned without error.
		Succeeded bool
		// Result is the tool return value on success.
		Result any
		// ErrorKind is the stable error code on failure, when one is carried.
		ErrorKind string
		// ErrorMessage is the failure message on failure.
		ErrorMessage string
	}

	// Sink receives completed traces. The session service supplies a sink
	// that attaches traces as artifacts and transcript lines.
	Sink func(Trace)

	// Recorder decorates a Router to capture per-invocation traces. Errors
	// are recorded and re-raised unchanged.
	Recorder struct {
		next Router
		sink Sink
		now  func() time.Time
	}
)

var _ Router = (*Recorder)(nil)

// NewRecorder wraps next so every invocation is delivered to sink. A nil
// sink disables capture while still delegating invocations.
func NewRecorder(next Router, sink Sink) *Recorder {
	return &Recorder{next: next, sink: sink, now: time.Now}
}

// Invoke dispatches through the wrapped router, delivering a Trace to the
// sink on both success and failure. Failures propagate to the caller.
func (r *Recorder) Invoke(ctx context.Context, recipient Ident, args map[string]any) (any, error) {
	trace := Trace{
		Recipient: recipient,
		Args:      copyArgs(args),
		StartedAt: r.now(),
	}
	result, err := r.next.Invoke(ctx, recipient, args)
	trace.CompletedAt = r.now()
	if err != nil {
		trace.ErrorKind = harmonyerrors.Code(err)
		trace.ErrorMessage = err.Error()
	} else {
		trace.Succeeded = true
		trace.Result = result
	}
	if r.sink != nil {
		r.sink(trace)
	}
	return result, err
}

// copyArgs deep-copies the argument map so a tool mutating nested values
// after dispatch cannot alter the recorded trace.
func copyArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = copyValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = copyValue(inner)
		}
		return out
	default:
		return v
	}
}
