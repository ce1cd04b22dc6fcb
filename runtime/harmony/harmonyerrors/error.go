// Package harmonyerrors provides the structured error type shared by the
// harmony engine. Every failure surfaced across a package boundary carries a
// stable string code that callers match on, a human-readable message, and
// optional structured details. Errors may be nested via Cause to retain rich
// diagnostics across layers while supporting errors.Is/As.
package harmonyerrors

import (
	"errors"
	"fmt"
)

// Stable error codes. Callers match on Code, never on message text.
const (
	// CodeParseMissingMessage indicates a frame without a <|message|> token.
	CodeParseMissingMessage = "HRF_PARSE_MISSING_MESSAGE"
	// CodeParseMissingTerminator indicates a frame body without a terminator token.
	CodeParseMissingTerminator = "HRF_PARSE_MISSING_TERMINATOR"
	// CodeParseEmptyRole indicates a frame header with an empty role.
	CodeParseEmptyRole = "HRF_PARSE_EMPTY_ROLE"
	// CodeParseInvalidJSON indicates a json/harmony-script body that is not valid JSON.
	CodeParseInvalidJSON = "HRF_PARSE_INVALID_JSON"
	// CodeSchemaEnvelopeFailed indicates the canonical envelope schema rejected the input.
	CodeSchemaEnvelopeFailed = "HRF_SCHEMA_ENVELOPE_FAILED"
	// CodeSchemaScriptFailed indicates the embedded script schema rejected the input.
	CodeSchemaScriptFailed = "HRF_SCHEMA_SCRIPT_FAILED"
	// CodeMissingScript indicates execution expected a harmony script and found none.
	CodeMissingScript = "MISSING_HARMONY_SCRIPT"
	// CodeNoSteps indicates a harmony script with zero steps.
	CodeNoSteps = "NO_HARMONY_STEPS"
	// CodeExecutionError indicates an evaluator, tool-call, or channel-rule
	// violation during step execution.
	CodeExecutionError = "HRF_EXECUTION_ERROR"
	// CodeMissingTool indicates required tool recipients are unavailable.
	CodeMissingTool = "MISSING_TOOL"
	// CodeServiceError indicates an unexpected failure inside the session service.
	CodeServiceError = "EXECUTION_SERVICE_ERROR"
)

// Error is the structured engine error. The zero value is not meaningful;
// construct instances via New, Newf, or Wrap.
type Error struct {
	// Code is the stable error code callers match on.
	Code string
	// Message is the human-readable summary of the failure.
	Message string
	// Details carries optional structured diagnostics (e.g. exception kind).
	Details map[string]any
	// Cause links to the underlying error, enabling chains with errors.Is/As.
	Cause error
}

// New constructs an Error with the provided code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error that records an underlying cause. The cause remains
// reachable through errors.Is/As via Unwrap.
func Wrap(code, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithDetail returns the receiver with the given detail attached. The
// receiver is mutated and returned to allow chained construction.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying cause to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error with the same code. Message and
// details are diagnostic and do not participate in identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// Code extracts the stable code from err, or "" when err does not carry one.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

// FromError converts an arbitrary error into an *Error with the given code.
// When err already carries a code it is returned unchanged.
func FromError(code string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(code, err.Error(), err)
}
