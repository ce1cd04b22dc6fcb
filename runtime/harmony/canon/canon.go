// Package canon normalizes envelopes into their canonical form and owns the
// JSON schema validation boundary. The canonical JSON instance has a single
// root property "messages"; each message carries role, channel, contentType,
// and content, plus recipient and termination exactly when the message is
// assistant commentary. Schema evaluation is performed by a Validator that
// returns nil or a structured error.
package canon

import (
	"strings"

	"goa.design/harmony/runtime/harmony/envelope"
	"goa.design/harmony/runtime/harmony/harmonyerrors"
)

// Canonicalize returns a normalized deep copy of env: roles lower-cased and
// trimmed, channels and content types defaulted, text bodies stripped of
// outer CR/LF, and termination cleared outside assistant commentary. It
// rejects messages that violate the assistant-commentary rule.
func Canonicalize(env *envelope.Envelope) (*envelope.Envelope, error) {
	if env == nil {
		return nil, harmonyerrors.New(harmonyerrors.CodeSchemaEnvelopeFailed, "envelope is nil")
	}
	out := env.Clone()
	if out.Version == "" {
		out.Version = envelope.CurrentVersion
	}
	for i := range out.Messages {
		msg := &out.Messages[i]
		if err := canonicalizeMessage(msg); err != nil {
			return nil, err.WithDetail("index", i)
		}
	}
	return out, nil
}

func canonicalizeMessage(msg *envelope.Message) *harmonyerrors.Error {
	msg.Role = strings.ToLower(strings.TrimSpace(msg.Role))
	if msg.Role == "" {
		return harmonyerrors.New(harmonyerrors.CodeSchemaEnvelopeFailed, "message role is empty")
	}

	// Default the channel the way the wire parser does: assistant messages
	// route to final unless they are tool calls; other roles keep it absent.
	if msg.Channel == "" && msg.Role == envelope.RoleAssistant {
		if msg.Termination == envelope.TerminationCall {
			msg.Channel = envelope.ChannelCommentary
		} else {
			msg.Channel = envelope.ChannelFinal
		}
	}

	if msg.ContentType == "" {
		msg.ContentType = inferContentType(msg)
	}

	switch msg.ContentType {
	case envelope.ContentTypeText:
		if s, ok := msg.Content.(string); ok {
			msg.Content = strings.Trim(s, "\r\n")
		} else {
			return harmonyerrors.New(harmonyerrors.CodeSchemaEnvelopeFailed,
				"text message content must be a string")
		}
	case envelope.ContentTypeJSON, envelope.ContentTypeScript:
		// Preserved JSON structure is re-emitted as-is.
	default:
		return harmonyerrors.Newf(harmonyerrors.CodeSchemaEnvelopeFailed,
			"unknown content type %q", msg.ContentType)
	}

	if msg.IsAssistantCommentary() {
		if msg.Termination == "" {
			return harmonyerrors.New(harmonyerrors.CodeSchemaEnvelopeFailed,
				"assistant commentary message requires a termination")
		}
		if msg.Termination == envelope.TerminationCall && msg.Recipient == "" {
			return harmonyerrors.New(harmonyerrors.CodeSchemaEnvelopeFailed,
				"assistant commentary tool call requires a recipient")
		}
	} else {
		// Recipient and termination are meaningful only for assistant commentary.
		msg.Recipient = ""
		msg.Termination = ""
	}
	return nil
}

// inferContentType mirrors the wire parser's body-shape inference for
// envelopes constructed programmatically.
func inferContentType(msg *envelope.Message) envelope.ContentType {
	if msg.IsAssistantCommentary() {
		switch msg.Termination {
		case envelope.TerminationCall, envelope.TerminationReturn:
			return envelope.ContentTypeJSON
		}
		if obj, ok := msg.Content.(map[string]any); ok {
			if _, hasSteps := obj["steps"]; hasSteps {
				return envelope.ContentTypeScript
			}
			return envelope.ContentTypeJSON
		}
	}
	if _, ok := msg.Content.(map[string]any); ok {
		return envelope.ContentTypeJSON
	}
	return envelope.ContentTypeText
}
