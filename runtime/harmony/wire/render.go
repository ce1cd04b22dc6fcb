package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"goa.design/harmony/runtime/harmony/envelope"
)

// Render emits the wire text for an envelope, one frame per message. Text
// bodies are emitted verbatim; json and harmony-script bodies are emitted as
// compact JSON. Messages without a termination close with <|end|>.
func Render(env *envelope.Envelope) (string, error) {
	if env == nil {
		return "", nil
	}
	var sb strings.Builder
	for i := range env.Messages {
		msg := &env.Messages[i]
		sb.WriteString(TokenStart)
		sb.WriteString(msg.Role)
		if msg.Channel != "" {
			sb.WriteString(" ")
			sb.WriteString(TokenChannel)
			sb.WriteString(string(msg.Channel))
			if msg.Recipient != "" {
				sb.WriteString(" to=")
				sb.WriteString(msg.Recipient)
			}
		}
		if msg.ContentType != "" {
			sb.WriteString(" ")
			sb.WriteString(TokenConstrain)
			sb.WriteString(string(msg.ContentType))
		}
		sb.WriteString(TokenMessage)

		body, err := renderBody(msg)
		if err != nil {
			return "", fmt.Errorf("render messages[%d]: %w", i, err)
		}
		sb.WriteString(body)

		switch msg.Termination {
		case envelope.TerminationCall:
			sb.WriteString(TokenCall)
		case envelope.TerminationReturn:
			sb.WriteString(TokenReturn)
		default:
			sb.WriteString(TokenEnd)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func renderBody(msg *envelope.Message) (string, error) {
	switch msg.ContentType {
	case envelope.ContentTypeJSON, envelope.ContentTypeScript:
		raw, err := json.Marshal(msg.Content)
		if err != nil {
			return "", fmt.Errorf("encode body: %w", err)
		}
		return string(raw), nil
	default:
		if s, ok := msg.Content.(string); ok {
			return s, nil
		}
		raw, err := json.Marshal(msg.Content)
		if err != nil {
			return "", fmt.Errorf("encode body: %w", err)
		}
		return string(raw), nil
	}
}
