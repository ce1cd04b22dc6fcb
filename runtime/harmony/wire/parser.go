package wire

import (
	"encoding/json"
	"strings"

	"goa.design/harmony/runtime/harmony/envelope"
	"goa.design/harmony/runtime/harmony/harmonyerrors"
)

// frame is a single parsed wire frame before inference.
type frame struct {
	role        string
	channel     string
	recipient   string
	contentType string
	body        string
	termination envelope.Termination
}

// Parse scans text for frames and returns the structured envelope. It fails
// with HRF_PARSE_* codes on malformed frames and HRF_PARSE_INVALID_JSON when
// a json or harmony-script body does not decode.
func Parse(text string) (*envelope.Envelope, error) {
	env := &envelope.Envelope{Version: envelope.CurrentVersion}
	pos := 0
	for {
		rel := strings.Index(text[pos:], TokenStart)
		if rel < 0 {
			break
		}
		start := pos + rel + len(TokenStart)
		f, next, err := parseFrame(text, start)
		if err != nil {
			return nil, err
		}
		msg, err := resolveFrame(f)
		if err != nil {
			return nil, err
		}
		env.Messages = append(env.Messages, msg)
		pos = next
	}
	return env, nil
}

// parseFrame parses one frame beginning immediately after <|start|>. It
// returns the raw frame and the offset just past its terminator.
func parseFrame(text string, start int) (frame, int, error) {
	rel := strings.Index(text[start:], TokenMessage)
	if rel < 0 {
		return frame{}, 0, harmonyerrors.New(harmonyerrors.CodeParseMissingMessage,
			"frame is missing the <|message|> token")
	}
	header := text[start : start+rel]
	bodyStart := start + rel + len(TokenMessage)

	term, termOff, termLen := earliestTerminator(text[bodyStart:])
	if termOff < 0 {
		return frame{}, 0, harmonyerrors.New(harmonyerrors.CodeParseMissingTerminator,
			"frame body is missing a terminator token")
	}

	f, err := parseHeader(header)
	if err != nil {
		return frame{}, 0, err
	}
	// Only outer CR/LF is stripped; inner whitespace is preserved verbatim.
	f.body = strings.Trim(text[bodyStart:bodyStart+termOff], "\r\n")
	f.termination = term
	return f, bodyStart + termOff + termLen, nil
}

// earliestTerminator locates the first of <|end|>, <|call|>, <|return|> in s.
// It returns the termination value, the offset, and the token length, or a
// negative offset when no terminator is present.
func earliestTerminator(s string) (envelope.Termination, int, int) {
	term, off, length := envelope.Termination(""), -1, 0
	for _, cand := range []struct {
		token string
		value envelope.Termination
	}{
		{TokenEnd, envelope.TerminationEnd},
		{TokenCall, envelope.TerminationCall},
		{TokenReturn, envelope.TerminationReturn},
	} {
		i := strings.Index(s, cand.token)
		if i >= 0 && (off < 0 || i < off) {
			term, off, length = cand.value, i, len(cand.token)
		}
	}
	return term, off, length
}

// parseHeader splits a frame header into role, channel, recipient, and
// constrained content type.
func parseHeader(header string) (frame, error) {
	var f frame
	chIdx := strings.Index(header, TokenChannel)
	conIdx := strings.Index(header, TokenConstrain)

	roleEnd := len(header)
	if chIdx >= 0 && chIdx < roleEnd {
		roleEnd = chIdx
	}
	if conIdx >= 0 && conIdx < roleEnd {
		roleEnd = conIdx
	}
	f.role = strings.TrimSpace(header[:roleEnd])
	if f.role == "" {
		return frame{}, harmonyerrors.New(harmonyerrors.CodeParseEmptyRole,
			"frame header has an empty role")
	}

	if chIdx >= 0 {
		seg := header[chIdx+len(TokenChannel):]
		if conIdx > chIdx {
			seg = header[chIdx+len(TokenChannel) : conIdx]
		}
		fields := strings.Fields(seg)
		if len(fields) > 0 {
			f.channel = fields[0]
		}
		for _, fld := range fields[1:] {
			if strings.HasPrefix(fld, "to=") {
				f.recipient = strings.TrimPrefix(fld, "to=")
				break
			}
		}
	}

	if conIdx >= 0 {
		seg := header[conIdx+len(TokenConstrain):]
		if chIdx > conIdx {
			seg = header[conIdx+len(TokenConstrain) : chIdx]
		}
		fields := strings.Fields(seg)
		if len(fields) > 0 {
			f.contentType = fields[0]
		}
	}
	return f, nil
}

// resolveFrame applies the channel and content type inference rules and
// decodes the body into the message content value.
func resolveFrame(f frame) (envelope.Message, error) {
	role := strings.ToLower(strings.TrimSpace(f.role))
	channel := envelope.Channel(f.channel)

	// Assistant messages default to the final channel unless the body is a
	// tool call, which routes to commentary. Other roles keep channel absent.
	if channel == "" && role == envelope.RoleAssistant {
		if f.termination == envelope.TerminationCall {
			channel = envelope.ChannelCommentary
		} else {
			channel = envelope.ChannelFinal
		}
	}

	contentType := envelope.ContentType(f.contentType)
	if contentType == "" {
		contentType = inferContentType(role, channel, f.termination, f.body)
	}

	msg := envelope.Message{
		Role:        role,
		Channel:     channel,
		Recipient:   f.recipient,
		ContentType: contentType,
	}

	switch contentType {
	case envelope.ContentTypeJSON, envelope.ContentTypeScript:
		var value any
		if err := json.Unmarshal([]byte(f.body), &value); err != nil {
			return envelope.Message{}, harmonyerrors.Wrap(harmonyerrors.CodeParseInvalidJSON,
				"frame body is not valid JSON", err)
		}
		msg.Content = value
	default:
		msg.Content = f.body
	}

	// Termination is meaningful only for assistant commentary.
	if msg.IsAssistantCommentary() {
		msg.Termination = f.termination
	}
	return msg, nil
}

// inferContentType picks the effective content type when the header carries
// no <|constrain|> clause.
func inferContentType(role string, channel envelope.Channel, term envelope.Termination, body string) envelope.ContentType {
	if role != envelope.RoleAssistant || channel != envelope.ChannelCommentary {
		return envelope.ContentTypeText
	}
	switch term {
	case envelope.TerminationCall, envelope.TerminationReturn:
		return envelope.ContentTypeJSON
	}
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") {
		if strings.Contains(trimmed, `"steps"`) {
			return envelope.ContentTypeScript
		}
		return envelope.ContentTypeJSON
	}
	return envelope.ContentTypeText
}
