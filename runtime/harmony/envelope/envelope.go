// Package envelope defines the structured conversation model executed by the
// harmony engine. An Envelope is an immutable ordered list of Messages; a
// Message whose content type is harmony-script embeds a Script of typed
// steps. The package owns the concrete data types and their JSON codec; wire
// parsing and canonicalization live in the wire and canon packages.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

type (
	// Channel is the routing tag on a Message. Commentary implies tool-side
	// traffic; final is user-visible. The empty value means absent.
	Channel string

	// ContentType classifies a Message body. The empty value means absent
	// (inferred during canonicalization).
	ContentType string

	// Termination is the frame terminator recorded for assistant commentary
	// messages. The empty value means absent.
	Termination string

	// Message is a single entry of an Envelope. Content holds a decoded JSON
	// value: a string for text content, a map for json/harmony-script content.
	Message struct {
		// Role is the speaker: system, developer, user, assistant, or an
		// opaque tool name.
		Role string `json:"role"`
		// Channel routes the message. Required (possibly empty) in canonical form.
		Channel Channel `json:"channel"`
		// Recipient is the plugin.function tool identifier. Present iff the
		// message is assistant commentary.
		Recipient string `json:"recipient,omitempty"`
		// ContentType classifies Content.
		ContentType ContentType `json:"contentType"`
		// Termination is the frame terminator. Meaningful only for assistant
		// commentary; cleared elsewhere.
		Termination Termination `json:"termination,omitempty"`
		// Content is the decoded body.
		Content any `json:"content"`
	}

	// Envelope is an ordered, immutable sequence of Messages plus a format
	// version. Envelopes are registered under an opaque script id and never
	// mutated afterwards.
	Envelope struct {
		// Version identifies the envelope format revision.
		Version string `json:"version,omitempty"`
		// Messages is the ordered message list.
		Messages []Message `json:"messages"`
	}
)

// Role constants. Roles are open-ended (tool names are roles too); these
// cover the reserved values.
const (
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Channel values.
const (
	ChannelAnalysis   Channel = "analysis"
	ChannelCommentary Channel = "commentary"
	ChannelFinal      Channel = "final"
)

// ContentType values.
const (
	ContentTypeText   ContentType = "text"
	ContentTypeJSON   ContentType = "json"
	ContentTypeScript ContentType = "harmony-script"
)

// Termination values.
const (
	TerminationCall   Termination = "call"
	TerminationReturn Termination = "return"
	TerminationEnd    Termination = "end"
)

// CurrentVersion is the envelope format revision produced by this engine.
const CurrentVersion = "1.0"

// IsAssistantCommentary reports whether the message carries assistant
// commentary, the only shape for which recipient and termination are
// meaningful.
func (m *Message) IsAssistantCommentary() bool {
	return strings.EqualFold(m.Role, RoleAssistant) && m.Channel == ChannelCommentary
}

// IsToolCall reports whether the message declares a tool invocation.
func (m *Message) IsToolCall() bool {
	return m.IsAssistantCommentary() && m.Termination == TerminationCall
}

// IsScript reports whether the message embeds a harmony script body.
func (m *Message) IsScript() bool {
	if m.ContentType != ContentTypeScript {
		return false
	}
	_, ok := m.Content.(map[string]any)
	return ok
}

// IsContextOnly reports whether the message is plain conversational context:
// no termination, text (or absent) content type, string content.
func (m *Message) IsContextOnly() bool {
	if m.Termination != "" {
		return false
	}
	if m.ContentType != "" && m.ContentType != ContentTypeText {
		return false
	}
	_, ok := m.Content.(string)
	return ok
}

// Text returns the string content of the message, or "" for non-text bodies.
func (m *Message) Text() string {
	s, _ := m.Content.(string)
	return s
}

// DecodeScript materializes the Script embedded in the message body. The
// body is re-encoded through JSON so that both raw map values and previously
// typed values decode uniformly.
func (m *Message) DecodeScript() (*Script, error) {
	if !m.IsScript() {
		return nil, fmt.Errorf("message content is not a harmony script (contentType %q)", m.ContentType)
	}
	raw, err := json.Marshal(m.Content)
	if err != nil {
		return nil, fmt.Errorf("encode script body: %w", err)
	}
	var s Script
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode script body: %w", err)
	}
	return &s, nil
}

// Clone returns a deep copy of the envelope. Message content values are
// copied through JSON to detach nested maps and slices.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	out := &Envelope{Version: e.Version, Messages: make([]Message, len(e.Messages))}
	copy(out.Messages, e.Messages)
	for i := range out.Messages {
		out.Messages[i].Content = cloneValue(out.Messages[i].Content)
	}
	return out
}

// cloneValue deep-copies a decoded JSON value. Scalars are returned as-is.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
