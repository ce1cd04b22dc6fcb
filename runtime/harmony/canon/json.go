package canon

import (
	"encoding/json"
	"fmt"

	"goa.design/harmony/runtime/harmony/envelope"
)

// canonicalMessage is the wire shape of a canonical message. Recipient and
// termination are pointers so that they are present (possibly empty) exactly
// for assistant commentary messages and absent otherwise.
type canonicalMessage struct {
	Role        string                `json:"role"`
	Channel     envelope.Channel      `json:"channel"`
	ContentType envelope.ContentType  `json:"contentType"`
	Content     any                   `json:"content"`
	Recipient   *string               `json:"recipient,omitempty"`
	Termination *envelope.Termination `json:"termination,omitempty"`
}

type canonicalEnvelope struct {
	Messages []canonicalMessage `json:"messages"`
}

// MarshalEnvelope encodes the canonical JSON instance for env: a root object
// with the single property "messages".
func MarshalEnvelope(env *envelope.Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("envelope is nil")
	}
	doc := canonicalEnvelope{Messages: make([]canonicalMessage, len(env.Messages))}
	for i := range env.Messages {
		msg := &env.Messages[i]
		cm := canonicalMessage{
			Role:        msg.Role,
			Channel:     msg.Channel,
			ContentType: msg.ContentType,
			Content:     msg.Content,
		}
		if msg.IsAssistantCommentary() {
			recipient := msg.Recipient
			termination := msg.Termination
			cm.Recipient = &recipient
			cm.Termination = &termination
		}
		doc.Messages[i] = cm
	}
	return json.Marshal(doc)
}

// UnmarshalEnvelope decodes a canonical JSON instance back into an envelope.
func UnmarshalEnvelope(data []byte) (*envelope.Envelope, error) {
	var doc canonicalEnvelope
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode canonical envelope: %w", err)
	}
	env := &envelope.Envelope{
		Version:  envelope.CurrentVersion,
		Messages: make([]envelope.Message, len(doc.Messages)),
	}
	for i, cm := range doc.Messages {
		msg := envelope.Message{
			Role:        cm.Role,
			Channel:     cm.Channel,
			ContentType: cm.ContentType,
			Content:     cm.Content,
		}
		if cm.Recipient != nil {
			msg.Recipient = *cm.Recipient
		}
		if cm.Termination != nil {
			msg.Termination = *cm.Termination
		}
		env.Messages[i] = msg
	}
	return env, nil
}
