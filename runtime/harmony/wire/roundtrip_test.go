package wire

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"goa.design/harmony/runtime/harmony/envelope"
)

// TestParseRenderRoundTrip verifies that rendering an envelope and parsing
// the result reproduces the original messages.
func TestParseRenderRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genBody := gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 })
	genRole := gen.OneConstOf(
		envelope.RoleSystem, envelope.RoleDeveloper, envelope.RoleUser, envelope.RoleAssistant)

	properties.Property("text frames round-trip", prop.ForAll(
		func(role, body string) bool {
			in := &envelope.Envelope{Version: envelope.CurrentVersion, Messages: []envelope.Message{{
				Role:        role,
				ContentType: envelope.ContentTypeText,
				Content:     body,
			}}}
			text, err := Render(in)
			if err != nil {
				return false
			}
			out, err := Parse(text)
			if err != nil || len(out.Messages) != 1 {
				return false
			}
			got := out.Messages[0]
			wantChannel := envelope.Channel("")
			if role == envelope.RoleAssistant {
				wantChannel = envelope.ChannelFinal
			}
			return got.Role == role &&
				got.Channel == wantChannel &&
				got.ContentType == envelope.ContentTypeText &&
				got.Content == body &&
				got.Termination == envelope.Termination("")
		},
		genRole, genBody,
	))

	properties.Property("tool-call frames round-trip", prop.ForAll(
		func(recipient, value string) bool {
			in := &envelope.Envelope{Version: envelope.CurrentVersion, Messages: []envelope.Message{{
				Role:        envelope.RoleAssistant,
				Channel:     envelope.ChannelCommentary,
				Recipient:   "demo." + recipient,
				ContentType: envelope.ContentTypeJSON,
				Termination: envelope.TerminationCall,
				Content:     map[string]any{"text": value},
			}}}
			text, err := Render(in)
			if err != nil {
				return false
			}
			out, err := Parse(text)
			if err != nil || len(out.Messages) != 1 {
				return false
			}
			got := out.Messages[0]
			obj, ok := got.Content.(map[string]any)
			return got.Role == envelope.RoleAssistant &&
				got.Channel == envelope.ChannelCommentary &&
				got.Recipient == "demo."+recipient &&
				got.Termination == envelope.TerminationCall &&
				ok && obj["text"] == value
		},
		gen.Identifier(), gen.AlphaString(),
	))

	properties.TestingRun(t)
}
