// Package chat defines the language-model collaborator contract consumed by
// the step interpreter and the session service. The engine never talks to a
// provider directly; it hands an ordered history to a Service and receives
// the assistant reply text. Provider adapters live under features/chat.
package chat

import (
	"context"

	"goa.design/harmony/runtime/harmony/envelope"
)

type (
	// Entry is one ordered element of the chat history handed to a Service.
	Entry struct {
		// Role is the normalized speaker role.
		Role string
		// Content is the entry text.
		Content string
		// Channel is the originating message channel, when known.
		Channel envelope.Channel
		// ContentType classifies the originating content, when known.
		ContentType envelope.ContentType
		// Recipient is the tool identifier for commentary entries, when known.
		Recipient string
		// Termination is the originating frame terminator, when known.
		Termination envelope.Termination
		// SourceIndex is the envelope index that produced the entry, when known.
		SourceIndex *int
	}

	// Filter decides whether an entry is dispatched to the provider. A nil
	// Filter means DefaultFilter.
	Filter func(Entry) bool

	// Service produces assistant replies from an ordered history. The
	// provided filter (or DefaultFilter when nil) drops entries before
	// dispatch.
	Service interface {
		GetAssistantReply(ctx context.Context, history []Entry, filter Filter) (string, error)
	}
)

// DefaultFilter drops entries on the analysis channel and entries with empty
// content.
func DefaultFilter(e Entry) bool {
	if e.Channel == envelope.ChannelAnalysis {
		return false
	}
	return e.Content != ""
}

// ApplyFilter returns the entries accepted by filter, preserving order. A
// nil filter applies DefaultFilter.
func ApplyFilter(history []Entry, filter Filter) []Entry {
	if filter == nil {
		filter = DefaultFilter
	}
	out := make([]Entry, 0, len(history))
	for _, e := range history {
		if filter(e) {
			out = append(out, e)
		}
	}
	return out
}
