// Package preflight analyzes an envelope for required tool recipients and
// checks their availability before execution. A failed preflight blocks the
// session on the current message so a retry can re-run once the tools come
// online.
package preflight

import (
	"context"
	"fmt"
	"strings"

	"goa.design/harmony/runtime/harmony/envelope"
	"goa.design/harmony/runtime/harmony/tools"
)

// Report is the outcome of a preflight check. Recipients preserve first-seen
// order; duplicates are folded case-insensitively.
type Report struct {
	// RequiredRecipients lists every tool the envelope may invoke.
	RequiredRecipients []tools.Ident `json:"requiredRecipients"`
	// MissingRecipients lists the required tools the availability oracle denied.
	MissingRecipients []tools.Ident `json:"missingRecipients"`
}

// Ready reports whether every required recipient is available.
func (r Report) Ready() bool {
	return len(r.MissingRecipients) == 0
}

// RequiredRecipients walks the envelope and gathers the tools it may invoke:
// assistant tool-call messages contribute their recipient, harmony-script
// bodies contribute each tool-call step's recipient, and if steps recurse
// into both branches.
func RequiredRecipients(env *envelope.Envelope) ([]tools.Ident, error) {
	collector := newCollector()
	for i := range env.Messages {
		msg := &env.Messages[i]
		if msg.IsToolCall() {
			collector.add(msg.Recipient)
		}
		if msg.IsScript() {
			script, err := msg.DecodeScript()
			if err != nil {
				return nil, fmt.Errorf("messages[%d]: %w", i, err)
			}
			collectSteps(collector, script.Steps)
		}
	}
	return collector.idents, nil
}

// Check runs preflight for env against the availability oracle.
func Check(ctx context.Context, env *envelope.Envelope, avail tools.Availability) (Report, error) {
	required, err := RequiredRecipients(env)
	if err != nil {
		return Report{}, err
	}
	report := Report{RequiredRecipients: required}
	for _, recipient := range required {
		ok, err := avail.IsAvailable(ctx, recipient)
		if err != nil {
			return Report{}, fmt.Errorf("check availability of %q: %w", recipient, err)
		}
		if !ok {
			report.MissingRecipients = append(report.MissingRecipients, recipient)
		}
	}
	return report, nil
}

func collectSteps(c *collector, steps []envelope.Step) {
	for _, step := range steps {
		switch s := step.(type) {
		case envelope.ToolCallStep:
			c.add(s.Recipient)
		case envelope.IfStep:
			collectSteps(c, s.Then)
			collectSteps(c, s.Else)
		}
	}
}

// collector accumulates recipients in first-seen order with case-insensitive
// deduplication.
type collector struct {
	seen   map[string]struct{}
	idents []tools.Ident
}

func newCollector() *collector {
	return &collector{seen: make(map[string]struct{})}
}

func (c *collector) add(recipient string) {
	if recipient == "" {
		return
	}
	folded := strings.ToLower(recipient)
	if _, dup := c.seen[folded]; dup {
		return
	}
	c.seen[folded] = struct{}{}
	c.idents = append(c.idents, tools.Ident(recipient))
}
