// Package transcript provides the stateless formatters used by the session
// service when appending durable transcript entries: role normalization and
// deterministic one-line summaries for tool calls and preflight blocks.
package transcript

import (
	"fmt"
	"strings"
	"time"

	"goa.design/harmony/runtime/harmony/tools"
)

// NormalizeRole lower-cases and trims a role. Empty roles normalize to
// "system".
func NormalizeRole(role string) string {
	normalized := strings.ToLower(strings.TrimSpace(role))
	if normalized == "" {
		return "system"
	}
	return normalized
}

// ToolSummary renders the one-line transcript summary for a tool invocation,
// e.g. "[tool:demo.echo] ok (12ms)". The duration clause is omitted when
// duration is not positive.
func ToolSummary(recipient tools.Ident, ok bool, duration time.Duration) string {
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	if duration > 0 {
		return fmt.Sprintf("[tool:%s] %s (%dms)", recipient, outcome, duration.Milliseconds())
	}
	return fmt.Sprintf("[tool:%s] %s", recipient, outcome)
}

// PreflightBlockedSummary renders the one-line transcript summary for a
// blocked preflight, e.g. "[preflight] blocked: missing 2 required tool(s)".
func PreflightBlockedSummary(missing int) string {
	return fmt.Sprintf("[preflight] blocked: missing %d required tool(s)", missing)
}
