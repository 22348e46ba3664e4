// Package tools holds the shared plumbing for the control-surface MCP tools.
package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesprial/unraid-spindown/internal/safety"
	"github.com/mark3labs/mcp-go/mcp"
)

// JSONResult marshals v to indented JSON text.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error marshaling result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// ErrorResult returns a tool error result. The error travels in the result,
// not as a protocol error, so the calling model can read it.
func ErrorResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("error: %s", msg))
}

// LogAudit records a tool call. A nil logger is ignored.
func LogAudit(audit *safety.AuditLogger, toolName, device string, params map[string]any, result string, start time.Time) {
	if audit == nil {
		return
	}
	_ = audit.Log(safety.AuditEntry{
		Timestamp: start,
		Tool:      toolName,
		Device:    device,
		Params:    params,
		Result:    result,
		Duration:  time.Since(start),
	})
}

// ConfirmPrompt issues a token bound to toolName and device and tells the
// caller how to use it.
func ConfirmPrompt(confirm *safety.ConfirmationTracker, toolName, device, description string) *mcp.CallToolResult {
	token := confirm.RequestConfirmation(toolName, device, description)
	return mcp.NewToolResultText(fmt.Sprintf(
		"Confirmation required for %s on %q.\n\n%s\n\nTo proceed within %s, call %s again with device=%q and confirmation_token=%q.",
		toolName, device, description, safety.TokenTTL, toolName, device, token,
	))
}
