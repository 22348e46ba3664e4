// Package status exposes the tracker and the spin event journal as MCP tools.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesprial/unraid-spindown/internal/history"
	"github.com/jamesprial/unraid-spindown/internal/idle"
	"github.com/jamesprial/unraid-spindown/internal/safety"
	"github.com/jamesprial/unraid-spindown/internal/tools"
	"github.com/jamesprial/unraid-spindown/internal/unraid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DestructiveTools lists the tools that need a confirmation token.
var DestructiveTools = []string{"disk_spindown"}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	cycleWindow         = 24 * time.Hour
)

// Tracker is the view of *idle.Tracker the tools need.
type Tracker interface {
	Devices() []idle.DeviceStatus
	Spindown(ctx context.Context, device string) error
}

// Compile-time interface check.
var _ Tracker = (*idle.Tracker)(nil)

// SlotLookup maps device names to Unraid array slots.
type SlotLookup interface {
	Slots(ctx context.Context) (map[string]unraid.DiskSlot, error)
}

// Compile-time interface check.
var _ SlotLookup = (*unraid.SlotReader)(nil)

// Deps bundles the tool collaborators. Journal, Slots and Audit may be nil.
type Deps struct {
	Tracker Tracker
	Journal history.Journal
	Slots   SlotLookup
	Filter  *safety.Filter
	Confirm *safety.ConfirmationTracker
	Audit   *safety.AuditLogger
}

// StatusTools returns the control-surface registrations. disk_history is
// only registered when a journal is available.
func StatusTools(d Deps) []tools.Registration {
	if d.Tracker == nil {
		panic("status: tracker must not be nil")
	}
	if d.Confirm == nil {
		panic("status: confirmation tracker must not be nil")
	}
	regs := []tools.Registration{diskList(d), diskSpindown(d)}
	if d.Journal != nil {
		regs = append(regs, diskHistory(d))
	}
	return regs
}

// deviceEntry is one row of disk_list.
type deviceEntry struct {
	idle.DeviceStatus
	Slot           string `json:"slot,omitempty"`
	UnraidSpunDown *bool  `json:"unraid_spun_down,omitempty"`
	Spindowns24h   *int   `json:"spindowns_24h,omitempty"`
}

func diskList(d Deps) tools.Registration {
	const toolName = "disk_list"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("List tracked disks with their power state, last activity, idle time and last spindown."),
		mcp.WithString("device",
			mcp.Description("Only report this device (kernel name, e.g. sdb)."),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		device := req.GetString("device", "")
		params := map[string]any{"device": device}

		var slots map[string]unraid.DiskSlot
		if d.Slots != nil {
			// Slot names are decoration; a missing disks.ini only drops them.
			slots, _ = d.Slots.Slots(ctx)
		}

		var entries []deviceEntry
		for _, st := range d.Tracker.Devices() {
			if device != "" && st.Name != device {
				continue
			}
			entry := deviceEntry{DeviceStatus: st}
			if slot, ok := slots[st.Name]; ok {
				spun := slot.SpunDown
				entry.Slot = slot.Slot
				entry.UnraidSpunDown = &spun
			}
			if d.Journal != nil {
				n, err := countCycles(ctx, d.Journal, st.Name, start.Add(-cycleWindow))
				if err == nil {
					entry.Spindowns24h = &n
				}
			}
			entries = append(entries, entry)
		}
		if device != "" && len(entries) == 0 {
			tools.LogAudit(d.Audit, toolName, device, params, "error: not tracked", start)
			return tools.ErrorResult(fmt.Sprintf("device %s is not tracked", device)), nil
		}
		if entries == nil {
			entries = []deviceEntry{}
		}

		tools.LogAudit(d.Audit, toolName, device, params, "ok", start)
		return tools.JSONResult(map[string]any{"devices": entries}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// countCycles counts automatic and manual spindowns since since.
func countCycles(ctx context.Context, j history.Journal, device string, since time.Time) (int, error) {
	total := 0
	for _, kind := range []history.Kind{history.KindSpindown, history.KindManualSpindown} {
		n, err := j.CountSince(ctx, device, kind, since)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func diskHistory(d Deps) tools.Registration {
	const toolName = "disk_history"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Show recent spindown, wake and reset events, newest first."),
		mcp.WithString("device",
			mcp.Description("Only show events for this device."),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of events (default %d, max %d).", defaultHistoryLimit, maxHistoryLimit)),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		device := req.GetString("device", "")
		limit := req.GetInt("limit", defaultHistoryLimit)
		params := map[string]any{"device": device, "limit": limit}

		if limit <= 0 || limit > maxHistoryLimit {
			tools.LogAudit(d.Audit, toolName, device, params, "error: invalid limit", start)
			return tools.ErrorResult(fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit)), nil
		}

		events, err := d.Journal.Recent(ctx, device, limit)
		if err != nil {
			tools.LogAudit(d.Audit, toolName, device, params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		tools.LogAudit(d.Audit, toolName, device, params, "ok", start)
		return tools.JSONResult(map[string]any{"events": events}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func diskSpindown(d Deps) tools.Registration {
	const toolName = "disk_spindown"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Spin down one disk now. Requires confirmation."),
		mcp.WithString("device",
			mcp.Required(),
			mcp.Description("Kernel device name, e.g. sdb."),
		),
		mcp.WithString("confirmation_token",
			mcp.Description("Confirmation token returned by a prior call to this tool."),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		device := req.GetString("device", "")
		token := req.GetString("confirmation_token", "")
		params := map[string]any{"device": device}

		if device == "" {
			tools.LogAudit(d.Audit, toolName, device, params, "error: device required", start)
			return tools.ErrorResult("device is required"), nil
		}
		if !d.Filter.IsAllowed(device) {
			tools.LogAudit(d.Audit, toolName, device, params, "error: filtered", start)
			return tools.ErrorResult(fmt.Sprintf("device %s is not managed by the device filter", device)), nil
		}

		if !d.Confirm.Confirm(token, toolName, device) {
			return tools.ConfirmPrompt(d.Confirm, toolName, device,
				fmt.Sprintf("Spin down %s now. The next access will spin it up again.", device)), nil
		}

		if err := d.Tracker.Spindown(ctx, device); err != nil {
			tools.LogAudit(d.Audit, toolName, device, params, "error: "+err.Error(), start)
			switch {
			case errors.Is(err, idle.ErrUnknownDevice):
				return tools.ErrorResult(fmt.Sprintf("device %s is not tracked", device)), nil
			case errors.Is(err, idle.ErrAlreadySleeping):
				return tools.ErrorResult(fmt.Sprintf("device %s is already sleeping", device)), nil
			default:
				return tools.ErrorResult(err.Error()), nil
			}
		}

		tools.LogAudit(d.Audit, toolName, device, params, "ok", start)
		return mcp.NewToolResultText(fmt.Sprintf("%s spun down.", device)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
