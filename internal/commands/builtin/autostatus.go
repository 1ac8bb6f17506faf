package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbourn/go-wa-gateway/internal/commands"
	"github.com/tbourn/go-wa-gateway/internal/wa"
)

// AutoStatus returns the toggle pack for status-broadcast handling:
// autoseen, autoreact, autoreply, each taking "on" or "off". Owner-only.
func AutoStatus() commands.Source {
	return commands.SourceFunc(func() []*commands.Descriptor {
		return []*commands.Descriptor{
			{
				Pattern:  "autoseen",
				Desc:     "Toggle automatic viewing of status updates (on|off)",
				Category: "settings",
				Execute:  toggleCommand("seen"),
			},
			{
				Pattern:  "autoreact",
				Desc:     "Toggle automatic reactions to status updates (on|off)",
				Category: "settings",
				Execute:  toggleCommand("react"),
			},
			{
				Pattern:  "autoreply",
				Desc:     "Toggle automatic replies to status updates (on|off)",
				Category: "settings",
				Execute:  toggleCommand("reply"),
			},
		}
	})
}

func toggleCommand(field string) commands.ExecuteFunc {
	return func(ctx context.Context, t wa.Transport, inv *commands.Invocation) error {
		if !inv.IsCreator {
			return inv.Reply(ctx, t, "Only the bot owner can change settings.")
		}
		on, ok := parseToggle(inv.Args)
		if !ok {
			return inv.Reply(ctx, t, fmt.Sprintf("Usage: %sauto%s on|off", inv.Prefix, field))
		}
		if err := inv.Settings.SetAutoStatus(ctx, inv.SessionID, field, on); err != nil {
			// Settings writes are best-effort and already logged upstream;
			// the user still gets an honest answer.
			return inv.Reply(ctx, t, "Could not save that setting, try again later.")
		}
		state := "disabled"
		if on {
			state = "enabled"
		}
		return inv.Reply(ctx, t, fmt.Sprintf("Auto-%s %s.", field, state))
	}
}

func parseToggle(args []string) (on, ok bool) {
	if len(args) == 0 {
		return false, false
	}
	switch strings.ToLower(args[0]) {
	case "on", "enable", "1":
		return true, true
	case "off", "disable", "0":
		return false, true
	default:
		return false, false
	}
}
