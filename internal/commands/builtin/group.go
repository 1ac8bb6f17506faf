// Package builtin ships the gateway's stock command packs: group
// moderation, auto-status toggles, channel follows, and runtime info. Each
// pack is a commands.Source; main wires them into the registry at startup.
package builtin

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"github.com/tbourn/go-wa-gateway/internal/commands"
	"github.com/tbourn/go-wa-gateway/internal/wa"
)

// Group returns the moderation pack: promote, demote, kick, tagall. All
// four are group-only and gated on admin-or-owner.
func Group() commands.Source {
	return commands.SourceFunc(func() []*commands.Descriptor {
		return []*commands.Descriptor{
			{
				Pattern:  "promote",
				Desc:     "Give admin rank to the mentioned or quoted member",
				Category: "group",
				React:    "⬆️",
				Execute:  membershipCommand(wa.ParticipantPromote, "promoted"),
			},
			{
				Pattern:  "demote",
				Aliases:  []string{"unadmin"},
				Desc:     "Remove admin rank from the mentioned or quoted member",
				Category: "group",
				React:    "⬇️",
				Execute:  membershipCommand(wa.ParticipantDemote, "demoted"),
			},
			{
				Pattern:  "kick",
				Aliases:  []string{"remove"},
				Desc:     "Remove the mentioned or quoted member from the group",
				Category: "group",
				React:    "👢",
				Execute:  membershipCommand(wa.ParticipantRemove, "removed"),
			},
			{
				Pattern:  "tagall",
				Aliases:  []string{"everyone"},
				Desc:     "Mention every group member",
				Category: "group",
				Execute:  tagAll,
			},
		}
	})
}

// membershipCommand builds an Execute applying one participant change. The
// permission gate short-circuits before any group mutation.
func membershipCommand(change wa.ParticipantChange, verb string) commands.ExecuteFunc {
	return func(ctx context.Context, t wa.Transport, inv *commands.Invocation) error {
		if denied := gateGroupAdmin(ctx, t, inv); denied {
			return nil
		}
		targets := inv.Targets()
		if len(targets) == 0 {
			return inv.Reply(ctx, t, "Mention a member or reply to their message.")
		}
		if err := t.UpdateGroupParticipants(ctx, inv.From, targets, change); err != nil {
			return fmt.Errorf("%s %d member(s): %w", change, len(targets), err)
		}
		return inv.Reply(ctx, t, fmt.Sprintf("Done, %s %d member(s).", verb, len(targets)))
	}
}

func tagAll(ctx context.Context, t wa.Transport, inv *commands.Invocation) error {
	if denied := gateGroupAdmin(ctx, t, inv); denied {
		return nil
	}
	if inv.GroupMetadata == nil {
		return inv.Reply(ctx, t, "Group member list is unavailable right now.")
	}

	var b strings.Builder
	if inv.Q != "" {
		b.WriteString(inv.Q)
		b.WriteString("\n\n")
	}
	jids := make([]types.JID, 0, len(inv.GroupMetadata.Participants))
	for _, p := range inv.GroupMetadata.Participants {
		jids = append(jids, p.JID)
		fmt.Fprintf(&b, "@%s\n", p.JID.User)
	}
	return inv.ReplyMentioning(ctx, t, strings.TrimRight(b.String(), "\n"), jids)
}

// gateGroupAdmin enforces the group-only, admin-or-owner gate shared by the
// moderation pack. Returns true when the command must not proceed; the
// denial reply has already been sent.
func gateGroupAdmin(ctx context.Context, t wa.Transport, inv *commands.Invocation) bool {
	if !inv.IsGroup {
		_ = inv.Reply(ctx, t, "This command only works in groups.")
		return true
	}
	if !inv.IsAdmins && !inv.IsCreator {
		_ = inv.Reply(ctx, t, "Only group admins can use this command.")
		return true
	}
	return false
}
