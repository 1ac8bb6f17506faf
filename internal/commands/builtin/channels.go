package builtin

import (
	"context"

	"github.com/tbourn/go-wa-gateway/internal/commands"
	"github.com/tbourn/go-wa-gateway/internal/wa"
)

// Channels returns the newsletter pack: follow a channel by JID and remember
// it in the per-user channel list so it is re-followed on the next open.
func Channels() commands.Source {
	return commands.SourceFunc(func() []*commands.Descriptor {
		return []*commands.Descriptor{
			{
				Pattern:  "follow",
				Desc:     "Follow a channel by its JID",
				Category: "settings",
				Execute:  followChannel,
			},
		}
	})
}

func followChannel(ctx context.Context, t wa.Transport, inv *commands.Invocation) error {
	if !inv.IsCreator {
		return inv.Reply(ctx, t, "Only the bot owner can change settings.")
	}
	if len(inv.Args) == 0 {
		return inv.Reply(ctx, t, "Usage: "+inv.Prefix+"follow <channel-jid>")
	}
	jid := inv.Args[0]
	if err := t.FollowChannel(ctx, jid); err != nil {
		return inv.Reply(ctx, t, "Could not follow that channel.")
	}
	if err := inv.Settings.AddChannel(ctx, inv.SessionID, jid); err != nil {
		// Follow succeeded; persistence is best-effort.
		return inv.Reply(ctx, t, "Followed, but the channel was not saved for reconnects.")
	}
	return inv.Reply(ctx, t, "Following.")
}
