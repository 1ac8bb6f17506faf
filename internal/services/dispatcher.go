package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types"

	"github.com/tbourn/go-wa-gateway/internal/commands"
	"github.com/tbourn/go-wa-gateway/internal/observability"
	"github.com/tbourn/go-wa-gateway/internal/wa"
)

// statusReactions is the rotation used when auto-react is enabled.
var statusReactions = []string{"💚", "🔥", "😍", "👏", "💯", "✨"}

// Dispatcher routes one inbound message to at most one command execution.
//
// Routing order: status-broadcast auto handling, prefix check, built-ins,
// registry lookup. Unknown commands are dropped silently; a failing command
// is logged and never reported into the chat.
type Dispatcher struct {
	registry  *commands.Registry
	settings  *SettingsService
	botName   string
	ownerName string
	log       zerolog.Logger
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(registry *commands.Registry, settings *SettingsService, botName, ownerName string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, settings: settings, botName: botName, ownerName: ownerName, log: log}
}

// Dispatch processes one inbound message for its session. It runs to
// completion before the caller hands it the next event on the same stream.
func (d *Dispatcher) Dispatch(ctx context.Context, t wa.Transport, in *wa.Incoming) {
	if in == nil || in.Message == nil {
		return
	}
	if in.Chat == types.StatusBroadcastJID {
		d.handleStatus(ctx, t, in)
		return
	}

	classified := wa.ClassifyIncoming(in)
	body := strings.TrimSpace(classified.Text)
	if body == "" {
		return
	}

	prefix := d.settings.EffectivePrefix(ctx, in.SessionID)
	if !strings.HasPrefix(body, prefix) {
		return
	}
	rest := strings.TrimSpace(body[len(prefix):])
	if rest == "" {
		return
	}

	tokens := strings.Fields(rest)
	name := strings.ToLower(tokens[0])
	args := tokens[1:]
	q := strings.TrimSpace(strings.TrimPrefix(rest, tokens[0]))

	isCreator := in.IsFromMe || wa.SameUser(in.Sender, t.OwnJID())

	if d.handleBuiltin(ctx, t, in, classified, name, args, isCreator) {
		observability.DispatchTotal.WithLabelValues("builtin").Inc()
		return
	}

	desc, ok := d.registry.Get(name)
	if !ok {
		// Unknown commands never get a chat reply.
		d.log.Debug().Str("session", in.SessionID).Str("command", name).Msg("unknown command, dropping")
		observability.DispatchTotal.WithLabelValues("unknown").Inc()
		return
	}

	inv := &commands.Invocation{
		SessionID:  in.SessionID,
		From:       in.Chat,
		Sender:     in.Sender,
		PushName:   in.PushName,
		IsGroup:    in.IsGroup,
		IsCreator:  isCreator,
		Args:       args,
		Q:          q,
		Raw:        in,
		Classified: classified,
		Mentioned:  wa.Mentions(in.Message),
		Prefix:     prefix,
		BotName:    d.botName,
		Settings:   d.settings,
	}

	if in.IsGroup {
		meta, err := t.GroupInfo(ctx, in.Chat)
		if err != nil {
			// Non-fatal: admin/creator gates degrade rather than abort.
			d.log.Warn().Err(err).Str("session", in.SessionID).Stringer("group", in.Chat).
				Msg("group metadata fetch failed")
		} else {
			inv.GroupMetadata = meta
			inv.IsAdmins = senderIsAdmin(meta, in.Sender)
		}
	}

	if desc.React != "" {
		if err := t.React(ctx, in.Chat, in.Sender, in.ID, desc.React); err != nil {
			d.log.Debug().Err(err).Str("command", desc.Pattern).Msg("command reaction failed")
		}
	}

	d.execute(ctx, t, desc, inv)
}

// execute runs the descriptor exactly once, containing both returned errors
// and panics at this boundary.
func (d *Dispatcher) execute(ctx context.Context, t wa.Transport, desc *commands.Descriptor, inv *commands.Invocation) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("command", desc.Pattern).
				Str("session", inv.SessionID).Msg("command panicked")
			observability.PluginFailures.WithLabelValues(desc.Pattern).Inc()
			observability.DispatchTotal.WithLabelValues("failed").Inc()
		}
	}()

	if err := desc.Execute(ctx, t, inv); err != nil {
		d.log.Error().Err(err).Str("command", desc.Pattern).Str("session", inv.SessionID).
			Msg("command failed")
		observability.PluginFailures.WithLabelValues(desc.Pattern).Inc()
		observability.DispatchTotal.WithLabelValues("failed").Inc()
		return
	}
	observability.DispatchTotal.WithLabelValues("ok").Inc()
}

// handleBuiltin resolves the built-in commands ahead of the registry.
// Returns true when the name was handled and dispatch must stop.
func (d *Dispatcher) handleBuiltin(ctx context.Context, t wa.Transport, in *wa.Incoming, classified wa.Classified, name string, args []string, isCreator bool) bool {
	reply := func(text string) {
		inv := &commands.Invocation{From: in.Chat, Sender: in.Sender, Raw: in, Classified: classified}
		if err := inv.Reply(ctx, t, text); err != nil {
			d.log.Warn().Err(err).Str("session", in.SessionID).Msg("builtin reply failed")
		}
	}

	switch name {
	case "ping", "speed":
		latency := time.Since(in.Timestamp).Round(time.Millisecond)
		reply(fmt.Sprintf("Pong! %s", latency))
		return true

	case "prefix":
		if !isCreator {
			reply("Only the bot owner can change the prefix.")
			return true
		}
		if len(args) == 0 {
			reply("Usage: prefix <new-prefix>")
			return true
		}
		if err := d.settings.SetPrefix(ctx, in.SessionID, args[0]); err != nil {
			reply("Could not save the new prefix.")
			return true
		}
		reply(fmt.Sprintf("Prefix changed to %q", args[0]))
		return true

	case "menu", "help", "alias":
		reply(d.menuText(ctx, in.SessionID))
		return true
	}
	return false
}

// menuText renders the command list grouped by category.
func (d *Dispatcher) menuText(ctx context.Context, sessionID string) string {
	prefix := d.settings.EffectivePrefix(ctx, sessionID)

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", d.botName)
	fmt.Fprintf(&b, "%sping — latency check\n", prefix)
	fmt.Fprintf(&b, "%sprefix — change the command prefix\n", prefix)
	fmt.Fprintf(&b, "%smenu — this list\n", prefix)
	for _, pattern := range d.registry.Patterns() {
		desc, ok := d.registry.Get(pattern)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s%s — %s\n", prefix, pattern, desc.Desc)
	}
	if d.ownerName != "" {
		fmt.Fprintf(&b, "\nOwner: %s", d.ownerName)
	}
	return strings.TrimRight(b.String(), "\n")
}

// handleStatus applies the per-user auto-status toggles to a status
// broadcast. Each action is independent and best-effort.
func (d *Dispatcher) handleStatus(ctx context.Context, t wa.Transport, in *wa.Incoming) {
	if in.IsFromMe {
		return
	}
	settings := d.settings.Get(ctx, in.SessionID)

	if settings.AutoStatus.Seen {
		if err := t.MarkRead(ctx, []string{in.ID}, in.Timestamp, in.Chat, in.Sender); err != nil {
			d.log.Debug().Err(err).Str("session", in.SessionID).Msg("auto-seen failed")
		}
	}
	if settings.AutoStatus.React {
		emoji := statusReactions[len(in.ID)%len(statusReactions)]
		if err := t.React(ctx, in.Chat, in.Sender, in.ID, emoji); err != nil {
			d.log.Debug().Err(err).Str("session", in.SessionID).Msg("auto-react failed")
		}
	}
	if settings.AutoStatus.Reply {
		inv := &commands.Invocation{From: in.Sender, Sender: in.Sender, Raw: in}
		if err := inv.Reply(ctx, t, "Status seen ✅"); err != nil {
			d.log.Debug().Err(err).Str("session", in.SessionID).Msg("auto-reply failed")
		}
	}
}

// senderIsAdmin reports whether sender holds admin or superadmin rank in
// the group's participant list.
func senderIsAdmin(meta *types.GroupInfo, sender types.JID) bool {
	for _, p := range meta.Participants {
		if wa.SameUser(p.JID, sender) {
			return p.IsAdmin || p.IsSuperAdmin
		}
	}
	return false
}
