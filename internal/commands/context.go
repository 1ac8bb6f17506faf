package commands

import (
	"context"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/tbourn/go-wa-gateway/internal/wa"
)

// SettingsMutator is the slice of the settings service a command may use to
// change per-user configuration. Writes are best-effort upstream; commands
// treat an error as already logged.
type SettingsMutator interface {
	SetAutoStatus(ctx context.Context, number, field string, on bool) error
	AddChannel(ctx context.Context, number, jid string) error
}

// Invocation is the capability-scoped context handed to a command's Execute.
// It carries everything resolved during dispatch so command bodies stay free
// of transport plumbing.
type Invocation struct {
	// SessionID is the phone number owning the connection.
	SessionID string
	// From is the chat the triggering message arrived in.
	From types.JID
	// Sender is the authoring participant (differs from From in groups).
	Sender   types.JID
	PushName string
	IsGroup  bool
	// GroupMetadata is set only for group chats and only when the fetch
	// succeeded; commands must tolerate nil.
	GroupMetadata *types.GroupInfo
	// IsAdmins reports whether Sender holds admin or superadmin rank in the
	// group. False outside groups and when metadata is unavailable.
	IsAdmins bool
	// IsCreator reports whether Sender is the account owner (base JID match,
	// device suffix ignored).
	IsCreator bool

	// Args are the whitespace-split tokens after the command name; Q is the
	// trimmed raw tail.
	Args []string
	Q    string

	Raw        *wa.Incoming
	Classified wa.Classified
	Mentioned  []types.JID

	// Prefix is the effective prefix the message was parsed with.
	Prefix  string
	BotName string

	Settings SettingsMutator
}

// Reply sends text into the triggering chat, quoting the triggering message.
func (inv *Invocation) Reply(ctx context.Context, t wa.Transport, text string) error {
	return t.SendMessage(ctx, inv.From, inv.replyMessage(text, nil))
}

// ReplyMentioning sends text quoting the trigger and tagging the given JIDs.
func (inv *Invocation) ReplyMentioning(ctx context.Context, t wa.Transport, text string, jids []types.JID) error {
	mentions := make([]string, len(jids))
	for i, j := range jids {
		mentions[i] = j.String()
	}
	return t.SendMessage(ctx, inv.From, inv.replyMessage(text, mentions))
}

func (inv *Invocation) replyMessage(text string, mentions []string) *waE2E.Message {
	ext := &waE2E.ExtendedTextMessage{Text: proto.String(text)}
	if inv.Raw != nil {
		ext.ContextInfo = &waE2E.ContextInfo{
			StanzaID:      proto.String(inv.Raw.ID),
			Participant:   proto.String(inv.Sender.String()),
			QuotedMessage: inv.Raw.Message,
		}
	}
	if len(mentions) > 0 {
		if ext.ContextInfo == nil {
			ext.ContextInfo = &waE2E.ContextInfo{}
		}
		ext.ContextInfo.MentionedJID = mentions
	}
	return &waE2E.Message{ExtendedTextMessage: ext}
}

// Targets resolves the JIDs a moderation command acts on: explicit mentions
// first, else the author of the quoted message.
func (inv *Invocation) Targets() []types.JID {
	if len(inv.Mentioned) > 0 {
		return inv.Mentioned
	}
	if q := inv.Classified.Quoted; q != nil && !q.RemoteJID.IsEmpty() {
		return []types.JID{q.RemoteJID}
	}
	return nil
}
