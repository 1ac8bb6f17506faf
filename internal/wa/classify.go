// Message classification.
//
// Classify normalizes a raw protocol message into {type, text, quoted}:
// the dispatcher only ever looks at the classified form. Typed probes cover
// the common payloads; anything else falls back to the proto field name, so
// new message kinds degrade to a sensible tag instead of being dropped.
package wa

import (
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// MessageType tags the payload kind of a classified message.
type MessageType string

const (
	TypeText     MessageType = "TEXT"
	TypeImage    MessageType = "IMAGE"
	TypeVideo    MessageType = "VIDEO"
	TypeAudio    MessageType = "AUDIO"
	TypeDocument MessageType = "DOCUMENT"
	TypeSticker  MessageType = "STICKER"
	TypeContact  MessageType = "CONTACT"
	TypeLocation MessageType = "LOCATION"
	TypeUnknown  MessageType = "UNKNOWN"
)

// Classified is the normalized view of an inbound payload.
type Classified struct {
	Type   MessageType
	Text   string
	Quoted *Quoted
}

// Quoted is a synthetic record for the message an inbound payload replies
// to, rebuilt from the quoting context.
type Quoted struct {
	ID        string
	RemoteJID types.JID
	FromMe    bool
	Type      MessageType
	Message   *waE2E.Message
}

// Classify resolves the message type and display text for a raw payload.
//
// Resolution order: conversation/extended text; then the known media kinds
// in fixed order; then the first set proto field whose name ends in
// "Message" (tag is the prefix uppercased); else UNKNOWN. Media text is the
// caption when present, otherwise a fixed placeholder; UNKNOWN text is the
// bracketed tag.
func Classify(msg *waE2E.Message) Classified {
	if msg == nil {
		return Classified{Type: TypeUnknown, Text: "[Unknown]"}
	}

	switch {
	case msg.GetConversation() != "":
		return Classified{Type: TypeText, Text: msg.GetConversation()}
	case msg.GetExtendedTextMessage() != nil:
		return Classified{Type: TypeText, Text: msg.GetExtendedTextMessage().GetText()}
	case msg.GetImageMessage() != nil:
		return Classified{Type: TypeImage, Text: captionOr(msg.GetImageMessage().GetCaption(), "[Image]")}
	case msg.GetVideoMessage() != nil:
		return Classified{Type: TypeVideo, Text: captionOr(msg.GetVideoMessage().GetCaption(), "[Video]")}
	case msg.GetAudioMessage() != nil:
		return Classified{Type: TypeAudio, Text: "[Audio]"}
	case msg.GetDocumentMessage() != nil:
		return Classified{Type: TypeDocument, Text: captionOr(msg.GetDocumentMessage().GetCaption(), "[Document]")}
	case msg.GetStickerMessage() != nil:
		return Classified{Type: TypeSticker, Text: "[Sticker]"}
	case msg.GetContactMessage() != nil:
		return Classified{Type: TypeContact, Text: captionOr(msg.GetContactMessage().GetDisplayName(), "[Contact]")}
	case msg.GetLocationMessage() != nil:
		return Classified{Type: TypeLocation, Text: "[Location]"}
	}

	if tag, ok := suffixTag(msg); ok {
		return Classified{Type: MessageType(tag), Text: "[" + tag + "]"}
	}
	return Classified{Type: TypeUnknown, Text: "[" + string(TypeUnknown) + "]"}
}

// ClassifyIncoming classifies the payload and resolves quoting context
// against the addressing of the outer message.
func ClassifyIncoming(in *Incoming) Classified {
	c := Classify(in.Message)
	c.Quoted = extractQuoted(in)
	return c
}

// captionOr returns the caption when non-empty, else the placeholder.
func captionOr(caption, placeholder string) string {
	if caption != "" {
		return caption
	}
	return placeholder
}

// suffixTag scans the proto fields in declaration order for the first set
// message-typed field named *Message and derives a tag from the prefix.
func suffixTag(msg *waE2E.Message) (string, bool) {
	m := msg.ProtoReflect()
	fields := m.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.Kind() != protoreflect.MessageKind || !m.Has(fd) {
			continue
		}
		name := string(fd.Name())
		if !strings.HasSuffix(name, "Message") || name == "Message" {
			continue
		}
		return strings.ToUpper(strings.TrimSuffix(name, "Message")), true
	}
	return "", false
}

// quotingContext returns the ContextInfo carried by whichever payload field
// holds it, or nil when the message carries no quoting context.
func quotingContext(msg *waE2E.Message) *waE2E.ContextInfo {
	if msg == nil {
		return nil
	}
	switch {
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetContextInfo()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetContextInfo()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetContextInfo()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetContextInfo()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage().GetContextInfo()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetContextInfo()
	default:
		return nil
	}
}

// Mentions returns the JIDs mentioned by the payload, if any.
func Mentions(msg *waE2E.Message) []types.JID {
	ci := quotingContext(msg)
	if ci == nil {
		return nil
	}
	raw := ci.GetMentionedJID()
	out := make([]types.JID, 0, len(raw))
	for _, s := range raw {
		if j, err := types.ParseJID(s); err == nil {
			out = append(out, j)
		}
	}
	return out
}

// extractQuoted rebuilds the replied-to message from the quoting context.
// RemoteJID derives from the quoting participant; FromMe compares the
// participant against the outer message's own participant/remoteJid; the
// nested payload's first set field infers its type.
func extractQuoted(in *Incoming) *Quoted {
	ci := quotingContext(in.Message)
	if ci == nil || ci.GetQuotedMessage() == nil {
		return nil
	}

	participant, err := types.ParseJID(ci.GetParticipant())
	if err != nil {
		participant = types.EmptyJID
	}
	fromMe := SameUser(participant, in.Sender) || SameUser(participant, in.Chat)

	nested := Classify(ci.GetQuotedMessage())
	return &Quoted{
		ID:        ci.GetStanzaID(),
		RemoteJID: participant,
		FromMe:    fromMe,
		Type:      nested.Type,
		Message:   ci.GetQuotedMessage(),
	}
}
