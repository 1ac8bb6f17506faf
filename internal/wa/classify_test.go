package wa

import (
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

func TestClassify_Text(t *testing.T) {
	c := Classify(&waE2E.Message{Conversation: proto.String("hello")})
	if c.Type != TypeText || c.Text != "hello" {
		t.Fatalf("got %+v", c)
	}

	c = Classify(&waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked text")},
	})
	if c.Type != TypeText || c.Text != "linked text" {
		t.Fatalf("got %+v", c)
	}
}

func TestClassify_ImageCaption(t *testing.T) {
	c := Classify(&waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{Caption: proto.String("hi")},
	})
	if c.Type != TypeImage || c.Text != "hi" {
		t.Fatalf("captioned image: got %+v", c)
	}

	c = Classify(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{}})
	if c.Type != TypeImage || c.Text != "[Image]" {
		t.Fatalf("uncaptioned image: got %+v", c)
	}
}

func TestClassify_MediaPlaceholders(t *testing.T) {
	cases := []struct {
		msg  *waE2E.Message
		typ  MessageType
		text string
	}{
		{&waE2E.Message{VideoMessage: &waE2E.VideoMessage{}}, TypeVideo, "[Video]"},
		{&waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, TypeAudio, "[Audio]"},
		{&waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, TypeDocument, "[Document]"},
		{&waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, TypeSticker, "[Sticker]"},
		{&waE2E.Message{LocationMessage: &waE2E.LocationMessage{}}, TypeLocation, "[Location]"},
	}
	for _, tc := range cases {
		if got := Classify(tc.msg); got.Type != tc.typ || got.Text != tc.text {
			t.Errorf("Classify(%v) = %+v; want {%s %s}", tc.msg, got, tc.typ, tc.text)
		}
	}
}

func TestClassify_SuffixFallback(t *testing.T) {
	// No typed probe matches a protocol message; the field-name fallback
	// should produce the uppercased prefix.
	c := Classify(&waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{}})
	if c.Type != MessageType("PROTOCOL") {
		t.Fatalf("type = %s", c.Type)
	}
	if c.Text != "[PROTOCOL]" {
		t.Fatalf("text = %s", c.Text)
	}
}

func TestClassify_NilAndEmpty(t *testing.T) {
	if c := Classify(nil); c.Type != TypeUnknown {
		t.Fatalf("nil message: %+v", c)
	}
	if c := Classify(&waE2E.Message{}); c.Type != TypeUnknown || c.Text != "[UNKNOWN]" {
		t.Fatalf("empty message: %+v", c)
	}
}

func TestClassifyIncoming_Quoted(t *testing.T) {
	chat := types.NewJID("123-456", types.GroupServer)
	sender := types.NewJID("15551234567", types.DefaultUserServer)
	other := types.NewJID("15559999999", types.DefaultUserServer)

	in := &Incoming{
		Chat:   chat,
		Sender: sender,
		Message: &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text: proto.String("reply"),
				ContextInfo: &waE2E.ContextInfo{
					StanzaID:      proto.String("stanza-1"),
					Participant:   proto.String(other.String()),
					QuotedMessage: &waE2E.Message{Conversation: proto.String("original")},
				},
			},
		},
	}

	c := ClassifyIncoming(in)
	if c.Quoted == nil {
		t.Fatal("quoted missing")
	}
	if c.Quoted.ID != "stanza-1" {
		t.Errorf("quoted id = %q", c.Quoted.ID)
	}
	if c.Quoted.Type != TypeText {
		t.Errorf("quoted type = %s", c.Quoted.Type)
	}
	if c.Quoted.FromMe {
		t.Errorf("participant is a third party; fromMe should be false")
	}

	// Same participant as the outer sender → fromMe.
	in.Message.ExtendedTextMessage.ContextInfo.Participant = proto.String(sender.String())
	c = ClassifyIncoming(in)
	if c.Quoted == nil || !c.Quoted.FromMe {
		t.Errorf("expected fromMe for participant == sender")
	}
}

func TestClassifyIncoming_NoContext(t *testing.T) {
	in := &Incoming{Message: &waE2E.Message{Conversation: proto.String("plain")}}
	if c := ClassifyIncoming(in); c.Quoted != nil {
		t.Fatalf("unexpected quoted: %+v", c.Quoted)
	}
}

func TestSameUser(t *testing.T) {
	a := types.NewJID("15551234567", types.DefaultUserServer)
	b := a
	b.Device = 7
	if !SameUser(a, b) {
		t.Error("device suffix must be ignored")
	}
	if SameUser(a, types.NewJID("15550000000", types.DefaultUserServer)) {
		t.Error("different users compared equal")
	}
	if SameUser(types.EmptyJID, types.EmptyJID) {
		t.Error("empty JIDs must not match")
	}
}
