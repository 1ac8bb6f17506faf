// whatsmeow-backed Transport implementation.
//
// Each phone number gets its own sqlite credential store under the
// configured directory; whatsmeow persists key material there on its own,
// and the adapter additionally surfaces credential snapshots as events so
// the durable Session record stays in sync.
package wa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

const (
	// eventBuffer bounds the per-transport event queue. The handler drops
	// (and logs) when the consumer falls this far behind rather than stall
	// the socket reader.
	eventBuffer = 128

	pairPhoneTimeout = 90 * time.Second
)

// MeowFactory builds whatsmeow transports with per-number sqlite stores.
type MeowFactory struct {
	// Dir is the directory holding one credential database per number.
	Dir string
	// Log is the parent logger; every transport gets a session-scoped child.
	Log zerolog.Logger
}

// New opens (or creates) the credential store for number and wraps a fresh
// whatsmeow client around its first device.
func (f *MeowFactory) New(ctx context.Context, number string) (Transport, error) {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s/%s.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(FULL)", f.Dir, number)
	lg := f.Log.With().Str("session", number).Logger()

	container, err := sqlstore.New(ctx, "sqlite3", dsn, newMeowLogger(lg.With().Str("module", "store").Logger()))
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	m := &Meow{
		number: number,
		client: whatsmeow.NewClient(device, newMeowLogger(lg.With().Str("module", "client").Logger())),
		events: make(chan Event, eventBuffer),
		log:    lg,
	}
	m.client.AddEventHandler(m.handleEvent)
	return m, nil
}

// Meow adapts a *whatsmeow.Client to the Transport interface.
type Meow struct {
	number string
	client *whatsmeow.Client
	events chan Event
	log    zerolog.Logger
}

var _ Transport = (*Meow)(nil)

// handleEvent translates whatsmeow callbacks into the adapter's event
// stream. Translation is by event type, never by message inspection, so
// disconnect classification stays a pure code mapping.
func (m *Meow) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		m.emit(Event{Kind: EventMessage, Message: m.normalize(v)})
	case *events.Connected:
		m.emit(Event{Kind: EventOpen})
		m.emit(Event{Kind: EventCredentials, Credentials: m.SnapshotCredentials()})
	case *events.PairSuccess:
		m.emit(Event{Kind: EventPaired})
		m.emit(Event{Kind: EventCredentials, Credentials: m.SnapshotCredentials()})
	case *events.LoggedOut:
		m.emit(Event{Kind: EventClosed, Reason: ReasonLoggedOut})
	case *events.StreamReplaced:
		m.emit(Event{Kind: EventClosed, Reason: ReasonStreamReplaced})
	case *events.Disconnected:
		m.emit(Event{Kind: EventClosed, Reason: ReasonConnectionLost})
	}
}

func (m *Meow) emit(e Event) {
	select {
	case m.events <- e:
	default:
		m.log.Warn().Int("kind", int(e.Kind)).Msg("event queue full, dropping event")
	}
}

func (m *Meow) normalize(v *events.Message) *Incoming {
	return &Incoming{
		SessionID: m.number,
		ID:        v.Info.ID,
		Chat:      v.Info.Chat,
		Sender:    v.Info.Sender,
		IsFromMe:  v.Info.IsFromMe,
		IsGroup:   v.Info.IsGroup,
		PushName:  v.Info.PushName,
		Timestamp: v.Info.Timestamp,
		Message:   v.Message,
	}
}

// Connect dials the socket; whatsmeow resumes from stored credentials when
// the device has an ID.
func (m *Meow) Connect(ctx context.Context) error {
	_ = ctx
	return m.client.Connect()
}

// Disconnect tears down the socket but keeps credentials.
func (m *Meow) Disconnect() { m.client.Disconnect() }

// Logout revokes the device registration and wipes the local store.
func (m *Meow) Logout(ctx context.Context) error { return m.client.Logout(ctx) }

// IsConnected reports socket liveness.
func (m *Meow) IsConnected() bool { return m.client.IsConnected() }

// HasCredentials reports whether the device was ever paired.
func (m *Meow) HasCredentials() bool { return m.client.Store.ID != nil }

// RequestPairingCode asks for a phone-linking code.
func (m *Meow) RequestPairingCode(ctx context.Context, number string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pairPhoneTimeout)
	defer cancel()
	return m.client.PairPhone(ctx, number, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
}

// OwnJID returns the authenticated account identity, zero before pairing.
func (m *Meow) OwnJID() types.JID {
	if m.client.Store.ID == nil {
		return types.EmptyJID
	}
	return *m.client.Store.ID
}

// SendMessage delivers a protocol message.
func (m *Meow) SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) error {
	_, err := m.client.SendMessage(ctx, to, msg)
	return err
}

// React attaches an emoji reaction to an existing message.
func (m *Meow) React(ctx context.Context, chat, sender types.JID, messageID, emoji string) error {
	msg := &waE2E.Message{
		ReactionMessage: &waE2E.ReactionMessage{
			Key: &waCommon.MessageKey{
				RemoteJID:   proto.String(chat.String()),
				FromMe:      proto.Bool(false),
				ID:          proto.String(messageID),
				Participant: proto.String(sender.String()),
			},
			Text:              proto.String(emoji),
			SenderTimestampMS: proto.Int64(time.Now().UnixMilli()),
		},
	}
	return m.SendMessage(ctx, chat, msg)
}

// MarkRead acknowledges messages as seen.
func (m *Meow) MarkRead(ctx context.Context, ids []string, ts time.Time, chat, sender types.JID) error {
	msgIDs := make([]types.MessageID, len(ids))
	for i, id := range ids {
		msgIDs[i] = types.MessageID(id)
	}
	return m.client.MarkRead(ctx, msgIDs, ts, chat, sender, types.ReceiptTypeRead)
}

// GroupInfo fetches group metadata.
func (m *Meow) GroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error) {
	return m.client.GetGroupInfo(ctx, jid)
}

// UpdateGroupParticipants applies a membership change.
func (m *Meow) UpdateGroupParticipants(ctx context.Context, group types.JID, members []types.JID, change ParticipantChange) error {
	var action whatsmeow.ParticipantChange
	switch change {
	case ParticipantPromote:
		action = whatsmeow.ParticipantChangePromote
	case ParticipantDemote:
		action = whatsmeow.ParticipantChangeDemote
	case ParticipantRemove:
		action = whatsmeow.ParticipantChangeRemove
	default:
		return fmt.Errorf("unknown participant change %q", change)
	}
	_, err := m.client.UpdateGroupParticipants(ctx, group, members, action)
	return err
}

// FollowChannel subscribes to a newsletter channel.
func (m *Meow) FollowChannel(ctx context.Context, jid string) error {
	j, err := types.ParseJID(jid)
	if err != nil {
		return fmt.Errorf("parse channel jid: %w", err)
	}
	return m.client.FollowNewsletter(ctx, j)
}

// Events exposes the adapter's event stream.
func (m *Meow) Events() <-chan Event { return m.events }

// credentialSnapshot is the durable shape of the transport's identity; the
// key material itself stays in the sqlite store.
type credentialSnapshot struct {
	JID      string `json:"jid"`
	Platform string `json:"platform,omitempty"`
	PushName string `json:"push_name,omitempty"`
}

// SnapshotCredentials serializes the current identity as an opaque blob.
func (m *Meow) SnapshotCredentials() []byte {
	snap := credentialSnapshot{
		Platform: m.client.Store.Platform,
		PushName: m.client.Store.PushName,
	}
	if m.client.Store.ID != nil {
		snap.JID = m.client.Store.ID.String()
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return nil
	}
	return b
}

// meowLogger adapts zerolog to whatsmeow's logging interface.
type meowLogger struct{ l zerolog.Logger }

func newMeowLogger(l zerolog.Logger) waLog.Logger { return meowLogger{l: l} }

func (m meowLogger) Errorf(msg string, args ...interface{}) { m.l.Error().Msgf(msg, args...) }
func (m meowLogger) Warnf(msg string, args ...interface{})  { m.l.Warn().Msgf(msg, args...) }
func (m meowLogger) Infof(msg string, args ...interface{})  { m.l.Debug().Msgf(msg, args...) }
func (m meowLogger) Debugf(msg string, args ...interface{}) { m.l.Debug().Msgf(msg, args...) }
func (m meowLogger) Sub(module string) waLog.Logger {
	return meowLogger{l: m.l.With().Str("module", module).Logger()}
}
