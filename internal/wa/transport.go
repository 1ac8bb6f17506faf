// Package wa abstracts the WhatsApp transport behind a capability interface
// so the dispatcher and the connection lifecycle manager can be exercised
// without a live socket. The concrete implementation wraps whatsmeow; see
// client.go.
package wa

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
)

// DisconnectReason classifies why a transport closed. Classification is by
// reason code from the transport, never by heuristic; exactly one value
// applies per close.
type DisconnectReason int

const (
	ReasonUnknown DisconnectReason = iota
	// ReasonConnectionLost covers transient network/protocol failures;
	// the session is eligible for reconnection.
	ReasonConnectionLost
	// ReasonStreamReplaced means another client took over the stream;
	// also reconnect-eligible.
	ReasonStreamReplaced
	// ReasonLoggedOut is terminal: the account revoked this device.
	ReasonLoggedOut
)

// String returns the reason as a stable lowercase label for logs.
func (r DisconnectReason) String() string {
	switch r {
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonStreamReplaced:
		return "stream_replaced"
	case ReasonLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the reason forbids reconnection outright.
func (r DisconnectReason) Terminal() bool { return r == ReasonLoggedOut }

// EventKind discriminates transport events.
type EventKind int

const (
	// EventOpen fires when the handshake completes and the socket is usable.
	EventOpen EventKind = iota
	// EventClosed fires when the socket drops; Reason is always set.
	EventClosed
	// EventMessage carries one inbound message.
	EventMessage
	// EventCredentials carries updated credential material that must be
	// persisted before further processing.
	EventCredentials
	// EventPaired fires once when a pairing completes on a new device.
	EventPaired
)

// Event is one item on a transport's event stream. Events for a single
// transport are delivered in emission order.
type Event struct {
	Kind        EventKind
	Reason      DisconnectReason // EventClosed
	Message     *Incoming        // EventMessage
	Credentials []byte           // EventCredentials
}

// Incoming is a raw inbound message normalized just enough to route:
// identity and addressing are extracted, the payload stays opaque until the
// classifier runs.
type Incoming struct {
	SessionID string
	ID        string
	Chat      types.JID
	Sender    types.JID
	IsFromMe  bool
	IsGroup   bool
	PushName  string
	Timestamp time.Time
	Message   *waE2E.Message
}

// ParticipantChange names a group membership mutation.
type ParticipantChange string

const (
	ParticipantPromote ParticipantChange = "promote"
	ParticipantDemote  ParticipantChange = "demote"
	ParticipantRemove  ParticipantChange = "remove"
)

// Transport is the capability surface the gateway consumes. Implementations
// must be safe for concurrent use and honor context cancellation on every
// blocking call.
type Transport interface {
	// Connect dials the socket using stored credentials when present.
	Connect(ctx context.Context) error
	// Disconnect tears the socket down without touching credentials.
	Disconnect()
	// Logout revokes the device registration and clears local credentials.
	Logout(ctx context.Context) error
	// IsConnected reports live socket state.
	IsConnected() bool
	// HasCredentials reports whether a stored credential set exists, i.e.
	// whether Connect can resume without a new pairing.
	HasCredentials() bool
	// RequestPairingCode asks the network for a linking code for number.
	// Only valid while connected without credentials.
	RequestPairingCode(ctx context.Context, number string) (string, error)
	// OwnJID returns the authenticated account identifier, or the zero JID
	// before pairing completes.
	OwnJID() types.JID

	// SendMessage delivers a full protocol message to a chat.
	SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) error
	// React attaches an emoji reaction to the identified message.
	React(ctx context.Context, chat, sender types.JID, messageID, emoji string) error
	// MarkRead acknowledges the identified messages as seen.
	MarkRead(ctx context.Context, ids []string, ts time.Time, chat, sender types.JID) error
	// GroupInfo fetches group metadata including the participant list.
	GroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
	// UpdateGroupParticipants applies a membership change to a group.
	UpdateGroupParticipants(ctx context.Context, group types.JID, members []types.JID, change ParticipantChange) error
	// FollowChannel subscribes the account to a newsletter channel.
	FollowChannel(ctx context.Context, jid string) error

	// Events returns the transport's event stream. The stream is closed
	// when the transport is torn down for good.
	Events() <-chan Event
	// SnapshotCredentials serializes the current credential material as an
	// opaque blob for durable storage.
	SnapshotCredentials() []byte
}

// Factory builds one Transport per phone number, backed by that number's
// credential store.
type Factory interface {
	New(ctx context.Context, number string) (Transport, error)
}

// BaseUser returns the device-agnostic identity of a JID: same user on a
// second linked device compares equal.
func BaseUser(j types.JID) string { return j.User }

// SameUser reports whether two JIDs address the same account, ignoring
// device and agent suffixes.
func SameUser(a, b types.JID) bool {
	return a.User != "" && a.User == b.User
}
