// Package domain defines the persistence models for sessions, pairing codes,
// and per-user settings. These documents live in MongoDB and form the durable
// side of the gateway; in-memory connection handles are rebuilt from them.
package domain

import (
	"time"
)

// Session is the durable record of one WhatsApp account, keyed by phone
// number. The transport's key material lives in its own credential store;
// Credentials here is an opaque snapshot used to decide whether a number can
// resume without re-pairing.
//
// Lifecycle:
//   - Created on the first successful pairing-code request.
//   - IsActive flips false on a terminal non-logout disconnect; the document
//     survives until ExpiresAt (store-enforced TTL).
//   - Deleted immediately on an explicit logout.
type Session struct {
	Number      string    `bson:"number" json:"number"`
	Credentials []byte    `bson:"credentials,omitempty" json:"-"`
	IsActive    bool      `bson:"isActive" json:"is_active"`
	LastActive  time.Time `bson:"lastActive" json:"last_active"`
	CreatedAt   time.Time `bson:"createdAt" json:"created_at"`
	ExpiresAt   time.Time `bson:"expiresAt" json:"-"`
}

// CollectionName returns the MongoDB collection for Session documents.
func (Session) CollectionName() string { return "sessions" }

// PairingCode is the ephemeral linking code issued for a number. Expiry is
// enforced by the store (TTL index on ExpiresAt), not by application checks.
// At most one unexpired code exists per number.
type PairingCode struct {
	Number    string    `bson:"number" json:"number"`
	Code      string    `bson:"code" json:"code"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	ExpiresAt time.Time `bson:"expiresAt" json:"-"`
}

// CollectionName returns the MongoDB collection for PairingCode documents.
func (PairingCode) CollectionName() string { return "pairing_codes" }

// AutoStatus groups the per-user toggles applied to status broadcasts.
type AutoStatus struct {
	Seen  bool `bson:"seen" json:"seen"`
	React bool `bson:"react" json:"react"`
	Reply bool `bson:"reply" json:"reply"`
}

// UserSettings is the per-number configuration document. It is created
// lazily with defaults on first read and removed together with the Session
// on logout.
type UserSettings struct {
	Number     string     `bson:"number" json:"number"`
	Prefix     string     `bson:"prefix" json:"prefix"`
	AutoStatus AutoStatus `bson:"autoStatus" json:"auto_status"`
	Channels   []string   `bson:"channels" json:"channels"`
	UpdatedAt  time.Time  `bson:"updatedAt" json:"updated_at"`
}

// CollectionName returns the MongoDB collection for UserSettings documents.
func (UserSettings) CollectionName() string { return "user_settings" }

// StatsSnapshot is a periodic durable copy of the in-memory counters, used
// by dashboards that poll the store instead of holding a live socket.
type StatsSnapshot struct {
	ActiveConnections int       `bson:"activeConnections" json:"active_connections"`
	TotalUsers        int64     `bson:"totalUsers" json:"total_users"`
	TakenAt           time.Time `bson:"takenAt" json:"taken_at"`
}

// CollectionName returns the MongoDB collection for StatsSnapshot documents.
func (StatsSnapshot) CollectionName() string { return "stats_snapshots" }
