// Package repo implements the data persistence layer for domain entities,
// backed by the official MongoDB driver. This file provides repository
// functions for Session and PairingCode documents.
//
// All functions are context-aware and accept a *mongo.Database handle,
// making them safe for use from any service. They follow the "thin
// repository" approach: no business logic, only CRUD persistence and query
// composition.
//
// Error semantics:
//   - When a document is not found, functions return mongo.ErrNoDocuments
//     (also exported here as ErrNotFound for convenience).
//   - On store errors (connectivity, duplicate keys, etc.), the raw driver
//     error is propagated.
package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

// UpsertSession inserts or refreshes the Session document for number,
// marking it active and extending its TTL window. The same number never
// produces two documents (unique index on number).
func UpsertSession(ctx context.Context, db *mongo.Database, number string, ttl time.Duration) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		Number:     number,
		IsActive:   true,
		LastActive: now,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	filter := bson.M{"number": number}
	update := bson.M{
		"$set": bson.M{
			"isActive":   true,
			"lastActive": now,
			"expiresAt":  s.ExpiresAt,
		},
		"$setOnInsert": bson.M{
			"number":    number,
			"createdAt": now,
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err := db.Collection(s.CollectionName()).UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches the Session for number, or ErrNotFound if absent.
func GetSession(ctx context.Context, db *mongo.Database, number string) (*domain.Session, error) {
	var s domain.Session
	err := db.Collection(s.CollectionName()).
		FindOne(ctx, bson.M{"number": number}).
		Decode(&s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListActiveSessions returns every Session currently marked active. Used on
// startup to resume connections from stored credentials.
func ListActiveSessions(ctx context.Context, db *mongo.Database) ([]domain.Session, error) {
	cur, err := db.Collection(domain.Session{}.CollectionName()).
		Find(ctx, bson.M{"isActive": true})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveSessionCredentials persists updated credential material for number.
// The write must land before the caller acknowledges the update upstream;
// a dropped credential save forces a re-pair.
func SaveSessionCredentials(ctx context.Context, db *mongo.Database, number string, creds []byte) error {
	_, err := db.Collection(domain.Session{}.CollectionName()).UpdateOne(ctx,
		bson.M{"number": number},
		bson.M{"$set": bson.M{
			"credentials": creds,
			"lastActive":  time.Now().UTC(),
		}},
	)
	return err
}

// MarkSessionInactive flips IsActive off while keeping the document and its
// credentials for a later resume (non-logout termination).
func MarkSessionInactive(ctx context.Context, db *mongo.Database, number string) error {
	res, err := db.Collection(domain.Session{}.CollectionName()).UpdateOne(ctx,
		bson.M{"number": number},
		bson.M{"$set": bson.M{
			"isActive":   false,
			"lastActive": time.Now().UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes the Session document for number outright. Used on
// explicit logout; missing documents are not an error.
func DeleteSession(ctx context.Context, db *mongo.Database, number string) error {
	_, err := db.Collection(domain.Session{}.CollectionName()).
		DeleteOne(ctx, bson.M{"number": number})
	return err
}

// CountSessions returns total and active session counts for diagnostics.
func CountSessions(ctx context.Context, db *mongo.Database) (total, active int64, err error) {
	coll := db.Collection(domain.Session{}.CollectionName())
	total, err = coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, 0, err
	}
	active, err = coll.CountDocuments(ctx, bson.M{"isActive": true})
	if err != nil {
		return 0, 0, err
	}
	return total, active, nil
}

// UpsertPairingCode records the freshly issued code for number with a fixed
// validity window. Reissuing replaces the previous code, so at most one
// unexpired code exists per number.
func UpsertPairingCode(ctx context.Context, db *mongo.Database, number, code string, ttl time.Duration) (*domain.PairingCode, error) {
	now := time.Now().UTC()
	pc := &domain.PairingCode{
		Number:    number,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	opts := options.Update().SetUpsert(true)
	_, err := db.Collection(pc.CollectionName()).UpdateOne(ctx,
		bson.M{"number": number},
		bson.M{"$set": bson.M{
			"code":      code,
			"createdAt": now,
			"expiresAt": pc.ExpiresAt,
		}, "$setOnInsert": bson.M{
			"number": number,
		}},
		opts,
	)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// GetPairingCode fetches the current unexpired code for number. The TTL
// index lags real expiry by up to a minute, so the query also filters on
// ExpiresAt to honor the 2-minute window exactly.
func GetPairingCode(ctx context.Context, db *mongo.Database, number string) (*domain.PairingCode, error) {
	var pc domain.PairingCode
	err := db.Collection(pc.CollectionName()).
		FindOne(ctx, bson.M{
			"number":    number,
			"expiresAt": bson.M{"$gt": time.Now().UTC()},
		}).
		Decode(&pc)
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

// DeletePairingCode removes any code stored for number.
func DeletePairingCode(ctx context.Context, db *mongo.Database, number string) error {
	_, err := db.Collection(domain.PairingCode{}.CollectionName()).
		DeleteOne(ctx, bson.M{"number": number})
	return err
}
