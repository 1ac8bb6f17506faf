// Package repo implements the data persistence layer for domain entities,
// backed by the official MongoDB driver. This file contains store
// bootstrapping: client connection, ping, and index creation.
//
// Index policy:
//   - sessions.number and user_settings.number are unique (one document per
//     phone number).
//   - sessions.expiresAt and pairing_codes.expiresAt carry TTL indexes with
//     expireAfterSeconds=0, so expiry is enforced by the store itself rather
//     than by application sweeps.
package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

// ErrNotFound is returned when a requested document does not exist.
// It aliases mongo.ErrNoDocuments for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = mongo.ErrNoDocuments

// Open connects to MongoDB, verifies the connection with a ping, and returns
// a handle to the named database.
func Open(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client.Database(dbName), nil
}

// EnsureIndexes creates the unique and TTL indexes the gateway relies on.
// It is idempotent and safe to run on every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	sessions := db.Collection(domain.Session{}.CollectionName())
	_, err := sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return err
	}

	codes := db.Collection(domain.PairingCode{}.CollectionName())
	_, err = codes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return err
	}

	settings := db.Collection(domain.UserSettings{}.CollectionName())
	_, err = settings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "number", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
