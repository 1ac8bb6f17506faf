// Package repo implements the data persistence layer for domain entities,
// backed by the official MongoDB driver. This file provides repository
// functions for the UserSettings document.
package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

// GetSettings fetches the settings document for number, or ErrNotFound if
// it has never been written. Default fallback is a service concern; the
// repository stays thin.
func GetSettings(ctx context.Context, db *mongo.Database, number string) (*domain.UserSettings, error) {
	var s domain.UserSettings
	err := db.Collection(s.CollectionName()).
		FindOne(ctx, bson.M{"number": number}).
		Decode(&s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSettings writes the full settings document for its number.
func UpsertSettings(ctx context.Context, db *mongo.Database, s *domain.UserSettings) error {
	s.UpdatedAt = time.Now().UTC()
	opts := options.Update().SetUpsert(true)
	_, err := db.Collection(s.CollectionName()).UpdateOne(ctx,
		bson.M{"number": s.Number},
		bson.M{"$set": bson.M{
			"prefix":     s.Prefix,
			"autoStatus": s.AutoStatus,
			"channels":   s.Channels,
			"updatedAt":  s.UpdatedAt,
		}, "$setOnInsert": bson.M{
			"number": s.Number,
		}},
		opts,
	)
	return err
}

// DeleteSettings removes the settings document for number. Deleted together
// with the Session on logout; a missing document is not an error.
func DeleteSettings(ctx context.Context, db *mongo.Database, number string) error {
	_, err := db.Collection(domain.UserSettings{}.CollectionName()).
		DeleteOne(ctx, bson.M{"number": number})
	return err
}
