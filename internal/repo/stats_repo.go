// Package repo implements the data persistence layer for domain entities,
// backed by the official MongoDB driver. This file provides small
// aggregate/statistics persistence used by the stats reporter and the
// store diagnostics endpoint.
package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

// SaveStatsSnapshot appends one durable copy of the in-memory counters.
func SaveStatsSnapshot(ctx context.Context, db *mongo.Database, snap domain.StatsSnapshot) error {
	snap.TakenAt = time.Now().UTC()
	_, err := db.Collection(snap.CollectionName()).InsertOne(ctx, snap)
	return err
}

// LatestStatsSnapshot returns the most recent snapshot, or ErrNotFound when
// none has been written yet.
func LatestStatsSnapshot(ctx context.Context, db *mongo.Database) (*domain.StatsSnapshot, error) {
	var snap domain.StatsSnapshot
	opts := options.FindOne().SetSort(bson.D{{Key: "takenAt", Value: -1}})
	err := db.Collection(snap.CollectionName()).
		FindOne(ctx, bson.M{}, opts).
		Decode(&snap)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
