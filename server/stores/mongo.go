package stores

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	reportsCollection  = "reports"
	profilesCollection = "organization_profiles"

	// maxUpdateAttempts bounds optimistic retries of a conditional update.
	maxUpdateAttempts = 5
)

// ConnectMongo connects to uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string, logger *slog.Logger) (*mongo.Client, error) {
	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	start := time.Now()
	client, err := mongo.Connect(dctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(dctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	logger.Info("connected to mongo", "duration", time.Since(start).Round(time.Millisecond))
	return client, nil
}

// EnsureMongoIndexes creates the secondary indexes used by the list queries.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	reports := db.Collection(reportsCollection)
	if _, err := reports.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "incidentType", Value: 1}, {Key: "consentToShare", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create report indexes: %w", err)
	}
	profiles := db.Collection(profilesCollection)
	if _, err := profiles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "supportedIncidentTypes", Value: 1}, {Key: "verified", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create profile indexes: %w", err)
	}
	return nil
}
