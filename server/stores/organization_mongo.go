package stores

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mscno/safereport/server/model"
)

type profileDocument struct {
	model.OrganizationProfile `bson:",inline"`
	Revision                  int64 `bson:"revision"`
}

// OrganizationMongoStore implements OrganizationStore using a MongoDB collection.
type OrganizationMongoStore struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

func NewOrganizationMongoStore(logger *slog.Logger, db *mongo.Database) *OrganizationMongoStore {
	return &OrganizationMongoStore{coll: db.Collection(profilesCollection), logger: logger}
}

func (s *OrganizationMongoStore) CreateProfile(ctx context.Context, profile model.OrganizationProfile) error {
	_, err := s.coll.InsertOne(ctx, profileDocument{OrganizationProfile: profile, Revision: 1})
	if mongo.IsDuplicateKeyError(err) {
		return ErrProfileExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

func (s *OrganizationMongoStore) find(ctx context.Context, organizationID string) (profileDocument, error) {
	var doc profileDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": organizationID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return profileDocument{}, ErrProfileNotFound
	}
	if err != nil {
		return profileDocument{}, fmt.Errorf("failed to get profile: %w", err)
	}
	return doc, nil
}

func (s *OrganizationMongoStore) GetProfile(ctx context.Context, organizationID string) (model.OrganizationProfile, error) {
	doc, err := s.find(ctx, organizationID)
	if err != nil {
		return model.OrganizationProfile{}, err
	}
	return doc.OrganizationProfile, nil
}

func (s *OrganizationMongoStore) UpdateProfile(ctx context.Context, organizationID string, updateFn func(model.OrganizationProfile) (model.OrganizationProfile, error)) (model.OrganizationProfile, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		doc, err := s.find(ctx, organizationID)
		if err != nil {
			return model.OrganizationProfile{}, err
		}
		updated, err := updateFn(doc.OrganizationProfile)
		if err != nil {
			return model.OrganizationProfile{}, err
		}
		updated.OrganizationID = organizationID

		res, err := s.coll.ReplaceOne(ctx,
			bson.M{"_id": organizationID, "revision": doc.Revision},
			profileDocument{OrganizationProfile: updated, Revision: doc.Revision + 1},
		)
		if err != nil {
			return model.OrganizationProfile{}, fmt.Errorf("failed to replace profile: %w", err)
		}
		if res.MatchedCount == 1 {
			return updated, nil
		}
		s.logger.DebugContext(ctx, "profile changed during update, retrying", "organization_id", organizationID, "attempt", attempt)
	}
	return model.OrganizationProfile{}, fmt.Errorf("%w: profile %s", ErrConflict, organizationID)
}

func (s *OrganizationMongoStore) ListProfiles(ctx context.Context, filter ProfileFilter) ([]model.OrganizationProfile, error) {
	q := bson.M{}
	if filter.VerifiedOnly {
		q["verified"] = true
	}
	if filter.IncidentType != "" {
		q["supportedIncidentTypes"] = filter.IncidentType
	}
	cur, err := s.coll.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	var docs []profileDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}
	profiles := make([]model.OrganizationProfile, 0, len(docs))
	for _, d := range docs {
		profiles = append(profiles, d.OrganizationProfile)
	}
	return profiles, nil
}

var _ OrganizationStore = (*OrganizationMongoStore)(nil)
