package stores

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/datastore"

	"github.com/mscno/safereport/server/model"
)

const organizationKind = "OrganizationProfile"

// OrganizationDataStore implements OrganizationStore using Google Cloud Datastore.
type OrganizationDataStore struct {
	client *datastore.Client
	logger *slog.Logger
}

func NewOrganizationDataStore(logger *slog.Logger, client *datastore.Client) *OrganizationDataStore {
	return &OrganizationDataStore{client: client, logger: logger}
}

// organizationKey creates a datastore key for an organization profile.
func (s *OrganizationDataStore) organizationKey(id string) *datastore.Key {
	return datastore.NameKey(organizationKind, id, nil)
}

func (s *OrganizationDataStore) CreateProfile(ctx context.Context, profile model.OrganizationProfile) error {
	key := s.organizationKey(profile.OrganizationID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing model.OrganizationProfile
		err := tx.Get(key, &existing)
		if err == nil {
			return ErrProfileExists
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return fmt.Errorf("failed to check for existing profile: %w", err)
		}
		if _, err := tx.Put(key, &profile); err != nil {
			return fmt.Errorf("failed to put profile: %w", err)
		}
		return nil
	})
	return err
}

func (s *OrganizationDataStore) GetProfile(ctx context.Context, organizationID string) (model.OrganizationProfile, error) {
	var profile model.OrganizationProfile
	err := s.client.Get(ctx, s.organizationKey(organizationID), &profile)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return model.OrganizationProfile{}, ErrProfileNotFound
	}
	if err != nil {
		return model.OrganizationProfile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

func (s *OrganizationDataStore) UpdateProfile(ctx context.Context, organizationID string, updateFn func(model.OrganizationProfile) (model.OrganizationProfile, error)) (model.OrganizationProfile, error) {
	key := s.organizationKey(organizationID)
	var updated model.OrganizationProfile
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var profile model.OrganizationProfile
		if err := tx.Get(key, &profile); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return ErrProfileNotFound
			}
			return fmt.Errorf("failed to get profile for update: %w", err)
		}
		var err error
		updated, err = updateFn(profile)
		if err != nil {
			return err
		}
		updated.OrganizationID = organizationID
		if _, err := tx.Put(key, &updated); err != nil {
			return fmt.Errorf("failed to put updated profile: %w", err)
		}
		return nil
	})
	if errors.Is(err, datastore.ErrConcurrentTransaction) {
		return model.OrganizationProfile{}, fmt.Errorf("%w: profile %s", ErrConflict, organizationID)
	}
	if err != nil {
		return model.OrganizationProfile{}, err
	}
	return updated, nil
}

// ListProfiles uses equality filters only; supportedIncidentTypes is a
// multi-valued property, so the filter matches any element.
func (s *OrganizationDataStore) ListProfiles(ctx context.Context, filter ProfileFilter) ([]model.OrganizationProfile, error) {
	q := datastore.NewQuery(organizationKind)
	if filter.VerifiedOnly {
		q = q.FilterField("verified", "=", true)
	}
	if filter.IncidentType != "" {
		q = q.FilterField("supportedIncidentTypes", "=", string(filter.IncidentType))
	}

	var found []model.OrganizationProfile
	if _, err := s.client.GetAll(ctx, q, &found); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	profiles := make([]model.OrganizationProfile, 0, len(found))
	for _, p := range found {
		if filter.Match(p) {
			profiles = append(profiles, p)
		}
	}
	sortByOrganizationID(profiles)
	return profiles, nil
}

var _ OrganizationStore = (*OrganizationDataStore)(nil)
