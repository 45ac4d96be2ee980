package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/mscno/safereport/server/model"
)

var profilesBucket = []byte("organization_profiles")

// OrganizationBoltStore persists organization profiles in a bbolt bucket.
// Keys are organization ids, so ForEach yields them in id order.
type OrganizationBoltStore struct {
	db *bbolt.DB
}

func NewOrganizationBoltStore(db *bbolt.DB) *OrganizationBoltStore {
	return &OrganizationBoltStore{db: db}
}

func (s *OrganizationBoltStore) CreateProfile(ctx context.Context, profile model.OrganizationProfile) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(profilesBucket)
		if err != nil {
			return err
		}
		if bucket.Get([]byte(profile.OrganizationID)) != nil {
			return ErrProfileExists
		}
		data, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("failed to marshal profile: %w", err)
		}
		return bucket.Put([]byte(profile.OrganizationID), data)
	})
}

func (s *OrganizationBoltStore) GetProfile(ctx context.Context, organizationID string) (model.OrganizationProfile, error) {
	var profile model.OrganizationProfile
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(profilesBucket)
		if bucket == nil {
			return ErrProfileNotFound
		}
		val := bucket.Get([]byte(organizationID))
		if val == nil {
			return ErrProfileNotFound
		}
		return json.Unmarshal(val, &profile)
	})
	return profile, err
}

func (s *OrganizationBoltStore) UpdateProfile(ctx context.Context, organizationID string, updateFn func(model.OrganizationProfile) (model.OrganizationProfile, error)) (model.OrganizationProfile, error) {
	var updated model.OrganizationProfile
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(profilesBucket)
		if bucket == nil {
			return ErrProfileNotFound
		}
		val := bucket.Get([]byte(organizationID))
		if val == nil {
			return ErrProfileNotFound
		}
		var profile model.OrganizationProfile
		if err := json.Unmarshal(val, &profile); err != nil {
			return err
		}
		var err error
		updated, err = updateFn(profile)
		if err != nil {
			return err
		}
		updated.OrganizationID = organizationID
		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to marshal profile: %w", err)
		}
		return bucket.Put([]byte(organizationID), data)
	})
	if err != nil {
		return model.OrganizationProfile{}, err
	}
	return updated, nil
}

func (s *OrganizationBoltStore) ListProfiles(ctx context.Context, filter ProfileFilter) ([]model.OrganizationProfile, error) {
	profiles := make([]model.OrganizationProfile, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(profilesBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var p model.OrganizationProfile
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("failed to decode profile %s: %w", k, err)
			}
			if filter.Match(p) {
				profiles = append(profiles, p)
			}
			return nil
		})
	})
	return profiles, err
}

var _ OrganizationStore = (*OrganizationBoltStore)(nil)
