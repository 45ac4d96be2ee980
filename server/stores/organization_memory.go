package stores

import (
	"context"
	"sync"

	"github.com/mscno/safereport/server/model"
)

// OrganizationMemoryStore keeps organization profiles in process memory.
type OrganizationMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]model.OrganizationProfile // keyed by organization id
}

func NewOrganizationMemoryStore() *OrganizationMemoryStore {
	return &OrganizationMemoryStore{profiles: make(map[string]model.OrganizationProfile)}
}

func (s *OrganizationMemoryStore) CreateProfile(ctx context.Context, profile model.OrganizationProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[profile.OrganizationID]; exists {
		return ErrProfileExists
	}
	s.profiles[profile.OrganizationID] = cloneProfile(profile)
	return nil
}

func (s *OrganizationMemoryStore) GetProfile(ctx context.Context, organizationID string) (model.OrganizationProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[organizationID]
	if !ok {
		return model.OrganizationProfile{}, ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

func (s *OrganizationMemoryStore) UpdateProfile(ctx context.Context, organizationID string, updateFn func(model.OrganizationProfile) (model.OrganizationProfile, error)) (model.OrganizationProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[organizationID]
	if !ok {
		return model.OrganizationProfile{}, ErrProfileNotFound
	}
	updated, err := updateFn(cloneProfile(p))
	if err != nil {
		return model.OrganizationProfile{}, err
	}
	updated.OrganizationID = organizationID
	s.profiles[organizationID] = cloneProfile(updated)
	return updated, nil
}

func (s *OrganizationMemoryStore) ListProfiles(ctx context.Context, filter ProfileFilter) ([]model.OrganizationProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]model.OrganizationProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if filter.Match(p) {
			list = append(list, cloneProfile(p))
		}
	}
	sortByOrganizationID(list)
	return list, nil
}

var _ OrganizationStore = (*OrganizationMemoryStore)(nil)
