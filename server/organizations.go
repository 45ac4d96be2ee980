package server

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mscno/safereport/pkg/incident"
	"github.com/mscno/safereport/server/model"
	"github.com/mscno/safereport/server/stores"
)

// ProfileInput is an organization's own profile registration.
type ProfileInput struct {
	Name                   string              `json:"name" validate:"notblank"`
	Description            string              `json:"description" validate:"notblank"`
	Phone                  string              `json:"phone" validate:"notblank,phone"`
	Address                string              `json:"address" validate:"notblank"`
	ContactPerson          string              `json:"contactPerson" validate:"notblank"`
	SupportedIncidentTypes []incident.Category `json:"supportedIncidentTypes" validate:"required,min=1,dive,category"`
	Services               []string            `json:"services" validate:"omitempty,dive,notblank"`
}

// ReviewInput is an admin decision on a profile. Nil fields are unchanged.
type ReviewInput struct {
	Verified *bool    `json:"verified"`
	Rating   *float64 `json:"rating" validate:"omitempty,gte=0,lte=5"`
}

// OrganizationService matches and maintains organization profiles.
type OrganizationService struct {
	profiles stores.OrganizationStore
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewOrganizationService(profiles stores.OrganizationStore, logger *slog.Logger) *OrganizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrganizationService{
		profiles: profiles,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// FindByIncidentType returns verified profiles supporting incidentType,
// highest rated first.
func (s *OrganizationService) FindByIncidentType(ctx context.Context, incidentType string) ([]model.OrganizationProfile, error) {
	category, err := incident.ParseCategory(incidentType)
	if err != nil {
		return nil, newValidationError("incidentType", "must be one of the incident types: "+categoryList())
	}
	profiles, err := s.profiles.ListProfiles(ctx, stores.ProfileFilter{IncidentType: category, VerifiedOnly: true})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list profiles", "incidentType", category, "error", err)
		return nil, &PersistenceError{Op: "list profiles", Err: err}
	}
	out := make([]model.OrganizationProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.Matches(category) {
			out = append(out, normalizeProfile(p))
		}
	}
	sortByRating(out)
	return out, nil
}

// ListAll returns every profile, verified or not, highest rated first.
func (s *OrganizationService) ListAll(ctx context.Context) ([]model.OrganizationProfile, error) {
	profiles, err := s.profiles.ListProfiles(ctx, stores.ProfileFilter{})
	if err != nil {
		return nil, &PersistenceError{Op: "list profiles", Err: err}
	}
	out := make([]model.OrganizationProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, normalizeProfile(p))
	}
	sortByRating(out)
	return out, nil
}

// GetProfile returns one profile.
func (s *OrganizationService) GetProfile(ctx context.Context, organizationID string) (model.OrganizationProfile, error) {
	p, err := s.profiles.GetProfile(ctx, organizationID)
	if err != nil {
		if errors.Is(err, stores.ErrProfileNotFound) {
			return model.OrganizationProfile{}, &NotFoundError{Resource: "organization", ID: organizationID}
		}
		return model.OrganizationProfile{}, &PersistenceError{Op: "get profile", Err: err}
	}
	return normalizeProfile(p), nil
}

// RegisterProfile creates or replaces the caller's own profile. Verification
// and rating are kept from the stored profile.
func (s *OrganizationService) RegisterProfile(ctx context.Context, actor model.Actor, in ProfileInput) (model.OrganizationProfile, error) {
	if actor.Role != model.RoleOrganization {
		return model.OrganizationProfile{}, &ForbiddenError{Reason: "only organization accounts have a profile"}
	}
	if err := validateStruct(s.validate, in); err != nil {
		return model.OrganizationProfile{}, err
	}

	now := s.now().UTC()
	apply := func(p model.OrganizationProfile) model.OrganizationProfile {
		p.OrganizationID = actor.ID
		p.Name = strings.TrimSpace(in.Name)
		p.Description = strings.TrimSpace(in.Description)
		p.Phone = strings.TrimSpace(in.Phone)
		p.Address = strings.TrimSpace(in.Address)
		p.ContactPerson = strings.TrimSpace(in.ContactPerson)
		p.SupportedIncidentTypes = dedupeCategories(in.SupportedIncidentTypes)
		p.Services = trimAll(in.Services)
		p.UpdatedAt = now
		return p
	}

	created := apply(model.OrganizationProfile{CreatedAt: now})
	err := s.profiles.CreateProfile(ctx, created)
	if err == nil {
		s.logger.InfoContext(ctx, "organization profile registered", "organizationId", actor.ID)
		return normalizeProfile(created), nil
	}
	if !errors.Is(err, stores.ErrProfileExists) {
		s.logger.ErrorContext(ctx, "failed to create profile", "organizationId", actor.ID, "error", err)
		return model.OrganizationProfile{}, &PersistenceError{Op: "create profile", Err: err}
	}

	updated, err := s.profiles.UpdateProfile(ctx, actor.ID, func(p model.OrganizationProfile) (model.OrganizationProfile, error) {
		return apply(p), nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update profile", "organizationId", actor.ID, "error", err)
		return model.OrganizationProfile{}, &PersistenceError{Op: "update profile", Err: err}
	}
	s.logger.InfoContext(ctx, "organization profile updated", "organizationId", actor.ID)
	return normalizeProfile(updated), nil
}

// ReviewProfile sets the verification flag and rating of a profile.
func (s *OrganizationService) ReviewProfile(ctx context.Context, actor model.Actor, organizationID string, in ReviewInput) (model.OrganizationProfile, error) {
	if actor.Role != model.RoleAdmin {
		return model.OrganizationProfile{}, &ForbiddenError{Reason: "only admins review organizations"}
	}
	if in.Verified == nil && in.Rating == nil {
		return model.OrganizationProfile{}, newValidationError("verified", "verified or rating must be set")
	}
	if err := validateStruct(s.validate, in); err != nil {
		return model.OrganizationProfile{}, err
	}

	updated, err := s.profiles.UpdateProfile(ctx, organizationID, func(p model.OrganizationProfile) (model.OrganizationProfile, error) {
		if in.Verified != nil {
			p.Verified = *in.Verified
		}
		if in.Rating != nil {
			p.Rating = *in.Rating
		}
		p.UpdatedAt = s.now().UTC()
		return p, nil
	})
	if err != nil {
		if errors.Is(err, stores.ErrProfileNotFound) {
			return model.OrganizationProfile{}, &NotFoundError{Resource: "organization", ID: organizationID}
		}
		s.logger.ErrorContext(ctx, "failed to review profile", "organizationId", organizationID, "error", err)
		return model.OrganizationProfile{}, &PersistenceError{Op: "update profile", Err: err}
	}
	s.logger.InfoContext(ctx, "organization profile reviewed",
		"organizationId", organizationID,
		"verified", updated.Verified,
		"rating", updated.Rating,
		"admin", actor.ID,
	)
	return normalizeProfile(updated), nil
}

// sortByRating orders by rating descending. Stores list by organization id,
// so ties keep that order.
func sortByRating(profiles []model.OrganizationProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Rating > profiles[j].Rating
	})
}

func dedupeCategories(in []incident.Category) []incident.Category {
	out := make([]incident.Category, 0, len(in))
	seen := make(map[incident.Category]bool, len(in))
	for _, c := range in {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

func normalizeProfile(p model.OrganizationProfile) model.OrganizationProfile {
	if p.SupportedIncidentTypes == nil {
		p.SupportedIncidentTypes = []incident.Category{}
	}
	if p.Services == nil {
		p.Services = []string{}
	}
	return p
}
