// Package stores persists reports and organization profiles. Every backend
// implements the same interfaces; updates go through an update function run
// atomically against the current stored value.
package stores

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/mscno/safereport/pkg/incident"
	"github.com/mscno/safereport/server/model"
)

var (
	ErrReportExists     = errors.New("report already exists")
	ErrReportNotFound   = errors.New("report not found")
	ErrProfileExists    = errors.New("organization profile already exists")
	ErrProfileNotFound  = errors.New("organization profile not found")
	ErrConflict         = errors.New("concurrent modification")
	ErrInvalidPageLimit = errors.New("limit must not be negative")
)

// ReportFilter selects reports. Zero fields match everything.
type ReportFilter struct {
	IncidentTypes []incident.Category
	Status        model.Status
	ConsentOnly   bool
	// UpdatedBefore matches reports last updated strictly before the instant.
	UpdatedBefore time.Time
	Limit         int
}

// Match reports whether r satisfies f.
func (f ReportFilter) Match(r model.Report) bool {
	if f.ConsentOnly && !r.ConsentToShare {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if len(f.IncidentTypes) > 0 && !slices.Contains(f.IncidentTypes, r.IncidentType) {
		return false
	}
	if !f.UpdatedBefore.IsZero() && !r.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	return true
}

// ReportStore persists reports.
type ReportStore interface {
	CreateReport(ctx context.Context, report model.Report) error
	GetReport(ctx context.Context, id string) (model.Report, error)
	// UpdateReport applies updateFn to the stored report and persists the
	// result only if the report was not modified concurrently. Errors from
	// updateFn abort the update and are returned unchanged.
	UpdateReport(ctx context.Context, id string, updateFn func(model.Report) (model.Report, error)) (model.Report, error)
	// ListReports returns matching reports, newest first.
	ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error)
}

// ProfileFilter selects organization profiles. Zero fields match everything.
type ProfileFilter struct {
	IncidentType incident.Category
	VerifiedOnly bool
}

func (f ProfileFilter) Match(p model.OrganizationProfile) bool {
	if f.VerifiedOnly && !p.Verified {
		return false
	}
	if f.IncidentType != "" && !p.Supports(f.IncidentType) {
		return false
	}
	return true
}

// OrganizationStore persists organization profiles.
type OrganizationStore interface {
	CreateProfile(ctx context.Context, profile model.OrganizationProfile) error
	GetProfile(ctx context.Context, organizationID string) (model.OrganizationProfile, error)
	UpdateProfile(ctx context.Context, organizationID string, updateFn func(model.OrganizationProfile) (model.OrganizationProfile, error)) (model.OrganizationProfile, error)
	// ListProfiles returns matching profiles ordered by organization id.
	ListProfiles(ctx context.Context, filter ProfileFilter) ([]model.OrganizationProfile, error)
}

// sortNewestFirst orders reports by creation time, newest first, with the id
// as a tie breaker.
func sortNewestFirst(reports []model.Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].CreatedAt.After(reports[j].CreatedAt)
		}
		return reports[i].ID < reports[j].ID
	})
}

func applyLimit(reports []model.Report, limit int) []model.Report {
	if limit > 0 && len(reports) > limit {
		return reports[:limit]
	}
	return reports
}

func sortByOrganizationID(profiles []model.OrganizationProfile) {
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].OrganizationID < profiles[j].OrganizationID
	})
}

func cloneReport(r model.Report) model.Report {
	r.EvidenceLocators = slices.Clone(r.EvidenceLocators)
	r.StatusHistory = slices.Clone(r.StatusHistory)
	return r
}

func cloneProfile(p model.OrganizationProfile) model.OrganizationProfile {
	p.SupportedIncidentTypes = slices.Clone(p.SupportedIncidentTypes)
	p.Services = slices.Clone(p.Services)
	return p
}
