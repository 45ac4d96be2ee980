package stores

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscno/safereport/pkg/incident"
	"github.com/mscno/safereport/pkg/upload"
	"github.com/mscno/safereport/server/model"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestReport(createdAt time.Time, category incident.Category, consent bool) model.Report {
	return model.Report{
		ID:             uuid.NewString(),
		IncidentTitle:  "Incident",
		Description:    "description",
		OccurredAt:     createdAt.Add(-time.Hour),
		Location:       "Bucharest",
		ContactPhone:   "+40 700 000 000",
		UrgencyLevel:   model.UrgencyNormal,
		ConsentToShare: consent,
		IncidentType:   category,
		EvidenceLocators: []upload.Locator{
			{URL: "local://uploads/1-a.jpg", ID: "local/1-a.jpg"},
		},
		Status:    model.StatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func ids(reports []model.Report) []string {
	out := make([]string, len(reports))
	for i, r := range reports {
		out[i] = r.ID
	}
	return out
}

func testReportStore(t *testing.T, storeFactory func() ReportStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := storeFactory()
		report := newTestReport(baseTime, incident.DomesticViolence, true)
		require.NoError(t, store.CreateReport(ctx, report))

		got, err := store.GetReport(ctx, report.ID)
		require.NoError(t, err)
		assert.Equal(t, report.ID, got.ID)
		assert.Equal(t, report.IncidentType, got.IncidentType)
		assert.Equal(t, report.EvidenceLocators, got.EvidenceLocators)
		assert.True(t, report.CreatedAt.Equal(got.CreatedAt))

		err = store.CreateReport(ctx, report)
		assert.ErrorIs(t, err, ErrReportExists)
	})

	t.Run("get missing", func(t *testing.T) {
		store := storeFactory()
		_, err := store.GetReport(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrReportNotFound)
	})

	t.Run("update", func(t *testing.T) {
		store := storeFactory()
		report := newTestReport(baseTime, incident.Harassment, true)
		require.NoError(t, store.CreateReport(ctx, report))

		later := baseTime.Add(time.Minute)
		updated, err := store.UpdateReport(ctx, report.ID, func(r model.Report) (model.Report, error) {
			r.StatusHistory = append(r.StatusHistory, model.StatusChange{From: r.Status, To: model.StatusUnderReview, ActorID: "org-1", At: later})
			r.Status = model.StatusUnderReview
			r.UpdatedAt = later
			return r, nil
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusUnderReview, updated.Status)

		got, err := store.GetReport(ctx, report.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusUnderReview, got.Status)
		require.Len(t, got.StatusHistory, 1)
		assert.Equal(t, "org-1", got.StatusHistory[0].ActorID)
		assert.True(t, later.Equal(got.UpdatedAt))
	})

	t.Run("update function error aborts", func(t *testing.T) {
		store := storeFactory()
		report := newTestReport(baseTime, incident.Harassment, true)
		require.NoError(t, store.CreateReport(ctx, report))

		errRejected := errors.New("rejected")
		_, err := store.UpdateReport(ctx, report.ID, func(r model.Report) (model.Report, error) {
			r.Status = model.StatusArchived
			return r, errRejected
		})
		assert.ErrorIs(t, err, errRejected)

		got, err := store.GetReport(ctx, report.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, got.Status)
	})

	t.Run("update missing", func(t *testing.T) {
		store := storeFactory()
		_, err := store.UpdateReport(ctx, uuid.NewString(), func(r model.Report) (model.Report, error) {
			return r, nil
		})
		assert.ErrorIs(t, err, ErrReportNotFound)
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		store := storeFactory()
		report := newTestReport(baseTime, incident.Harassment, true)
		require.NoError(t, store.CreateReport(ctx, report))

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					_, err := store.UpdateReport(ctx, report.ID, func(r model.Report) (model.Report, error) {
						r.StatusHistory = append(r.StatusHistory, model.StatusChange{ActorID: fmt.Sprintf("writer-%d", i), At: baseTime})
						return r, nil
					})
					if errors.Is(err, ErrConflict) {
						continue
					}
					errs <- err
					return
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := store.GetReport(ctx, report.ID)
		require.NoError(t, err)
		assert.Len(t, got.StatusHistory, writers)
	})

	t.Run("list with filters", func(t *testing.T) {
		store := storeFactory()
		tag := incident.Category(uuid.NewString()) // isolates this run in shared backends
		older := newTestReport(baseTime, tag, true)
		newer := newTestReport(baseTime.Add(time.Hour), tag, true)
		private := newTestReport(baseTime.Add(2*time.Hour), tag, false)
		resolved := newTestReport(baseTime.Add(3*time.Hour), tag, true)
		resolved.Status = model.StatusResolved
		for _, r := range []model.Report{older, newer, private, resolved} {
			require.NoError(t, store.CreateReport(ctx, r))
		}

		all, err := store.ListReports(ctx, ReportFilter{IncidentTypes: []incident.Category{tag}})
		require.NoError(t, err)
		assert.Equal(t, []string{resolved.ID, private.ID, newer.ID, older.ID}, ids(all))

		consented, err := store.ListReports(ctx, ReportFilter{IncidentTypes: []incident.Category{tag}, ConsentOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{resolved.ID, newer.ID, older.ID}, ids(consented))

		byStatus, err := store.ListReports(ctx, ReportFilter{IncidentTypes: []incident.Category{tag}, Status: model.StatusResolved})
		require.NoError(t, err)
		assert.Equal(t, []string{resolved.ID}, ids(byStatus))

		stale, err := store.ListReports(ctx, ReportFilter{IncidentTypes: []incident.Category{tag}, UpdatedBefore: baseTime.Add(90 * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, []string{newer.ID, older.ID}, ids(stale))

		limited, err := store.ListReports(ctx, ReportFilter{IncidentTypes: []incident.Category{tag}, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{resolved.ID, private.ID}, ids(limited))

		_, err = store.ListReports(ctx, ReportFilter{Limit: -1})
		assert.ErrorIs(t, err, ErrInvalidPageLimit)
	})
}

func newTestProfile(id string, verified bool, rating float64, types ...incident.Category) model.OrganizationProfile {
	return model.OrganizationProfile{
		OrganizationID:         id,
		Name:                   "Org " + id,
		Description:            "Support services",
		Phone:                  "+40 21 000 0000",
		Address:                "Str. Exemplu 1",
		ContactPerson:          "Ana",
		SupportedIncidentTypes: types,
		Services:               []string{"counselling"},
		Verified:               verified,
		Rating:                 rating,
		CreatedAt:              baseTime,
		UpdatedAt:              baseTime,
	}
}

func profileIDs(profiles []model.OrganizationProfile) []string {
	out := make([]string, len(profiles))
	for i, p := range profiles {
		out[i] = p.OrganizationID
	}
	return out
}

func testOrganizationStore(t *testing.T, storeFactory func() OrganizationStore) {
	ctx := context.Background()

	t.Run("create get update", func(t *testing.T) {
		store := storeFactory()
		id := "org-" + uuid.NewString()
		profile := newTestProfile(id, false, 0, incident.Harassment)
		require.NoError(t, store.CreateProfile(ctx, profile))
		assert.ErrorIs(t, store.CreateProfile(ctx, profile), ErrProfileExists)

		got, err := store.GetProfile(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, profile.Name, got.Name)
		assert.Equal(t, profile.SupportedIncidentTypes, got.SupportedIncidentTypes)

		updated, err := store.UpdateProfile(ctx, id, func(p model.OrganizationProfile) (model.OrganizationProfile, error) {
			p.Verified = true
			p.Rating = 4.5
			return p, nil
		})
		require.NoError(t, err)
		assert.True(t, updated.Verified)

		got, err = store.GetProfile(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Verified)
		assert.Equal(t, 4.5, got.Rating)
	})

	t.Run("missing", func(t *testing.T) {
		store := storeFactory()
		_, err := store.GetProfile(ctx, "org-"+uuid.NewString())
		assert.ErrorIs(t, err, ErrProfileNotFound)
		_, err = store.UpdateProfile(ctx, "org-"+uuid.NewString(), func(p model.OrganizationProfile) (model.OrganizationProfile, error) {
			return p, nil
		})
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})

	t.Run("list with filters", func(t *testing.T) {
		store := storeFactory()
		tag := incident.Category(uuid.NewString())
		prefix := uuid.NewString()
		a := newTestProfile(prefix+"-a", true, 3, tag, incident.General)
		b := newTestProfile(prefix+"-b", false, 5, tag)
		c := newTestProfile(prefix+"-c", true, 1, incident.General)
		for _, p := range []model.OrganizationProfile{c, b, a} {
			require.NoError(t, store.CreateProfile(ctx, p))
		}

		supporting, err := store.ListProfiles(ctx, ProfileFilter{IncidentType: tag})
		require.NoError(t, err)
		assert.Equal(t, []string{a.OrganizationID, b.OrganizationID}, profileIDs(supporting))

		verified, err := store.ListProfiles(ctx, ProfileFilter{IncidentType: tag, VerifiedOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{a.OrganizationID}, profileIDs(verified))
	})
}
