package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscno/safereport/pkg/evidence"
	"github.com/mscno/safereport/pkg/incident"
	"github.com/mscno/safereport/pkg/upload"
	"github.com/mscno/safereport/server/model"
	"github.com/mscno/safereport/server/stores"
)

func TestSubmit_PersistsPendingClassifiedReport(t *testing.T) {
	env := newTestEnv(t)
	r := env.submit(t, func(in *SubmitInput) {
		in.Files = []evidence.File{{Name: "a.jpg", Data: []byte("a")}, {Name: "b.m4a", Data: []byte("b")}}
	})

	assert.Equal(t, "report-001", r.ID)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Equal(t, incident.DomesticViolence, r.IncidentType)
	assert.Equal(t, model.UrgencyEmergency, r.UrgencyLevel)
	assert.Equal(t, testNow, r.CreatedAt)
	assert.Equal(t, r.CreatedAt, r.UpdatedAt)
	assert.Equal(t, time.Date(2025, 3, 7, 21, 30, 0, 0, time.UTC), r.OccurredAt)
	require.Len(t, r.EvidenceLocators, 2)
	assert.Contains(t, r.EvidenceLocators[0].URL, "a.jpg")
	assert.Contains(t, r.EvidenceLocators[1].URL, "b.m4a")
	assert.Empty(t, r.StatusHistory)

	stored, err := env.reports.GetReport(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.IncidentType, stored.IncidentType)
}

func TestSubmit_DefaultsAndEmptyEvidence(t *testing.T) {
	env := newTestEnv(t)
	r := env.submit(t, func(in *SubmitInput) {
		in.UrgencyLevel = ""
		in.ContactPhone = ""
		in.Description = "something happened"
	})
	assert.Equal(t, model.UrgencyNormal, r.UrgencyLevel)
	assert.Equal(t, incident.General, r.IncidentType)
	assert.NotNil(t, r.EvidenceLocators)
	assert.Empty(t, r.EvidenceLocators)
}

func TestSubmit_ReportsEveryViolation(t *testing.T) {
	env := newTestEnv(t)
	in := SubmitInput{
		IncidentTitle: "   ",
		Description:   "",
		OccurredAt:    "yesterday",
		Location:      "\t",
		ContactPhone:  "call me",
		UrgencyLevel:  "Urgent",
	}
	_, err := env.svc.Submit(context.Background(), in)
	requireValidation(t, err, "incidentTitle", "description", "occurredAt", "location", "contactPhone", "urgencyLevel")

	reports, err := env.reports.ListReports(context.Background(), stores.ReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, reports, "validation failure must not persist anything")
}

func TestSubmit_TrimsFieldsBeforeValidating(t *testing.T) {
	env := newTestEnv(t)
	r := env.submit(t, func(in *SubmitInput) {
		in.IncidentTitle = "  Attacked at home  "
		in.OccurredAt = " 2025-03-07T21:30:00Z "
		in.Location = "\tNairobi\n"
		in.ContactPhone = " +254 700 000000 "
		in.UrgencyLevel = " Emergency "
	})
	assert.Equal(t, "Attacked at home", r.IncidentTitle)
	assert.Equal(t, time.Date(2025, 3, 7, 21, 30, 0, 0, time.UTC), r.OccurredAt)
	assert.Equal(t, "Nairobi", r.Location)
	assert.Equal(t, "+254 700 000000", r.ContactPhone)
	assert.Equal(t, model.UrgencyEmergency, r.UrgencyLevel)
}

func TestSubmit_NoOrganizationSideEffects(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "org-1", true, 4, incident.DomesticViolence)
	env.submit(t, nil)

	p, err := env.profiles.GetProfile(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, testNow, p.UpdatedAt)
}

func TestSubmit_ClassifiesAndUploadsConcurrently(t *testing.T) {
	env := newTestEnv(t)
	classifyStarted := make(chan struct{})
	ingestStarted := make(chan struct{})
	env.svc.classifier = classifierFunc(func(ctx context.Context, text string) incident.Category {
		close(classifyStarted)
		<-ingestStarted
		return incident.Harassment
	})
	env.svc.ingestor = ingestorFunc(func(ctx context.Context, files []evidence.File) []upload.Locator {
		close(ingestStarted)
		<-classifyStarted
		return []upload.Locator{{URL: "https://cdn/x", ID: "x"}}
	})

	done := make(chan model.Report)
	go func() {
		r, _ := env.svc.Submit(context.Background(), validInput())
		done <- r
	}()
	select {
	case r := <-done:
		assert.Equal(t, incident.Harassment, r.IncidentType)
	case <-time.After(5 * time.Second):
		t.Fatal("classification and ingestion did not overlap")
	}
}

func TestSubmit_CancelledRequestIsNotPersisted(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	var uploadCtxErr error
	env.svc.ingestor = ingestorFunc(func(uctx context.Context, files []evidence.File) []upload.Locator {
		cancel()
		uploadCtxErr = uctx.Err()
		return []upload.Locator{upload.LocalLocator(testNow, "a.jpg")}
	})

	_, err := env.svc.Submit(ctx, validInput())
	require.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, uploadCtxErr, "uploads run detached from the request")

	reports, err := env.reports.ListReports(context.Background(), stores.ReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, reports)
}

type failingReportStore struct {
	stores.ReportStore
}

func (failingReportStore) CreateReport(ctx context.Context, report model.Report) error {
	return errors.New("disk full")
}

func TestSubmit_StoreFailureIsPersistenceError(t *testing.T) {
	env := newTestEnv(t)
	env.svc.reports = failingReportStore{env.reports}
	_, err := env.svc.Submit(context.Background(), validInput())
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
}

func TestTransition_FullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	r := env.submit(t, nil)

	steps := []model.Status{model.StatusUnderReview, model.StatusActionTaken, model.StatusResolved, model.StatusArchived}
	for i, st := range steps {
		env.advance(time.Minute)
		updated, err := env.svc.Transition(context.Background(), r.ID, st.String(), adminActor)
		require.NoError(t, err, st)
		assert.Equal(t, st, updated.Status)
		assert.Equal(t, testNow.Add(time.Duration(i+1)*time.Minute), updated.UpdatedAt)
		require.Len(t, updated.StatusHistory, i+1)
		assert.Equal(t, st, updated.StatusHistory[i].To)
		assert.Equal(t, adminActor.ID, updated.StatusHistory[i].ActorID)
	}
	history, err := env.reports.GetReport(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, history.StatusHistory[0].From)
}

func TestTransition_ArchiveFromEveryActiveState(t *testing.T) {
	env := newTestEnv(t)
	paths := [][]model.Status{
		{model.StatusUnderReview},
		{model.StatusUnderReview, model.StatusActionTaken},
		{model.StatusUnderReview, model.StatusActionTaken, model.StatusResolved},
	}
	for _, path := range paths {
		r := env.submit(t, nil)
		for _, st := range path {
			_, err := env.svc.Transition(context.Background(), r.ID, st.String(), adminActor)
			require.NoError(t, err)
		}
		archived, err := env.svc.Transition(context.Background(), r.ID, "archived", adminActor)
		require.NoError(t, err)
		assert.Equal(t, model.StatusArchived, archived.Status)
	}
}

func TestTransition_RejectsIllegalMoves(t *testing.T) {
	env := newTestEnv(t)
	r := env.submit(t, nil)

	for _, target := range []string{"pending", "action_taken", "resolved", "archived"} {
		_, err := env.svc.Transition(context.Background(), r.ID, target, adminActor)
		requireValidation(t, err, "status")
	}
	_, err := env.svc.Transition(context.Background(), r.ID, "closed", adminActor)
	requireValidation(t, err, "status")

	_, err = env.svc.Transition(context.Background(), r.ID, "under_review", adminActor)
	require.NoError(t, err)
	_, err = env.svc.Transition(context.Background(), r.ID, "pending", adminActor)
	requireValidation(t, err, "status")

	stored, err := env.reports.GetReport(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnderReview, stored.Status)
	assert.Len(t, stored.StatusHistory, 1)
}

func TestTransition_ArchivedIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	r := env.submit(t, nil)
	for _, st := range []string{"under_review", "archived"} {
		_, err := env.svc.Transition(context.Background(), r.ID, st, adminActor)
		require.NoError(t, err)
	}
	assert.Empty(t, model.StatusArchived.Next())
	for _, target := range []string{"pending", "under_review", "action_taken", "resolved", "archived"} {
		_, err := env.svc.Transition(context.Background(), r.ID, target, adminActor)
		requireValidation(t, err, "status")
	}
}

func TestTransition_UnknownReport(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Transition(context.Background(), "missing", "under_review", adminActor)
	requireNotFound(t, err)
}

func TestTransition_ConcurrentReviewersDoNotLoseUpdates(t *testing.T) {
	env := newTestEnv(t)
	r := env.submit(t, nil)

	const reviewers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Transition(context.Background(), r.ID, "under_review", adminActor)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	stored, err := env.reports.GetReport(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnderReview, stored.Status)
	assert.Len(t, stored.StatusHistory, 1)
}

type conflictingReportStore struct {
	stores.ReportStore
	conflicts int
}

func (s *conflictingReportStore) UpdateReport(ctx context.Context, id string, fn func(model.Report) (model.Report, error)) (model.Report, error) {
	if s.conflicts > 0 {
		s.conflicts--
		return model.Report{}, stores.ErrConflict
	}
	return s.ReportStore.UpdateReport(ctx, id, fn)
}

func TestTransition_RetriesStoreConflicts(t *testing.T) {
	env := newTestEnv(t)
	r := env.submit(t, nil)

	env.svc.reports = &conflictingReportStore{ReportStore: env.reports, conflicts: maxTransitionAttempts - 1}
	_, err := env.svc.Transition(context.Background(), r.ID, "under_review", adminActor)
	require.NoError(t, err)

	env.svc.reports = &conflictingReportStore{ReportStore: env.reports, conflicts: maxTransitionAttempts}
	_, err = env.svc.Transition(context.Background(), r.ID, "action_taken", adminActor)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, stores.ErrConflict)
}

func TestTransition_OrganizationVisibility(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "org-dv", true, 4, incident.DomesticViolence)
	env.addProfile(t, "org-cyber", true, 4, incident.CyberViolence)
	env.addProfile(t, "org-pending", false, 0, incident.DomesticViolence)

	consented := env.submit(t, nil)
	private := env.submit(t, func(in *SubmitInput) { in.ConsentToShare = false })

	updated, err := env.svc.Transition(context.Background(), consented.ID, "under_review", orgActor("org-dv"))
	require.NoError(t, err)
	assert.Equal(t, "org-dv", updated.StatusHistory[0].ActorID)

	_, err = env.svc.Transition(context.Background(), consented.ID, "action_taken", orgActor("org-cyber"))
	requireNotFound(t, err)
	_, err = env.svc.Transition(context.Background(), private.ID, "under_review", orgActor("org-dv"))
	requireNotFound(t, err)
	_, err = env.svc.Transition(context.Background(), consented.ID, "action_taken", orgActor("org-pending"))
	requireForbidden(t, err)
	_, err = env.svc.Transition(context.Background(), consented.ID, "action_taken", orgActor("org-unknown"))
	requireForbidden(t, err)

	_, err = env.svc.Transition(context.Background(), "missing", "under_review", orgActor("org-pending"))
	requireNotFound(t, err)
	_, err = env.svc.Transition(context.Background(), "missing", "under_review", orgActor("org-unknown"))
	requireNotFound(t, err)
}

func TestGet_RedactsForOrganizations(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "org-dv", true, 4, incident.DomesticViolence)
	r := env.submit(t, nil)

	got, err := env.svc.Get(context.Background(), r.ID, orgActor("org-dv"))
	require.NoError(t, err)
	assert.Equal(t, "+254 700 000000", got.ContactPhone)

	private := env.submit(t, func(in *SubmitInput) { in.ConsentToShare = false })
	_, err = env.svc.Get(context.Background(), private.ID, orgActor("org-dv"))
	requireNotFound(t, err)

	got, err = env.svc.Get(context.Background(), private.ID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "+254 700 000000", got.ContactPhone)

	_, err = env.svc.Get(context.Background(), "missing", adminActor)
	requireNotFound(t, err)
}

func TestListForOrganization(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "org-dv", true, 4, incident.DomesticViolence)
	first := env.submit(t, nil)
	env.advance(time.Minute)
	second := env.submit(t, nil)
	env.submit(t, func(in *SubmitInput) { in.ConsentToShare = false })
	env.submit(t, func(in *SubmitInput) { in.Description = "someone hacked my instagram account" })

	list, err := env.svc.ListForOrganization(context.Background(), orgActor("org-dv"), "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	_, err = env.svc.Transition(context.Background(), first.ID, "under_review", orgActor("org-dv"))
	require.NoError(t, err)
	list, err = env.svc.ListForOrganization(context.Background(), orgActor("org-dv"), "under_review")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	_, err = env.svc.ListForOrganization(context.Background(), orgActor("org-dv"), "done")
	requireValidation(t, err, "status")
	_, err = env.svc.ListForOrganization(context.Background(), orgActor("org-none"), "")
	requireForbidden(t, err)
}

func TestMatchReport(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "org-a", true, 3, incident.DomesticViolence)
	env.addProfile(t, "org-b", true, 5, incident.DomesticViolence, incident.General)
	env.addProfile(t, "org-general", true, 2, incident.General)

	r := env.submit(t, nil)
	matches, err := env.svc.MatchReport(context.Background(), r.ID, env.orgs)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "org-b", matches[0].OrganizationID)
	assert.Equal(t, "org-a", matches[1].OrganizationID)

	cyber := env.submit(t, func(in *SubmitInput) { in.Description = "someone hacked my instagram account" })
	matches, err = env.svc.MatchReport(context.Background(), cyber.ID, env.orgs)
	require.NoError(t, err)
	require.Len(t, matches, 2, "falls back to General matches")
	assert.Equal(t, "org-b", matches[0].OrganizationID)
	assert.Equal(t, "org-general", matches[1].OrganizationID)

	private := env.submit(t, func(in *SubmitInput) { in.ConsentToShare = false })
	_, err = env.svc.MatchReport(context.Background(), private.ID, env.orgs)
	requireValidation(t, err, "consentToShare")

	_, err = env.svc.MatchReport(context.Background(), "missing", env.orgs)
	requireNotFound(t, err)
}

func TestArchiveResolvedBefore(t *testing.T) {
	env := newTestEnv(t)
	resolve := func(r model.Report) {
		for _, st := range []string{"under_review", "action_taken", "resolved"} {
			_, err := env.svc.Transition(context.Background(), r.ID, st, adminActor)
			require.NoError(t, err)
		}
	}
	old := env.submit(t, nil)
	resolve(old)
	pending := env.submit(t, nil)

	env.advance(48 * time.Hour)
	recent := env.submit(t, nil)
	resolve(recent)

	n, err := env.svc.ArchiveResolvedBefore(context.Background(), testNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.reports.GetReport(context.Background(), old.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, got.Status)
	assert.Equal(t, model.SystemActor.ID, got.StatusHistory[len(got.StatusHistory)-1].ActorID)

	for _, id := range []string{pending.ID, recent.ID} {
		got, err := env.reports.GetReport(context.Background(), id)
		require.NoError(t, err)
		assert.NotEqual(t, model.StatusArchived, got.Status)
	}
}
