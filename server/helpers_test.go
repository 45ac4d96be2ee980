package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mscno/safereport/pkg/evidence"
	"github.com/mscno/safereport/pkg/incident"
	"github.com/mscno/safereport/pkg/upload"
	"github.com/mscno/safereport/server/model"
	"github.com/mscno/safereport/server/stores"
)

type classifierFunc func(ctx context.Context, text string) incident.Category

func (f classifierFunc) Classify(ctx context.Context, text string) incident.Category {
	return f(ctx, text)
}

type ingestorFunc func(ctx context.Context, files []evidence.File) []upload.Locator

func (f ingestorFunc) Ingest(ctx context.Context, files []evidence.File) []upload.Locator {
	return f(ctx, files)
}

func localClassifier() Classifier {
	return classifierFunc(func(ctx context.Context, text string) incident.Category {
		return incident.LocalClassifier{}.Classify(text)
	})
}

func localIngestor() Ingestor {
	return ingestorFunc(func(ctx context.Context, files []evidence.File) []upload.Locator {
		out := make([]upload.Locator, 0, len(files))
		for _, f := range files {
			out = append(out, upload.LocalLocator(testNow, f.Name))
		}
		return out
	})
}

var testNow = time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	reports  *stores.ReportMemoryStore
	profiles *stores.OrganizationMemoryStore
	svc      *ReportService
	orgs     *OrganizationService
	clock    *atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		reports:  stores.NewReportMemoryStore(),
		profiles: stores.NewOrganizationMemoryStore(),
		clock:    &atomic.Int64{},
	}
	env.clock.Store(testNow.UnixNano())
	now := func() time.Time { return time.Unix(0, env.clock.Load()).UTC() }

	var seq atomic.Int64
	env.svc = NewReportService(env.reports, env.profiles, localClassifier(), localIngestor(), nil)
	env.svc.now = now
	env.svc.newID = func() string { return fmt.Sprintf("report-%03d", seq.Add(1)) }
	env.orgs = NewOrganizationService(env.profiles, nil)
	env.orgs.now = now
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.clock.Add(int64(d))
}

func validInput() SubmitInput {
	return SubmitInput{
		IncidentTitle:  "Attacked at home",
		Description:    "My husband hit me at home last night",
		OccurredAt:     "2025-03-07T21:30:00Z",
		Location:       "Nairobi",
		ContactPhone:   "+254 700 000000",
		UrgencyLevel:   "Emergency",
		ConsentToShare: true,
	}
}

func (e *testEnv) submit(t *testing.T, mutate func(*SubmitInput)) model.Report {
	t.Helper()
	in := validInput()
	if mutate != nil {
		mutate(&in)
	}
	r, err := e.svc.Submit(context.Background(), in)
	require.NoError(t, err)
	return r
}

func (e *testEnv) addProfile(t *testing.T, id string, verified bool, rating float64, types ...incident.Category) model.OrganizationProfile {
	t.Helper()
	p := model.OrganizationProfile{
		OrganizationID:         id,
		Name:                   "Org " + id,
		Description:            "Support services",
		Phone:                  "+254 711 111111",
		Address:                "1 Main Street",
		ContactPerson:          "Amina",
		SupportedIncidentTypes: types,
		Services:               []string{"counselling"},
		Verified:               verified,
		Rating:                 rating,
		CreatedAt:              testNow,
		UpdatedAt:              testNow,
	}
	require.NoError(t, e.profiles.CreateProfile(context.Background(), p))
	return p
}

func orgActor(id string) model.Actor {
	return model.Actor{ID: id, Role: model.RoleOrganization}
}

var adminActor = model.Actor{ID: "admin-1", Role: model.RoleAdmin}

func requireValidation(t *testing.T, err error, fields ...string) *ValidationError {
	t.Helper()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	got := make([]string, 0, len(ve.Violations))
	for _, v := range ve.Violations {
		got = append(got, v.Field)
	}
	require.ElementsMatch(t, fields, got)
	return ve
}

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func requireForbidden(t *testing.T, err error) {
	t.Helper()
	var fe *ForbiddenError
	require.ErrorAs(t, err, &fe)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
