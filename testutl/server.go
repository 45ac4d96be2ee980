package testutl

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mscno/safereport/pkg/assistant"
	"github.com/mscno/safereport/pkg/classify"
	"github.com/mscno/safereport/pkg/evidence"
	"github.com/mscno/safereport/pkg/upload"
	"github.com/mscno/safereport/server"
	"github.com/mscno/safereport/server/stores"
)

// APIServer is an in-memory safereport API for client tests. Remote
// dependencies are unconfigured, so the local fallbacks answer.
type APIServer struct {
	URL      string
	Reports  *stores.ReportMemoryStore
	Profiles *stores.OrganizationMemoryStore
}

// StartAPIServer serves the full API on an httptest server that is closed
// when t finishes. Requests authenticate with MockTokenValidator.
func StartAPIServer(t testing.TB) *APIServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reports := stores.NewReportMemoryStore()
	profiles := stores.NewOrganizationMemoryStore()
	ingestor := evidence.NewIngestor(upload.NewGateway(nil, time.Second, logger), logger)
	reportSvc := server.NewReportService(reports, profiles, classify.NewGateway(nil, time.Second, logger), ingestor, logger)
	orgSvc := server.NewOrganizationService(profiles, logger)
	h := server.NewHandler(reportSvc, orgSvc, assistant.NewService(nil, time.Second, logger), server.Limits{}, logger)

	srv, limiter := server.NewAPIServer(h, MockTokenValidator, server.APIOptions{RateEvery: time.Millisecond, RateBurst: 1000}, logger)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		limiter.Stop()
	})
	return &APIServer{URL: ts.URL, Reports: reports, Profiles: profiles}
}
