package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultArchiveSchedule runs the sweep hourly.
const DefaultArchiveSchedule = "@hourly"

// Archiver periodically archives resolved reports older than a fixed age.
type Archiver struct {
	reports *ReportService
	maxAge  time.Duration
	cron    *cron.Cron
	logger  *slog.Logger
	now     func() time.Time
}

// NewArchiver schedules the sweep. A schedule of "" uses DefaultArchiveSchedule.
func NewArchiver(reports *ReportService, schedule string, maxAge time.Duration, logger *slog.Logger) (*Archiver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("archive age must be positive, got %s", maxAge)
	}
	if schedule == "" {
		schedule = DefaultArchiveSchedule
	}
	a := &Archiver{
		reports: reports,
		maxAge:  maxAge,
		logger:  logger,
		now:     time.Now,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	if _, err := a.cron.AddFunc(schedule, func() { a.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid archive schedule %q: %w", schedule, err)
	}
	return a, nil
}

// Start runs the scheduler in the background.
func (a *Archiver) Start() {
	a.logger.Info("auto-archive scheduled", "maxAge", a.maxAge)
	a.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep.
func (a *Archiver) Stop(ctx context.Context) {
	select {
	case <-a.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep archives every resolved report last updated more than maxAge ago.
func (a *Archiver) Sweep(ctx context.Context) int {
	cutoff := a.now().Add(-a.maxAge)
	n, err := a.reports.ArchiveResolvedBefore(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "auto-archive sweep incomplete", "archived", n, "error", err)
		return n
	}
	if n > 0 {
		a.logger.InfoContext(ctx, "auto-archive sweep", "archived", n, "cutoff", cutoff)
	}
	return n
}
