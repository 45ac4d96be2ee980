package stores

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/datastore"

	"github.com/mscno/safereport/server/model"
)

const reportKind = "Report"

// ReportDataStore implements ReportStore using Google Cloud Datastore.
type ReportDataStore struct {
	client *datastore.Client
	logger *slog.Logger
}

func NewReportDataStore(logger *slog.Logger, client *datastore.Client) *ReportDataStore {
	return &ReportDataStore{client: client, logger: logger}
}

func (s *ReportDataStore) reportKey(id string) *datastore.Key {
	return datastore.NameKey(reportKind, id, nil)
}

func (s *ReportDataStore) CreateReport(ctx context.Context, report model.Report) error {
	key := s.reportKey(report.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing model.Report
		err := tx.Get(key, &existing)
		if err == nil {
			return ErrReportExists
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return fmt.Errorf("failed to check for existing report: %w", err)
		}
		if _, err := tx.Put(key, &report); err != nil {
			return fmt.Errorf("failed to put report: %w", err)
		}
		return nil
	})
	return err
}

func (s *ReportDataStore) GetReport(ctx context.Context, id string) (model.Report, error) {
	var report model.Report
	err := s.client.Get(ctx, s.reportKey(id), &report)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return model.Report{}, ErrReportNotFound
	}
	if err != nil {
		return model.Report{}, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// UpdateReport runs updateFn in a Datastore transaction. Transactions that
// collide with a concurrent commit are retried by the client; exhausting the
// retries yields ErrConflict.
func (s *ReportDataStore) UpdateReport(ctx context.Context, id string, updateFn func(model.Report) (model.Report, error)) (model.Report, error) {
	key := s.reportKey(id)
	var updated model.Report
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var report model.Report
		if err := tx.Get(key, &report); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return ErrReportNotFound
			}
			return fmt.Errorf("failed to get report for update: %w", err)
		}
		var err error
		updated, err = updateFn(report)
		if err != nil {
			return err
		}
		updated.ID = id
		if _, err := tx.Put(key, &updated); err != nil {
			return fmt.Errorf("failed to put updated report: %w", err)
		}
		return nil
	})
	if errors.Is(err, datastore.ErrConcurrentTransaction) {
		return model.Report{}, fmt.Errorf("%w: report %s", ErrConflict, id)
	}
	if err != nil {
		return model.Report{}, err
	}
	return updated, nil
}

// ListReports pushes the equality filters to Datastore and applies the rest,
// plus ordering, in memory so no composite index is required.
func (s *ReportDataStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	if filter.Limit < 0 {
		return nil, ErrInvalidPageLimit
	}
	q := datastore.NewQuery(reportKind)
	if filter.ConsentOnly {
		q = q.FilterField("consentToShare", "=", true)
	}
	if filter.Status != "" {
		q = q.FilterField("status", "=", string(filter.Status))
	}
	if len(filter.IncidentTypes) == 1 {
		q = q.FilterField("incidentType", "=", string(filter.IncidentTypes[0]))
	}

	var found []model.Report
	if _, err := s.client.GetAll(ctx, q, &found); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	reports := make([]model.Report, 0, len(found))
	for _, r := range found {
		if filter.Match(r) {
			reports = append(reports, r)
		}
	}
	sortNewestFirst(reports)
	return applyLimit(reports, filter.Limit), nil
}

var _ ReportStore = (*ReportDataStore)(nil)
