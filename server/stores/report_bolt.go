package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/mscno/safereport/server/model"
)

var reportsBucket = []byte("reports")

// ReportBoltStore persists reports as JSON values in a bbolt bucket.
type ReportBoltStore struct {
	db *bbolt.DB
}

func NewReportBoltStore(db *bbolt.DB) *ReportBoltStore {
	return &ReportBoltStore{db: db}
}

func (s *ReportBoltStore) CreateReport(ctx context.Context, report model.Report) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(reportsBucket)
		if err != nil {
			return err
		}
		if bucket.Get([]byte(report.ID)) != nil {
			return ErrReportExists
		}
		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		return bucket.Put([]byte(report.ID), data)
	})
}

func (s *ReportBoltStore) GetReport(ctx context.Context, id string) (model.Report, error) {
	var report model.Report
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(reportsBucket)
		if bucket == nil {
			return ErrReportNotFound
		}
		val := bucket.Get([]byte(id))
		if val == nil {
			return ErrReportNotFound
		}
		return json.Unmarshal(val, &report)
	})
	return report, err
}

// UpdateReport runs updateFn inside a bbolt write transaction. bbolt allows a
// single writer at a time, so the read-modify-write is atomic.
func (s *ReportBoltStore) UpdateReport(ctx context.Context, id string, updateFn func(model.Report) (model.Report, error)) (model.Report, error) {
	var updated model.Report
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(reportsBucket)
		if bucket == nil {
			return ErrReportNotFound
		}
		val := bucket.Get([]byte(id))
		if val == nil {
			return ErrReportNotFound
		}
		var report model.Report
		if err := json.Unmarshal(val, &report); err != nil {
			return err
		}
		var err error
		updated, err = updateFn(report)
		if err != nil {
			return err
		}
		updated.ID = id
		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		return bucket.Put([]byte(id), data)
	})
	if err != nil {
		return model.Report{}, err
	}
	return updated, nil
}

func (s *ReportBoltStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	if filter.Limit < 0 {
		return nil, ErrInvalidPageLimit
	}
	reports := make([]model.Report, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(reportsBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var r model.Report
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to decode report %s: %w", k, err)
			}
			if filter.Match(r) {
				reports = append(reports, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(reports)
	return applyLimit(reports, filter.Limit), nil
}

var _ ReportStore = (*ReportBoltStore)(nil)
