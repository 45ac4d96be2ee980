package stores

import (
	"context"
	"sync"

	"github.com/mscno/safereport/server/model"
)

// ReportMemoryStore keeps reports in process memory.
type ReportMemoryStore struct {
	mu      sync.RWMutex
	reports map[string]model.Report
}

func NewReportMemoryStore() *ReportMemoryStore {
	return &ReportMemoryStore{reports: make(map[string]model.Report)}
}

func (s *ReportMemoryStore) CreateReport(ctx context.Context, report model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[report.ID]; exists {
		return ErrReportExists
	}
	s.reports[report.ID] = cloneReport(report)
	return nil
}

func (s *ReportMemoryStore) GetReport(ctx context.Context, id string) (model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return model.Report{}, ErrReportNotFound
	}
	return cloneReport(r), nil
}

// UpdateReport holds the write lock for the duration of updateFn, so updates
// of the same report are serialized.
func (s *ReportMemoryStore) UpdateReport(ctx context.Context, id string, updateFn func(model.Report) (model.Report, error)) (model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return model.Report{}, ErrReportNotFound
	}
	updated, err := updateFn(cloneReport(r))
	if err != nil {
		return model.Report{}, err
	}
	updated.ID = id
	s.reports[id] = cloneReport(updated)
	return updated, nil
}

func (s *ReportMemoryStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	if filter.Limit < 0 {
		return nil, ErrInvalidPageLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]model.Report, 0)
	for _, r := range s.reports {
		if filter.Match(r) {
			list = append(list, cloneReport(r))
		}
	}
	sortNewestFirst(list)
	return applyLimit(list, filter.Limit), nil
}

var _ ReportStore = (*ReportMemoryStore)(nil)
