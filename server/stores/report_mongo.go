package stores

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mscno/safereport/server/model"
)

// reportDocument carries a revision counter next to the report so updates can
// be conditioned on the revision that was read.
type reportDocument struct {
	model.Report `bson:",inline"`
	Revision     int64 `bson:"revision"`
}

// ReportMongoStore implements ReportStore using a MongoDB collection.
type ReportMongoStore struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

func NewReportMongoStore(logger *slog.Logger, db *mongo.Database) *ReportMongoStore {
	return &ReportMongoStore{coll: db.Collection(reportsCollection), logger: logger}
}

func (s *ReportMongoStore) CreateReport(ctx context.Context, report model.Report) error {
	_, err := s.coll.InsertOne(ctx, reportDocument{Report: report, Revision: 1})
	if mongo.IsDuplicateKeyError(err) {
		return ErrReportExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func (s *ReportMongoStore) find(ctx context.Context, id string) (reportDocument, error) {
	var doc reportDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return reportDocument{}, ErrReportNotFound
	}
	if err != nil {
		return reportDocument{}, fmt.Errorf("failed to get report: %w", err)
	}
	return doc, nil
}

func (s *ReportMongoStore) GetReport(ctx context.Context, id string) (model.Report, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return model.Report{}, err
	}
	return doc.Report, nil
}

// UpdateReport replaces the document only if its revision is unchanged since
// it was read, retrying a bounded number of times before giving up with
// ErrConflict.
func (s *ReportMongoStore) UpdateReport(ctx context.Context, id string, updateFn func(model.Report) (model.Report, error)) (model.Report, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		doc, err := s.find(ctx, id)
		if err != nil {
			return model.Report{}, err
		}
		updated, err := updateFn(doc.Report)
		if err != nil {
			return model.Report{}, err
		}
		updated.ID = id

		res, err := s.coll.ReplaceOne(ctx,
			bson.M{"_id": id, "revision": doc.Revision},
			reportDocument{Report: updated, Revision: doc.Revision + 1},
		)
		if err != nil {
			return model.Report{}, fmt.Errorf("failed to replace report: %w", err)
		}
		if res.MatchedCount == 1 {
			return updated, nil
		}
		s.logger.DebugContext(ctx, "report changed during update, retrying", "report_id", id, "attempt", attempt)
	}
	return model.Report{}, fmt.Errorf("%w: report %s", ErrConflict, id)
}

func reportQuery(filter ReportFilter) bson.M {
	q := bson.M{}
	if filter.ConsentOnly {
		q["consentToShare"] = true
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if len(filter.IncidentTypes) > 0 {
		q["incidentType"] = bson.M{"$in": filter.IncidentTypes}
	}
	if !filter.UpdatedBefore.IsZero() {
		q["updatedAt"] = bson.M{"$lt": filter.UpdatedBefore}
	}
	return q
}

func (s *ReportMongoStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	if filter.Limit < 0 {
		return nil, ErrInvalidPageLimit
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := s.coll.Find(ctx, reportQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	var docs []reportDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reports: %w", err)
	}
	reports := make([]model.Report, 0, len(docs))
	for _, d := range docs {
		reports = append(reports, d.Report)
	}
	return reports, nil
}

var _ ReportStore = (*ReportMongoStore)(nil)
