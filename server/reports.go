package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mscno/safereport/pkg/evidence"
	"github.com/mscno/safereport/pkg/incident"
	"github.com/mscno/safereport/pkg/upload"
	"github.com/mscno/safereport/server/model"
	"github.com/mscno/safereport/server/stores"
)

const maxTransitionAttempts = 3

// Classifier assigns a category to report text. It never fails.
type Classifier interface {
	Classify(ctx context.Context, text string) incident.Category
}

// Ingestor stores report attachments. It never fails.
type Ingestor interface {
	Ingest(ctx context.Context, files []evidence.File) []upload.Locator
}

// SubmitInput is an anonymous incident submission.
type SubmitInput struct {
	IncidentTitle  string          `json:"incidentTitle" validate:"notblank"`
	Description    string          `json:"description" validate:"notblank"`
	OccurredAt     string          `json:"occurredAt" validate:"notblank,datetime=2006-01-02T15:04:05Z07:00"`
	Location       string          `json:"location" validate:"notblank"`
	ContactPhone   string          `json:"contactPhone" validate:"omitempty,phone"`
	UrgencyLevel   string          `json:"urgencyLevel" validate:"omitempty,oneof=Normal Emergency"`
	ConsentToShare bool            `json:"consentToShare"`
	Files          []evidence.File `json:"-"`
}

// ReportService runs submission, visibility and the report lifecycle.
type ReportService struct {
	reports    stores.ReportStore
	profiles   stores.OrganizationStore
	classifier Classifier
	ingestor   Ingestor
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// NewReportService wires a ReportService.
func NewReportService(reports stores.ReportStore, profiles stores.OrganizationStore, classifier Classifier, ingestor Ingestor, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		reports:    reports,
		profiles:   profiles,
		classifier: classifier,
		ingestor:   ingestor,
		validate:   newValidator(),
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// trimmed returns in with surrounding whitespace removed from every text field.
func (in SubmitInput) trimmed() SubmitInput {
	in.IncidentTitle = strings.TrimSpace(in.IncidentTitle)
	in.Description = strings.TrimSpace(in.Description)
	in.OccurredAt = strings.TrimSpace(in.OccurredAt)
	in.Location = strings.TrimSpace(in.Location)
	in.ContactPhone = strings.TrimSpace(in.ContactPhone)
	in.UrgencyLevel = strings.TrimSpace(in.UrgencyLevel)
	return in
}

// Submit validates, classifies and persists a new pending report.
// Classification and attachment uploads run concurrently. Uploads are
// detached from ctx and finish even when the caller goes away, but a
// cancelled submission is not persisted.
func (s *ReportService) Submit(ctx context.Context, in SubmitInput) (model.Report, error) {
	in = in.trimmed()
	if err := validateStruct(s.validate, in); err != nil {
		return model.Report{}, err
	}
	occurredAt, err := time.Parse(time.RFC3339, in.OccurredAt)
	if err != nil {
		return model.Report{}, newValidationError("occurredAt", "must be an RFC 3339 timestamp")
	}
	urgency, err := model.ParseUrgency(in.UrgencyLevel)
	if err != nil {
		return model.Report{}, newValidationError("urgencyLevel", err.Error())
	}

	var (
		category incident.Category
		locators []upload.Locator
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		category = s.classifier.Classify(gctx, in.Description)
		return nil
	})
	g.Go(func() error {
		locators = s.ingestor.Ingest(context.WithoutCancel(ctx), in.Files)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		s.logger.WarnContext(ctx, "submission cancelled before persisting", "attachments", len(locators), "error", err)
		return model.Report{}, fmt.Errorf("submission cancelled: %w", err)
	}
	if locators == nil {
		locators = []upload.Locator{}
	}

	now := s.now().UTC()
	report := model.Report{
		ID:               s.newID(),
		IncidentTitle:    in.IncidentTitle,
		Description:      in.Description,
		OccurredAt:       occurredAt.UTC(),
		Location:         in.Location,
		ContactPhone:     in.ContactPhone,
		UrgencyLevel:     urgency,
		ConsentToShare:   in.ConsentToShare,
		IncidentType:     category,
		EvidenceLocators: locators,
		Status:           model.StatusPending,
		StatusHistory:    []model.StatusChange{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.reports.CreateReport(ctx, report); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist report", "error", err)
		return model.Report{}, &PersistenceError{Op: "create report", Err: err}
	}
	s.logger.InfoContext(ctx, "report submitted",
		"reportId", report.ID,
		"incidentType", report.IncidentType,
		"urgencyLevel", report.UrgencyLevel,
		"attachments", len(locators),
	)
	return report, nil
}

// Transition moves a report to newStatus on behalf of actor.
func (s *ReportService) Transition(ctx context.Context, reportID, newStatus string, actor model.Actor) (model.Report, error) {
	target, err := model.ParseStatus(newStatus)
	if err != nil {
		return model.Report{}, newValidationError("status", err.Error())
	}
	var supported []incident.Category
	if actor.Role == model.RoleOrganization {
		// Unknown reports are NotFound regardless of the caller's profile.
		if _, err := s.load(ctx, reportID); err != nil {
			return model.Report{}, err
		}
		profile, err := s.verifiedProfile(ctx, actor)
		if err != nil {
			return model.Report{}, err
		}
		supported = profile.SupportedIncidentTypes
	}

	updateFn := func(r model.Report) (model.Report, error) {
		if actor.Role == model.RoleOrganization && !visibleTo(r, supported) {
			return r, &NotFoundError{Resource: "report", ID: reportID}
		}
		if !model.CanTransition(r.Status, target) {
			return r, newValidationError("status", fmt.Sprintf("cannot move report from %s to %s", r.Status, target))
		}
		now := s.now().UTC()
		r.StatusHistory = append(r.StatusHistory, model.StatusChange{From: r.Status, To: target, ActorID: actor.ID, At: now})
		r.Status = target
		r.UpdatedAt = now
		return r, nil
	}

	for attempt := 1; ; attempt++ {
		updated, err := s.reports.UpdateReport(ctx, reportID, updateFn)
		switch {
		case err == nil:
			s.logger.InfoContext(ctx, "report status changed", "reportId", reportID, "status", target, "actor", actor.ID, "role", actor.Role)
			return normalizeReport(updated), nil
		case errors.Is(err, stores.ErrReportNotFound):
			return model.Report{}, &NotFoundError{Resource: "report", ID: reportID}
		case errors.Is(err, stores.ErrConflict) && attempt < maxTransitionAttempts:
			s.logger.DebugContext(ctx, "retrying conflicting transition", "reportId", reportID, "attempt", attempt)
			continue
		}
		if isServiceError(err) {
			return model.Report{}, err
		}
		s.logger.ErrorContext(ctx, "failed to update report status", "reportId", reportID, "error", err)
		return model.Report{}, &PersistenceError{Op: "update report", Err: err}
	}
}

// Get returns a report as actor may see it.
func (s *ReportService) Get(ctx context.Context, reportID string, actor model.Actor) (model.Report, error) {
	report, err := s.load(ctx, reportID)
	if err != nil {
		return model.Report{}, err
	}
	if actor.Role != model.RoleOrganization {
		return report, nil
	}
	profile, err := s.verifiedProfile(ctx, actor)
	if err != nil {
		return model.Report{}, err
	}
	if !visibleTo(report, profile.SupportedIncidentTypes) {
		return model.Report{}, &NotFoundError{Resource: "report", ID: reportID}
	}
	return report.Redacted(), nil
}

// ListForOrganization returns the consented reports routed to actor's
// organization, newest first. An empty status matches every status.
func (s *ReportService) ListForOrganization(ctx context.Context, actor model.Actor, status string) ([]model.Report, error) {
	filter := stores.ReportFilter{ConsentOnly: true}
	if status != "" {
		st, err := model.ParseStatus(status)
		if err != nil {
			return nil, newValidationError("status", err.Error())
		}
		filter.Status = st
	}
	profile, err := s.verifiedProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	filter.IncidentTypes = profile.SupportedIncidentTypes

	reports, err := s.reports.ListReports(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list reports", "organizationId", actor.ID, "error", err)
		return nil, &PersistenceError{Op: "list reports", Err: err}
	}
	out := make([]model.Report, 0, len(reports))
	for _, r := range reports {
		out = append(out, normalizeReport(r).Redacted())
	}
	return out, nil
}

// ArchiveResolvedBefore archives resolved reports last updated before cutoff
// as the system actor and returns how many were archived.
func (s *ReportService) ArchiveResolvedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	reports, err := s.reports.ListReports(ctx, stores.ReportFilter{Status: model.StatusResolved, UpdatedBefore: cutoff})
	if err != nil {
		return 0, &PersistenceError{Op: "list resolved reports", Err: err}
	}
	var (
		archived int
		errs     []error
	)
	for _, r := range reports {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		_, err := s.Transition(ctx, r.ID, model.StatusArchived.String(), model.SystemActor)
		var ve *ValidationError
		var nf *NotFoundError
		switch {
		case err == nil:
			archived++
		case errors.As(err, &ve), errors.As(err, &nf):
			// Moved or removed since the listing.
			s.logger.DebugContext(ctx, "skipping report during archive sweep", "reportId", r.ID, "error", err)
		default:
			errs = append(errs, err)
		}
	}
	return archived, errors.Join(errs...)
}

func (s *ReportService) load(ctx context.Context, reportID string) (model.Report, error) {
	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, stores.ErrReportNotFound) {
			return model.Report{}, &NotFoundError{Resource: "report", ID: reportID}
		}
		s.logger.ErrorContext(ctx, "failed to load report", "reportId", reportID, "error", err)
		return model.Report{}, &PersistenceError{Op: "get report", Err: err}
	}
	return normalizeReport(report), nil
}

// verifiedProfile returns the caller's profile when it has been verified.
func (s *ReportService) verifiedProfile(ctx context.Context, actor model.Actor) (model.OrganizationProfile, error) {
	profile, err := s.profiles.GetProfile(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, stores.ErrProfileNotFound) {
			return model.OrganizationProfile{}, &ForbiddenError{Reason: "organization profile not registered"}
		}
		return model.OrganizationProfile{}, &PersistenceError{Op: "get profile", Err: err}
	}
	if !profile.Verified {
		return model.OrganizationProfile{}, &ForbiddenError{Reason: "organization profile not verified"}
	}
	return profile, nil
}

func visibleTo(r model.Report, supported []incident.Category) bool {
	if !r.ConsentToShare {
		return false
	}
	for _, c := range supported {
		if c == r.IncidentType {
			return true
		}
	}
	return false
}

// normalizeReport replaces nil slices dropped by some backends.
func normalizeReport(r model.Report) model.Report {
	if r.EvidenceLocators == nil {
		r.EvidenceLocators = []upload.Locator{}
	}
	if r.StatusHistory == nil {
		r.StatusHistory = []model.StatusChange{}
	}
	return r
}

// Matcher finds the organizations serving an incident type.
type Matcher interface {
	FindByIncidentType(ctx context.Context, incidentType string) ([]model.OrganizationProfile, error)
}

// MatchReport returns the organizations a consented report can be routed to.
// When nothing serves the report's own type the General matches are returned.
func (s *ReportService) MatchReport(ctx context.Context, reportID string, m Matcher) ([]model.OrganizationProfile, error) {
	report, err := s.load(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !report.ConsentToShare {
		return nil, newValidationError("consentToShare", "report was submitted without consent to share")
	}
	matches, err := m.FindByIncidentType(ctx, report.IncidentType.String())
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 && report.IncidentType != incident.General {
		s.logger.DebugContext(ctx, "no direct match, falling back to General", "reportId", reportID, "incidentType", report.IncidentType)
		return m.FindByIncidentType(ctx, incident.General.String())
	}
	return matches, nil
}
