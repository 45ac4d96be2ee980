package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/mscno/safereport/pkg/incident"
	"github.com/mscno/safereport/pkg/upload"
)

// Status is the lifecycle state of a report.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusActionTaken Status = "action_taken"
	StatusResolved    Status = "resolved"
	StatusArchived    Status = "archived"
)

var statuses = []Status{StatusPending, StatusUnderReview, StatusActionTaken, StatusResolved, StatusArchived}

// Allowed forward moves. Archived is terminal.
var transitions = map[Status][]Status{
	StatusPending:     {StatusUnderReview},
	StatusUnderReview: {StatusActionTaken, StatusArchived},
	StatusActionTaken: {StatusResolved, StatusArchived},
	StatusResolved:    {StatusArchived},
}

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	return append([]Status(nil), transitions[s]...)
}

// ParseStatus parses a lifecycle status name.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// CanTransition reports whether a report in from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Urgency is the submitter's urgency classification.
type Urgency string

const (
	UrgencyNormal    Urgency = "Normal"
	UrgencyEmergency Urgency = "Emergency"
)

// ParseUrgency parses an urgency level. Empty input is Normal.
func ParseUrgency(s string) (Urgency, error) {
	switch u := Urgency(strings.TrimSpace(s)); u {
	case "":
		return UrgencyNormal, nil
	case UrgencyNormal, UrgencyEmergency:
		return u, nil
	default:
		return "", fmt.Errorf("unknown urgency level %q", s)
	}
}

// StatusChange is one entry of a report's audit trail.
type StatusChange struct {
	From    Status    `json:"from" bson:"from" datastore:"from,noindex"`
	To      Status    `json:"to" bson:"to" datastore:"to,noindex"`
	ActorID string    `json:"actorId" bson:"actorId" datastore:"actorId,noindex"`
	At      time.Time `json:"at" bson:"at" datastore:"at,noindex"`
}

// Report is a submitted incident report.
type Report struct {
	ID               string            `json:"reportId" bson:"_id" datastore:"reportId"`
	IncidentTitle    string            `json:"incidentTitle" bson:"incidentTitle" datastore:"incidentTitle,noindex"`
	Description      string            `json:"description" bson:"description" datastore:"description,noindex"`
	OccurredAt       time.Time         `json:"occurredAt" bson:"occurredAt" datastore:"occurredAt"`
	Location         string            `json:"location" bson:"location" datastore:"location,noindex"`
	ContactPhone     string            `json:"contactPhone,omitempty" bson:"contactPhone,omitempty" datastore:"contactPhone,noindex"`
	UrgencyLevel     Urgency           `json:"urgencyLevel" bson:"urgencyLevel" datastore:"urgencyLevel"`
	ConsentToShare   bool              `json:"consentToShare" bson:"consentToShare" datastore:"consentToShare"`
	IncidentType     incident.Category `json:"incidentType" bson:"incidentType" datastore:"incidentType"`
	EvidenceLocators []upload.Locator  `json:"evidenceLocators" bson:"evidenceLocators" datastore:"evidenceLocators"`
	Status           Status            `json:"status" bson:"status" datastore:"status"`
	StatusHistory    []StatusChange    `json:"statusHistory" bson:"statusHistory" datastore:"statusHistory"`
	CreatedAt        time.Time         `json:"createdAt" bson:"createdAt" datastore:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt" bson:"updatedAt" datastore:"updatedAt"`
}

// Redacted returns the view of r an organization may see: the contact phone
// is removed unless the submitter consented to share it.
func (r Report) Redacted() Report {
	if !r.ConsentToShare {
		r.ContactPhone = ""
	}
	r.EvidenceLocators = append([]upload.Locator(nil), r.EvidenceLocators...)
	r.StatusHistory = append([]StatusChange(nil), r.StatusHistory...)
	return r
}
