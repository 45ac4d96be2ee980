package model

import (
	"slices"
	"time"

	"github.com/mscno/safereport/pkg/incident"
)

// MaxRating is the upper bound of an organization rating.
const MaxRating = 5.0

// OrganizationProfile describes a support organization that can receive
// consented reports. It is keyed by the organization account id.
type OrganizationProfile struct {
	OrganizationID         string              `json:"organizationId" bson:"_id" datastore:"organizationId"`
	Name                   string              `json:"name" bson:"name" datastore:"name"`
	Description            string              `json:"description" bson:"description" datastore:"description,noindex"`
	Phone                  string              `json:"phone" bson:"phone" datastore:"phone,noindex"`
	Address                string              `json:"address" bson:"address" datastore:"address,noindex"`
	ContactPerson          string              `json:"contactPerson" bson:"contactPerson" datastore:"contactPerson,noindex"`
	SupportedIncidentTypes []incident.Category `json:"supportedIncidentTypes" bson:"supportedIncidentTypes" datastore:"supportedIncidentTypes"`
	Services               []string            `json:"services" bson:"services" datastore:"services,noindex"`
	Verified               bool                `json:"verified" bson:"verified" datastore:"verified"`
	Rating                 float64             `json:"rating" bson:"rating" datastore:"rating"`
	CreatedAt              time.Time           `json:"createdAt" bson:"createdAt" datastore:"createdAt"`
	UpdatedAt              time.Time           `json:"updatedAt" bson:"updatedAt" datastore:"updatedAt"`
}

// Supports reports whether the profile opted into category c.
func (p OrganizationProfile) Supports(c incident.Category) bool {
	return slices.Contains(p.SupportedIncidentTypes, c)
}

// Matches reports whether reports of category c may be routed to p.
func (p OrganizationProfile) Matches(c incident.Category) bool {
	return p.Verified && p.Supports(c)
}
