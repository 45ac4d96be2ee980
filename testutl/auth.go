package testutl

import (
	"context"

	"github.com/mscno/safereport/server/model"
)

const (
	OrgToken   = "org-token"
	AdminToken = "admin-token"
	OrgID      = "org-dv"
)

// MockTokenValidator accepts OrgToken as organization OrgID and AdminToken
// as an admin.
func MockTokenValidator(_ context.Context, token string) (model.Actor, bool) {
	switch token {
	case OrgToken:
		return model.Actor{ID: OrgID, Role: model.RoleOrganization}, true
	case AdminToken:
		return model.Actor{ID: "admin", Role: model.RoleAdmin}, true
	}
	return model.Actor{}, false
}
