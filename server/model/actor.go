package model

// Role is the authenticated role of a caller.
type Role string

const (
	RoleOrganization Role = "organization"
	RoleAdmin        Role = "admin"
	RoleSystem       Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOrganization, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Issuable reports whether a session token may carry r. RoleSystem is
// reserved for in-process jobs.
func (r Role) Issuable() bool {
	return r == RoleOrganization || r == RoleAdmin
}

// Actor is the identity performing an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor performs scheduled maintenance transitions.
var SystemActor = Actor{ID: "system", Role: RoleSystem}
