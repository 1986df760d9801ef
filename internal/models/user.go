package models

type Role string

const (
	RoleCitizen Role = "citizen"
	RolePolice  Role = "police"
	RoleRPO     Role = "rpo"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RolePolice, RoleRPO, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	Email  string `json:"email,omitempty"`
}

// IsStaff reports whether the principal may read any application.
func (p Principal) IsStaff() bool {
	return p.Role == RolePolice || p.Role == RoleRPO || p.Role == RoleAdmin
}

// IsOfficer reports whether the principal acts on stages.
func (p Principal) IsOfficer() bool {
	return p.Role == RolePolice || p.Role == RoleRPO
}
