package auth

import "github.com/avms/gatepass/internal/domain"

// Principal is the authenticated caller. Capability checks live here so
// handlers ask "may this caller do X" instead of branching on role names.
type Principal struct {
	UserID string
	Email  string
	Role   domain.Role
	Flat   string
}

func (p Principal) CanIssue() bool {
	return p.Role == domain.RoleResident
}

func (p Principal) CanDecide() bool {
	return p.Role == domain.RoleSecurity
}

// QueryScope returns the flat a listing must be restricted to; empty means
// the caller sees all flats.
func (p Principal) QueryScope() string {
	if p.Role == domain.RoleSecurity {
		return ""
	}
	return p.Flat
}

func PrincipalFromClaims(c *Claims) (Principal, bool) {
	role, ok := domain.ParseRole(c.Role)
	if !ok {
		return Principal{}, false
	}
	return Principal{
		UserID: c.Sub,
		Email:  c.Email,
		Role:   role,
		Flat:   c.Flat,
	}, true
}
