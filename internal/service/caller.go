package service

import "ridehail/internal/domain"

// Caller is the authenticated identity an operation runs on behalf of.
type Caller struct {
	ID   string
	Role domain.Role
}

// IsAdmin reports whether the caller has the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == domain.RoleAdmin
}

func (c Caller) requireRole(role domain.Role, action string) error {
	if c.Role != role {
		return forbidden(action)
	}
	return nil
}
