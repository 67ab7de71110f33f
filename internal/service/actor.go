package service

import "github.com/aprendesoft/colegio-api/internal/models"

// Actor is the authenticated caller as extracted from the JWT.
type Actor struct {
	ID   string
	Role models.UserRole
}

// IsStaff reports whether the actor can act on behalf of the school.
func (a Actor) IsStaff() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleTeacher
}
