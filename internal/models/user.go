package models

import "strings"

type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleTutor   UserRole = "TUTOR"
	RoleAdmin   UserRole = "ADMIN"
)

// ParseUserRole accepts any casing; unknown roles map to student.
func ParseUserRole(s string) UserRole {
	switch UserRole(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleTutor:
		return RoleTutor
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleStudent
	}
}

func (r UserRole) CanReview() bool {
	return r == RoleTutor || r == RoleAdmin
}

// Principal is the authenticated caller, taken from a verified access token.
type Principal struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
}
