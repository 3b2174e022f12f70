package auth

import "strings"

// Role identifies one of the four account types the platform knows.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleSchoolAdmin Role = "SCHOOL_ADMIN"
	RoleTeacher     Role = "TEACHER"
	RoleParent      Role = "PARENT"
)

// AdminRoles may manage accounts and platform-wide settings.
var AdminRoles = []Role{RoleAdmin, RoleSchoolAdmin}

// StaffRoles may create and edit students, classes and records.
var StaffRoles = []Role{RoleAdmin, RoleSchoolAdmin, RoleTeacher}

// AllRoles lists every role the platform accepts on an account.
var AllRoles = []Role{RoleAdmin, RoleSchoolAdmin, RoleTeacher, RoleParent}

// ParseRole normalizes a role string to its canonical form. The empty
// Role and false are returned for anything outside the closed set.
func ParseRole(raw string) (Role, bool) {
	candidate := Role(strings.ToUpper(strings.TrimSpace(raw)))
	for _, r := range AllRoles {
		if candidate == r {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}
