package policy

import (
	"strings"

	dErrors "cdigit/pkg/domain-errors"
)

// Role is a closed enumeration of branch roles.
type Role string

const (
	RoleCustomer Role = "Customer"
	RoleMaker    Role = "Maker"
	RoleManager  Role = "Manager"
	RoleAdmin    Role = "Admin"
)

var allRoles = []Role{RoleCustomer, RoleMaker, RoleManager, RoleAdmin}

// Roles returns every known role in declaration order.
func Roles() []Role {
	return append([]Role(nil), allRoles...)
}

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole resolves a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	for _, known := range allRoles {
		if strings.EqualFold(s, string(known)) {
			return known, nil
		}
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown role %q", s)
}

// RoleSet is an unordered set of roles.
type RoleSet []Role

// Contains reports whether role is a member of the set.
func (s RoleSet) Contains(role Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

func (s RoleSet) IsEmpty() bool { return len(s) == 0 }
