package auth

import (
	"fmt"
	"strings"
)

// Role mirrors the seeded rows of the roles table.
type Role int

const (
	RoleAdmin     Role = 1
	RoleUser      Role = 2
	RoleModerator Role = 3
	RoleGuest     Role = 4
)

func (r Role) Title() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleUser:
		return "user"
	case RoleModerator:
		return "moderator"
	case RoleGuest:
		return "guest"
	default:
		return "unknown"
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleModerator, RoleGuest:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return r.Title()
}

func ParseRole(value string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "admin":
		return RoleAdmin, nil
	case "user":
		return RoleUser, nil
	case "moderator":
		return RoleModerator, nil
	case "guest":
		return RoleGuest, nil
	default:
		return 0, fmt.Errorf("unknown role %q", value)
	}
}

// ParseRoles parses a list of role names, rejecting unknown ones.
func ParseRoles(values []string) ([]Role, error) {
	roles := make([]Role, 0, len(values))
	for _, value := range values {
		role, err := ParseRole(value)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// allows reports whether a caller holding r passes a gate open to allowed.
func (r Role) allows(allowed []Role) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleUser, RoleModerator, RoleGuest:
		for _, candidate := range allowed {
			if candidate == r {
				return true
			}
		}
		return false
	default:
		return false
	}
}
