package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/zappro/internal/common"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleGestor   Role = "gestor"
	RoleOperador Role = "operador"
)

// DefaultRole is assigned when registration does not name one.
const DefaultRole = RoleOperador

// ParseRole accepts a role name in any case. An empty name yields
// DefaultRole.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return DefaultRole, nil
	case RoleAdmin, RoleGestor, RoleOperador:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", common.ErrorValidation, s)
	}
}

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user holds any of roles.
func (u *User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
