package domain

import (
	"errors"
	"strings"
)

type Role string

const (
	RoleClient Role = "client"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes and validates a role string. "passenger" is accepted as a client.
func ParseRole(s string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "passenger" {
		normalized = string(RoleClient)
	}

	role := Role(normalized)
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

func (role Role) Valid() bool {
	switch role {
	case RoleClient, RoleDriver, RoleAdmin:
		return true
	default:
		return false
	}
}

func (role Role) String() string {
	return string(role)
}

func (role Role) IsClient() bool { return role == RoleClient }
func (role Role) IsDriver() bool { return role == RoleDriver }
func (role Role) IsAdmin() bool  { return role == RoleAdmin }
