package authz

import (
	"fmt"
	"strings"
)

// Role is a coarse privilege level within a single domain. The set is closed
// and totally ordered by Rank.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleViewer Role = "VIEWER"
)

// Roles lists every role ordered from highest to lowest privilege.
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleMember, RoleViewer}
}

// ParseRole normalizes and validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleOwner:
		return RoleOwner, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMember:
		return RoleMember, nil
	case RoleViewer:
		return RoleViewer, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, s)
}

// Rank returns the privilege rank of the role. Higher means more privileged.
// Unknown roles rank zero, below every valid role.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleMember:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// ResourceType identifies a kind of resource an action applies to.
type ResourceType string

// Action identifies an operation on a resource type.
type Action string

// RoleAssignment ties a user to a role within one domain. A user holds at
// most one assignment per domain; role changes are revoke+assign.
type RoleAssignment struct {
	UserID string
	Role   Role
	Domain string
}

// Policy grants one action on one resource type to one subject within one
// domain. Subject is either a user ID or a role name.
type Policy struct {
	Subject  string
	Resource ResourceType
	Action   Action
	Domain   string
}

// PolicyFilter narrows ListPolicies results. Zero-value fields match
// everything.
type PolicyFilter struct {
	Subject  string
	Resource ResourceType
	Action   Action
}

// Matches reports whether the policy passes the filter.
func (f PolicyFilter) Matches(p Policy) bool {
	if f.Subject != "" && f.Subject != p.Subject {
		return false
	}
	if f.Resource != "" && f.Resource != p.Resource {
		return false
	}
	if f.Action != "" && f.Action != p.Action {
		return false
	}
	return true
}
