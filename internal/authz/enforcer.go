package authz

import (
	"context"
	"fmt"
)

// Enforcer decides allow/deny for a single request. Decisions are
// deterministic in the store state: role defaults via the hierarchy are
// consulted first, then the explicit policy overlay.
type Enforcer struct {
	store     Store
	hierarchy *Hierarchy
	roles     roleSource
}

type roleSource interface {
	RolesForUser(ctx context.Context, domain, userID string) ([]Role, error)
}

// NewEnforcer constructs an Enforcer reading from the given store. A non-nil
// cache is consulted for role lookups on the hot path.
func NewEnforcer(store Store, hierarchy *Hierarchy, cache *RoleCache) *Enforcer {
	e := &Enforcer{store: store, hierarchy: hierarchy}
	if cache != nil {
		e.roles = cachedRoles{store: store, cache: cache}
	} else {
		e.roles = store
	}
	return e
}

type cachedRoles struct {
	store Store
	cache *RoleCache
}

func (c cachedRoles) RolesForUser(ctx context.Context, domain, userID string) ([]Role, error) {
	return c.cache.Roles(ctx, domain, userID, func(ctx context.Context) ([]Role, error) {
		return c.store.RolesForUser(ctx, domain, userID)
	})
}

// Check reports whether the user may perform the action on the resource type
// within the domain. A user without any role in the domain can still be
// granted through an explicit user-subject policy.
func (e *Enforcer) Check(ctx context.Context, userID string, resource ResourceType, action Action, domain string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	if domain == "" {
		return false, fmt.Errorf("%w: empty domain", ErrInvalidArgument)
	}
	if !e.hierarchy.KnownResource(resource) || !e.hierarchy.KnownAction(action) {
		// Closed world: unknown tuples never match, for any role.
		return false, nil
	}

	roles, err := e.roles.RolesForUser(ctx, domain, userID)
	if err != nil {
		return false, storeFailure("roles for user", err)
	}
	for _, role := range roles {
		if e.hierarchy.ImpliesCapability(role, resource, action) {
			return true, nil
		}
	}

	subjects := make(map[string]struct{}, len(roles)+1)
	subjects[userID] = struct{}{}
	for _, role := range roles {
		subjects[string(role)] = struct{}{}
	}
	policies, err := e.store.ListPolicies(ctx, domain, PolicyFilter{Resource: resource, Action: action})
	if err != nil {
		return false, storeFailure("list policies", err)
	}
	for _, p := range policies {
		if _, ok := subjects[p.Subject]; ok {
			return true, nil
		}
	}
	return false, nil
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %s", ErrUnavailable, op, err)
}
