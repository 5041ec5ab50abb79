package authz

import "context"

// Store is the persistence adapter the engine depends on. Every operation is
// scoped to a single domain; implementations must never let data from one
// domain leak into another.
//
// Save operations are idempotent: writing a tuple that already exists is a
// successful no-op. Delete operations report whether anything was removed so
// the service layer can decide between idempotent success and NotFound.
type Store interface {
	// RolesForUser returns the active role assignments for the pair. In the
	// steady state the slice has at most one element, but callers must
	// tolerate transient multiplicity after an invariant drift.
	RolesForUser(ctx context.Context, domain, userID string) ([]Role, error)

	ListRoleAssignments(ctx context.Context, domain string) ([]RoleAssignment, error)
	SaveRoleAssignment(ctx context.Context, a RoleAssignment) error
	DeleteRoleAssignment(ctx context.Context, a RoleAssignment) (bool, error)

	// CountOwners returns the number of OWNER assignments in the domain.
	CountOwners(ctx context.Context, domain string) (int, error)

	ListPolicies(ctx context.Context, domain string, filter PolicyFilter) ([]Policy, error)
	SavePolicy(ctx context.Context, p Policy) error
	DeletePolicy(ctx context.Context, p Policy) (bool, error)

	// ListDomains returns every domain with at least one role assignment.
	// Used by the integrity scan, not by the request path.
	ListDomains(ctx context.Context) ([]string, error)

	// WithinDomain runs fn with mutations on the domain serialized against
	// every other WithinDomain call for the same domain. The Store passed to
	// fn observes and commits writes atomically with respect to concurrent
	// callers; returning an error discards them where the backend supports
	// rollback.
	WithinDomain(ctx context.Context, domain string, fn func(ctx context.Context, s Store) error) error
}
