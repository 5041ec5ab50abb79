package authz

import (
	"context"
	"fmt"
	"log/slog"
)

// Service is the engine's public surface: role lifecycle with invariant
// protection, the policy overlay CRUD, and enforcement. It is constructed
// once at process start with its store injected and shared by reference
// across request handlers.
type Service struct {
	store     Store
	hierarchy *Hierarchy
	enforcer  *Enforcer
	cache     *RoleCache
	logger    *slog.Logger
}

// NewService constructs the engine. cache may be nil.
func NewService(store Store, hierarchy *Hierarchy, cache *RoleCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		hierarchy: hierarchy,
		enforcer:  NewEnforcer(store, hierarchy, cache),
		cache:     cache,
		logger:    logger,
	}
}

// Hierarchy exposes the role ordering and capability matrix.
func (s *Service) Hierarchy() *Hierarchy {
	return s.hierarchy
}

func validatePair(userID, domain string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	if domain == "" {
		return fmt.Errorf("%w: empty domain", ErrInvalidArgument)
	}
	return nil
}

func validRole(role Role) error {
	if role.Rank() == 0 {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}
	return nil
}

// UserRoles returns the user's active roles in the domain. At most one in
// the steady state; multiplicity after drift is surfaced as-is so callers
// and the integrity scan can repair it.
func (s *Service) UserRoles(ctx context.Context, userID, domain string) ([]Role, error) {
	if err := validatePair(userID, domain); err != nil {
		return nil, err
	}
	roles, err := s.store.RolesForUser(ctx, domain, userID)
	if err != nil {
		return nil, storeFailure("roles for user", err)
	}
	return roles, nil
}

// AssignRole grants the role to the user in the domain, replacing any other
// role held there. Assigning an already-held role is a no-op. Fails with
// ErrInvariantViolation when the replacement would demote the domain's last
// owner, or when a non-owner role would be the domain's first assignment: a
// domain with assignments must hold an owner at all times, so the first
// principal in must come in as OWNER.
func (s *Service) AssignRole(ctx context.Context, userID, domain string, role Role) error {
	if err := validatePair(userID, domain); err != nil {
		return err
	}
	if err := validRole(role); err != nil {
		return err
	}
	err := s.store.WithinDomain(ctx, domain, func(ctx context.Context, tx Store) error {
		held, err := tx.RolesForUser(ctx, domain, userID)
		if err != nil {
			return storeFailure("roles for user", err)
		}
		others := make([]Role, 0, len(held))
		already := false
		holdsOwner := false
		for _, h := range held {
			if h == role {
				already = true
				continue
			}
			if h == RoleOwner {
				holdsOwner = true
			}
			others = append(others, h)
		}
		if already && len(others) == 0 {
			return nil
		}
		// Validate before any removal so a failure leaves no partial state.
		if role != RoleOwner {
			owners, err := tx.CountOwners(ctx, domain)
			if err != nil {
				return storeFailure("count owners", err)
			}
			if owners == 0 {
				return fmt.Errorf("%w: first assignment in domain %s must be OWNER", ErrInvariantViolation, domain)
			}
			if holdsOwner && owners <= 1 {
				return fmt.Errorf("%w: cannot demote the last owner of domain %s", ErrInvariantViolation, domain)
			}
		}
		for _, other := range others {
			if _, err := tx.DeleteRoleAssignment(ctx, RoleAssignment{UserID: userID, Role: other, Domain: domain}); err != nil {
				return storeFailure("delete role assignment", err)
			}
		}
		if already {
			return nil
		}
		if err := tx.SaveRoleAssignment(ctx, RoleAssignment{UserID: userID, Role: role, Domain: domain}); err != nil {
			return storeFailure("save role assignment", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, domain, userID)
	}
	s.logger.Info("role assigned", slog.String("domain", domain), slog.String("role", string(role)))
	return nil
}

// RevokeRole removes the assignment. Revoking an assignment that does not
// exist succeeds silently. Fails with ErrInvariantViolation when the target
// is the domain's last owner.
func (s *Service) RevokeRole(ctx context.Context, userID, domain string, role Role) error {
	if err := validatePair(userID, domain); err != nil {
		return err
	}
	if err := validRole(role); err != nil {
		return err
	}
	err := s.store.WithinDomain(ctx, domain, func(ctx context.Context, tx Store) error {
		if role == RoleOwner {
			held, err := tx.RolesForUser(ctx, domain, userID)
			if err != nil {
				return storeFailure("roles for user", err)
			}
			holdsOwner := false
			for _, h := range held {
				if h == RoleOwner {
					holdsOwner = true
					break
				}
			}
			if holdsOwner {
				owners, err := tx.CountOwners(ctx, domain)
				if err != nil {
					return storeFailure("count owners", err)
				}
				if owners <= 1 {
					return fmt.Errorf("%w: cannot remove the last owner of domain %s", ErrInvariantViolation, domain)
				}
			}
		}
		if _, err := tx.DeleteRoleAssignment(ctx, RoleAssignment{UserID: userID, Role: role, Domain: domain}); err != nil {
			return storeFailure("delete role assignment", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, domain, userID)
	}
	s.logger.Info("role revoked", slog.String("domain", domain), slog.String("role", string(role)))
	return nil
}

// HasRole reports whether the user's role in the domain ranks at or above
// minRole. Rank comparison only; the policy overlay does not participate.
func (s *Service) HasRole(ctx context.Context, userID, domain string, minRole Role) (bool, error) {
	if err := validatePair(userID, domain); err != nil {
		return false, err
	}
	if err := validRole(minRole); err != nil {
		return false, err
	}
	roles, err := s.store.RolesForUser(ctx, domain, userID)
	if err != nil {
		return false, storeFailure("roles for user", err)
	}
	for _, role := range roles {
		if role.Rank() >= minRole.Rank() {
			return true, nil
		}
	}
	return false, nil
}

// Enforce decides whether the user may perform the action on the resource
// type within the domain.
func (s *Service) Enforce(ctx context.Context, userID string, resource ResourceType, action Action, domain string) (bool, error) {
	return s.enforcer.Check(ctx, userID, resource, action, domain)
}

func (s *Service) validatePolicy(p Policy) error {
	if p.Subject == "" {
		return fmt.Errorf("%w: empty policy subject", ErrInvalidArgument)
	}
	if p.Domain == "" {
		return fmt.Errorf("%w: empty domain", ErrInvalidArgument)
	}
	if !s.hierarchy.KnownResource(p.Resource) {
		return fmt.Errorf("%w: unknown resource type %q", ErrInvalidArgument, p.Resource)
	}
	if !s.hierarchy.KnownAction(p.Action) {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, p.Action)
	}
	return nil
}

// CreatePolicy adds an explicit grant. Adding an existing tuple is a no-op.
func (s *Service) CreatePolicy(ctx context.Context, p Policy) error {
	if err := s.validatePolicy(p); err != nil {
		return err
	}
	err := s.store.WithinDomain(ctx, p.Domain, func(ctx context.Context, tx Store) error {
		if err := tx.SavePolicy(ctx, p); err != nil {
			return storeFailure("save policy", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("policy created", slog.String("domain", p.Domain))
	return nil
}

// DeletePolicy removes an explicit grant. Unlike role revocation, deleting a
// policy that does not exist reports ErrNotFound: policies are administrative
// objects a UI targets by identity, and a silent no-op would hide operator
// mistakes.
func (s *Service) DeletePolicy(ctx context.Context, p Policy) error {
	if err := s.validatePolicy(p); err != nil {
		return err
	}
	err := s.store.WithinDomain(ctx, p.Domain, func(ctx context.Context, tx Store) error {
		removed, err := tx.DeletePolicy(ctx, p)
		if err != nil {
			return storeFailure("delete policy", err)
		}
		if !removed {
			return fmt.Errorf("%w: policy does not exist", ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("policy deleted", slog.String("domain", p.Domain))
	return nil
}

// ListPolicies returns the domain's explicit policies passing the filter.
func (s *Service) ListPolicies(ctx context.Context, domain string, filter PolicyFilter) ([]Policy, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrInvalidArgument)
	}
	policies, err := s.store.ListPolicies(ctx, domain, filter)
	if err != nil {
		return nil, storeFailure("list policies", err)
	}
	return policies, nil
}

// ListRoleAssignments returns every role assignment in the domain.
func (s *Service) ListRoleAssignments(ctx context.Context, domain string) ([]RoleAssignment, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrInvalidArgument)
	}
	assignments, err := s.store.ListRoleAssignments(ctx, domain)
	if err != nil {
		return nil, storeFailure("list role assignments", err)
	}
	return assignments, nil
}
