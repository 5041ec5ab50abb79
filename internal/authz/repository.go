package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authgate/authgate/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for role assignments and
// policies. Per-domain serialization of check-then-act sequences uses a
// transaction-scoped advisory lock keyed on the domain, so two concurrent
// mutations of the same domain never interleave while unrelated domains
// proceed in parallel.
type Repository struct {
	pool *pgxpool.Pool
	q    querier
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewRepository constructs a repository on the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: pool}
}

// WithinDomain runs fn inside a transaction holding the domain's advisory
// lock. Serialization failures surface as ErrUnavailable so callers can
// retry.
func (r *Repository) WithinDomain(ctx context.Context, domain string, fn func(ctx context.Context, s Store) error) error {
	if r.pool == nil {
		// Already transaction-bound; the lock is held.
		return fn(ctx, r)
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, domain); err != nil {
			return fmt.Errorf("authz: domain lock: %w", err)
		}
		return fn(ctx, &Repository{q: tx})
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return fmt.Errorf("%w: serialization conflict on domain %s", ErrUnavailable, domain)
	}
	return err
}

// RolesForUser returns the user's roles in the domain, highest rank first.
func (r *Repository) RolesForUser(ctx context.Context, domain, userID string) ([]Role, error) {
	rows, err := r.q.Query(ctx, `
		SELECT role FROM role_assignments
		WHERE domain = $1 AND user_id = $2
		ORDER BY CASE role WHEN 'OWNER' THEN 4 WHEN 'ADMIN' THEN 3 WHEN 'MEMBER' THEN 2 ELSE 1 END DESC`,
		domain, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, Role(role))
	}
	return roles, rows.Err()
}

// ListRoleAssignments returns every assignment in the domain.
func (r *Repository) ListRoleAssignments(ctx context.Context, domain string) ([]RoleAssignment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT user_id, role FROM role_assignments
		WHERE domain = $1
		ORDER BY user_id`, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleAssignment
	for rows.Next() {
		a := RoleAssignment{Domain: domain}
		var role string
		if err := rows.Scan(&a.UserID, &role); err != nil {
			return nil, err
		}
		a.Role = Role(role)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveRoleAssignment inserts the assignment; an existing tuple is left
// untouched.
func (r *Repository) SaveRoleAssignment(ctx context.Context, a RoleAssignment) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO role_assignments (id, domain, user_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (domain, user_id, role) DO NOTHING`,
		uuid.New(), a.Domain, a.UserID, string(a.Role))
	return err
}

// DeleteRoleAssignment removes the assignment, reporting whether it existed.
func (r *Repository) DeleteRoleAssignment(ctx context.Context, a RoleAssignment) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM role_assignments
		WHERE domain = $1 AND user_id = $2 AND role = $3`,
		a.Domain, a.UserID, string(a.Role))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountOwners counts OWNER assignments in the domain.
func (r *Repository) CountOwners(ctx context.Context, domain string) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM role_assignments
		WHERE domain = $1 AND role = 'OWNER'`, domain).Scan(&count)
	return count, err
}

// ListPolicies returns the domain's policies passing the filter.
func (r *Repository) ListPolicies(ctx context.Context, domain string, filter PolicyFilter) ([]Policy, error) {
	rows, err := r.q.Query(ctx, `
		SELECT subject, resource, action FROM policies
		WHERE domain = $1
		  AND ($2 = '' OR subject = $2)
		  AND ($3 = '' OR resource = $3)
		  AND ($4 = '' OR action = $4)
		ORDER BY subject, resource, action`,
		domain, filter.Subject, string(filter.Resource), string(filter.Action))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Policy
	for rows.Next() {
		p := Policy{Domain: domain}
		var resource, action string
		if err := rows.Scan(&p.Subject, &resource, &action); err != nil {
			return nil, err
		}
		p.Resource = ResourceType(resource)
		p.Action = Action(action)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePolicy inserts the tuple; an existing tuple is left untouched.
func (r *Repository) SavePolicy(ctx context.Context, p Policy) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO policies (id, domain, subject, resource, action)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (domain, subject, resource, action) DO NOTHING`,
		uuid.New(), p.Domain, p.Subject, string(p.Resource), string(p.Action))
	return err
}

// DeletePolicy removes the tuple, reporting whether it existed.
func (r *Repository) DeletePolicy(ctx context.Context, p Policy) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM policies
		WHERE domain = $1 AND subject = $2 AND resource = $3 AND action = $4`,
		p.Domain, p.Subject, string(p.Resource), string(p.Action))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListDomains returns every domain holding at least one role assignment.
func (r *Repository) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT DISTINCT domain FROM role_assignments ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, err
		}
		out = append(out, domain)
	}
	return out, rows.Err()
}
