package authz

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and single-process
// deployments. Writes through WithinDomain are serialized per domain; it
// does not support rollback, so callers validate before mutating.
type MemoryStore struct {
	mu          sync.RWMutex
	assignments map[string]map[string]map[Role]struct{} // domain -> userID -> roles
	policies    map[string]map[Policy]struct{}          // domain -> tuples

	domainMu sync.Mutex
	domains  map[string]*sync.Mutex
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assignments: make(map[string]map[string]map[Role]struct{}),
		policies:    make(map[string]map[Policy]struct{}),
		domains:     make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) domainLock(domain string) *sync.Mutex {
	m.domainMu.Lock()
	defer m.domainMu.Unlock()
	lock, ok := m.domains[domain]
	if !ok {
		lock = &sync.Mutex{}
		m.domains[domain] = lock
	}
	return lock
}

// WithinDomain serializes fn against other mutations of the same domain.
func (m *MemoryStore) WithinDomain(ctx context.Context, domain string, fn func(ctx context.Context, s Store) error) error {
	lock := m.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx, m)
}

// RolesForUser returns the roles held by the user in the domain.
func (m *MemoryStore) RolesForUser(_ context.Context, domain, userID string) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	held := m.assignments[domain][userID]
	roles := make([]Role, 0, len(held))
	for role := range held {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Rank() > roles[j].Rank() })
	return roles, nil
}

// ListRoleAssignments returns every assignment in the domain.
func (m *MemoryStore) ListRoleAssignments(_ context.Context, domain string) ([]RoleAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RoleAssignment
	for userID, held := range m.assignments[domain] {
		for role := range held {
			out = append(out, RoleAssignment{UserID: userID, Role: role, Domain: domain})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Role.Rank() > out[j].Role.Rank()
	})
	return out, nil
}

// SaveRoleAssignment stores the assignment. Saving an existing tuple is a
// no-op.
func (m *MemoryStore) SaveRoleAssignment(_ context.Context, a RoleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	users, ok := m.assignments[a.Domain]
	if !ok {
		users = make(map[string]map[Role]struct{})
		m.assignments[a.Domain] = users
	}
	held, ok := users[a.UserID]
	if !ok {
		held = make(map[Role]struct{})
		users[a.UserID] = held
	}
	held[a.Role] = struct{}{}
	return nil
}

// DeleteRoleAssignment removes the assignment, reporting whether it existed.
func (m *MemoryStore) DeleteRoleAssignment(_ context.Context, a RoleAssignment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.assignments[a.Domain][a.UserID]
	if _, ok := held[a.Role]; !ok {
		return false, nil
	}
	delete(held, a.Role)
	if len(held) == 0 {
		delete(m.assignments[a.Domain], a.UserID)
	}
	return true, nil
}

// CountOwners counts OWNER assignments in the domain.
func (m *MemoryStore) CountOwners(_ context.Context, domain string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, held := range m.assignments[domain] {
		if _, ok := held[RoleOwner]; ok {
			count++
		}
	}
	return count, nil
}

// ListPolicies returns the domain's policies passing the filter.
func (m *MemoryStore) ListPolicies(_ context.Context, domain string, filter PolicyFilter) ([]Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Policy
	for p := range m.policies[domain] {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subject != out[j].Subject {
			return out[i].Subject < out[j].Subject
		}
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}

// SavePolicy stores the tuple. Saving an existing tuple is a no-op.
func (m *MemoryStore) SavePolicy(_ context.Context, p Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tuples, ok := m.policies[p.Domain]
	if !ok {
		tuples = make(map[Policy]struct{})
		m.policies[p.Domain] = tuples
	}
	tuples[p] = struct{}{}
	return nil
}

// DeletePolicy removes the tuple, reporting whether it existed.
func (m *MemoryStore) DeletePolicy(_ context.Context, p Policy) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tuples := m.policies[p.Domain]
	if _, ok := tuples[p]; !ok {
		return false, nil
	}
	delete(tuples, p)
	return true, nil
}

// ListDomains returns domains holding at least one role assignment.
func (m *MemoryStore) ListDomains(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for domain, users := range m.assignments {
		if len(users) > 0 {
			out = append(out, domain)
		}
	}
	sort.Strings(out)
	return out, nil
}
