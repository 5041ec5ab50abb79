package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRoleDefaultShortCircuitsPolicies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveRoleAssignment(ctx, RoleAssignment{UserID: "u1", Role: RoleAdmin, Domain: "proj1"}))

	enforcer := NewEnforcer(store, DefaultHierarchy(), nil)
	allowed, err := enforcer.Check(ctx, "u1", ResourceCampaign, ActionDelete, "proj1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckRolelessUserNeedsUserSubjectPolicy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	// Role-subject policy alone must not reach a user without that role.
	require.NoError(t, store.SavePolicy(ctx, Policy{Subject: "MEMBER", Resource: ResourceReward, Action: ActionUpdate, Domain: "proj1"}))

	enforcer := NewEnforcer(store, DefaultHierarchy(), nil)
	allowed, err := enforcer.Check(ctx, "drifter", ResourceReward, ActionUpdate, "proj1")
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, store.SavePolicy(ctx, Policy{Subject: "drifter", Resource: ResourceReward, Action: ActionUpdate, Domain: "proj1"}))
	allowed, err = enforcer.Check(ctx, "drifter", ResourceReward, ActionUpdate, "proj1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckRoleSubjectPolicyAppliesToHolders(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveRoleAssignment(ctx, RoleAssignment{UserID: "u1", Role: RoleMember, Domain: "proj1"}))
	require.NoError(t, store.SavePolicy(ctx, Policy{Subject: "MEMBER", Resource: ResourceCampaign, Action: ActionDelete, Domain: "proj1"}))

	enforcer := NewEnforcer(store, DefaultHierarchy(), nil)
	allowed, err := enforcer.Check(ctx, "u1", ResourceCampaign, ActionDelete, "proj1")
	require.NoError(t, err)
	assert.True(t, allowed, "policy addressed to the MEMBER role reaches its holders")
}

func TestCheckRejectsMalformedRequests(t *testing.T) {
	enforcer := NewEnforcer(NewMemoryStore(), DefaultHierarchy(), nil)

	_, err := enforcer.Check(context.Background(), "", ResourceProject, ActionRead, "proj1")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = enforcer.Check(context.Background(), "u1", ResourceProject, ActionRead, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

type failingStore struct {
	*MemoryStore
}

func (f failingStore) RolesForUser(context.Context, string, string) ([]Role, error) {
	return nil, errors.New("connection refused")
}

func TestCheckSurfacesStoreFailureAsUnavailable(t *testing.T) {
	enforcer := NewEnforcer(failingStore{NewMemoryStore()}, DefaultHierarchy(), nil)

	_, err := enforcer.Check(context.Background(), "u1", ResourceProject, ActionRead, "proj1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCheckDeterministicAcrossRepeats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveRoleAssignment(ctx, RoleAssignment{UserID: "u1", Role: RoleViewer, Domain: "proj1"}))
	require.NoError(t, store.SavePolicy(ctx, Policy{Subject: "u1", Resource: ResourceVoucher, Action: ActionCreate, Domain: "proj1"}))

	enforcer := NewEnforcer(store, DefaultHierarchy(), nil)
	for i := 0; i < 10; i++ {
		allowed, err := enforcer.Check(ctx, "u1", ResourceVoucher, ActionCreate, "proj1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}
