package authz

// Resource types recognized by the default deployment. The set is closed;
// anything outside it never matches a capability or a policy.
const (
	ResourceProject  ResourceType = "PROJECT"
	ResourceUser     ResourceType = "USER"
	ResourcePolicy   ResourceType = "POLICY"
	ResourceCampaign ResourceType = "CAMPAIGN"
	ResourceReward   ResourceType = "REWARD"
	ResourceVoucher  ResourceType = "VOUCHER"
)

// Actions recognized by the default deployment.
const (
	ActionRead   Action = "READ"
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionManage Action = "MANAGE"
)

type capability struct {
	resource ResourceType
	action   Action
}

// Hierarchy holds the role ordering and the default capability matrix each
// role implies. It is immutable after construction; lookups are pure and
// fail closed for any combination not present in the matrix.
type Hierarchy struct {
	resources map[ResourceType]struct{}
	actions   map[Action]struct{}
	grants    map[Role]map[capability]struct{}
}

// DefaultHierarchy builds the deployment's capability matrix:
//
//	OWNER  — every action on every resource type
//	ADMIN  — full CRUD on business resources, read/update on PROJECT,
//	         read on POLICY
//	MEMBER — read everywhere, create/update on business resources
//	VIEWER — read only
func DefaultHierarchy() *Hierarchy {
	h := &Hierarchy{
		resources: make(map[ResourceType]struct{}),
		actions:   make(map[Action]struct{}),
		grants:    make(map[Role]map[capability]struct{}),
	}
	resources := []ResourceType{
		ResourceProject, ResourceUser, ResourcePolicy,
		ResourceCampaign, ResourceReward, ResourceVoucher,
	}
	actions := []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionManage}
	for _, r := range resources {
		h.resources[r] = struct{}{}
	}
	for _, a := range actions {
		h.actions[a] = struct{}{}
	}

	for _, r := range resources {
		for _, a := range actions {
			h.grant(RoleOwner, r, a)
		}
	}

	business := []ResourceType{ResourceCampaign, ResourceReward, ResourceVoucher, ResourceUser}
	for _, r := range business {
		for _, a := range []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete} {
			h.grant(RoleAdmin, r, a)
		}
	}
	h.grant(RoleAdmin, ResourceProject, ActionRead)
	h.grant(RoleAdmin, ResourceProject, ActionUpdate)
	h.grant(RoleAdmin, ResourcePolicy, ActionRead)

	for _, r := range resources {
		h.grant(RoleMember, r, ActionRead)
	}
	for _, r := range []ResourceType{ResourceCampaign, ResourceReward, ResourceVoucher} {
		h.grant(RoleMember, r, ActionCreate)
		h.grant(RoleMember, r, ActionUpdate)
	}

	for _, r := range resources {
		h.grant(RoleViewer, r, ActionRead)
	}
	return h
}

func (h *Hierarchy) grant(role Role, resource ResourceType, action Action) {
	caps, ok := h.grants[role]
	if !ok {
		caps = make(map[capability]struct{})
		h.grants[role] = caps
	}
	caps[capability{resource: resource, action: action}] = struct{}{}
}

// ImpliesCapability reports whether the role grants the action on the
// resource type by default. Unknown roles, resources, and actions are
// always denied.
func (h *Hierarchy) ImpliesCapability(role Role, resource ResourceType, action Action) bool {
	if !h.KnownResource(resource) || !h.KnownAction(action) {
		return false
	}
	caps, ok := h.grants[role]
	if !ok {
		return false
	}
	_, ok = caps[capability{resource: resource, action: action}]
	return ok
}

// KnownResource reports whether the resource type belongs to the closed set.
func (h *Hierarchy) KnownResource(resource ResourceType) bool {
	_, ok := h.resources[resource]
	return ok
}

// KnownAction reports whether the action belongs to the closed set.
func (h *Hierarchy) KnownAction(action Action) bool {
	_, ok := h.actions[action]
	return ok
}
