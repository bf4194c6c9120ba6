package authz

// Checker evaluates whether an actor may exercise a capability against a
// target. Implementations must be safe for concurrent use.
type Checker interface {
	// Can returns nil when the actor holds the capability for the target,
	// and a *ForbiddenError otherwise.
	Can(actor Actor, capability Capability, target Target) error
}

// platformCapabilities are only ever granted to super admins, regardless
// of the role grant table
var platformCapabilities = map[Capability]bool{
	CapTenantApprove:    true,
	CapTenantReject:     true,
	CapTenantSuspend:    true,
	CapTenantReactivate: true,
	CapPaymentVerify:    true,
	CapPlanManage:       true,
}

// roleGrants maps each role to the capabilities it holds
var roleGrants = map[Role]map[Capability]bool{
	RoleSuperAdmin: {
		CapTenantApprove:      true,
		CapTenantReject:       true,
		CapTenantSuspend:      true,
		CapTenantReactivate:   true,
		CapTenantView:         true,
		CapPlanManage:         true,
		CapPlanView:           true,
		CapSubscriptionCreate: true,
		CapSubscriptionCancel: true,
		CapSubscriptionView:   true,
		CapPaymentSubmit:      true,
		CapPaymentVerify:      true,
		CapInvoiceView:        true,
		CapTeamManage:         true,
		CapTeamView:           true,
		CapProjectManage:      true,
		CapTaskManage:         true,
		CapTaskView:           true,
		CapAuditView:          true,
	},
	RoleTenantAdmin: {
		CapTenantView:         true,
		CapPlanView:           true,
		CapSubscriptionCreate: true,
		CapSubscriptionCancel: true,
		CapSubscriptionView:   true,
		CapPaymentSubmit:      true,
		CapInvoiceView:        true,
		CapTeamManage:         true,
		CapTeamView:           true,
		CapProjectManage:      true,
		CapTaskManage:         true,
		CapTaskView:           true,
		CapAuditView:          true,
	},
	RoleManager: {
		CapTenantView:    true,
		CapPlanView:      true,
		CapTeamManage:    true,
		CapTeamView:      true,
		CapProjectManage: true,
		CapTaskManage:    true,
		CapTaskView:      true,
	},
	RoleMember: {
		CapPlanView: true,
		CapTeamView: true,
		CapTaskView: true,
	},
}

// RoleChecker is the static role-grant implementation of Checker
type RoleChecker struct{}

// NewRoleChecker creates a checker backed by the built-in role grants
func NewRoleChecker() *RoleChecker {
	return &RoleChecker{}
}

// Can checks the role grant table and tenant scoping rules
func (c *RoleChecker) Can(actor Actor, capability Capability, target Target) error {
	if !actor.Role.IsValid() {
		return &ForbiddenError{ActorID: actor.ID, Capability: capability, Reason: "unknown role"}
	}

	if platformCapabilities[capability] && actor.Role != RoleSuperAdmin {
		return &ForbiddenError{ActorID: actor.ID, Capability: capability, Reason: "requires super admin"}
	}

	if !roleGrants[actor.Role][capability] {
		return &ForbiddenError{
			ActorID:    actor.ID,
			Capability: capability,
			Reason:     "role " + string(actor.Role) + " does not grant it",
		}
	}

	// Super admins operate across tenants; everyone else is confined to
	// their own tenant.
	if actor.Role == RoleSuperAdmin {
		return nil
	}
	if target.TenantID == nil {
		return &ForbiddenError{ActorID: actor.ID, Capability: capability, Reason: "platform-wide target"}
	}
	if actor.TenantID == nil || *actor.TenantID != *target.TenantID {
		return &ForbiddenError{ActorID: actor.ID, Capability: capability, Reason: "target belongs to another tenant"}
	}

	return nil
}

// Capabilities returns the capabilities granted to a role, for introspection
// endpoints
func Capabilities(role Role) []Capability {
	grants := roleGrants[role]
	caps := make([]Capability, 0, len(grants))
	for c := range grants {
		caps = append(caps, c)
	}
	return caps
}
