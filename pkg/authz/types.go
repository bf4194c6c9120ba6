package authz

import "fmt"

// Role represents an actor's role in the system
type Role string

const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"
	RoleTenantAdmin Role = "TENANT_ADMIN"
	RoleManager     Role = "MANAGER"
	RoleMember      Role = "MEMBER"
)

// IsValid checks if the role is a known role
func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleTenantAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}

// Capability represents a named operation an actor may perform
type Capability string

const (
	CapTenantApprove      Capability = "tenant:approve"
	CapTenantReject       Capability = "tenant:reject"
	CapTenantSuspend      Capability = "tenant:suspend"
	CapTenantReactivate   Capability = "tenant:reactivate"
	CapTenantView         Capability = "tenant:view"
	CapPlanManage         Capability = "plan:manage"
	CapPlanView           Capability = "plan:view"
	CapSubscriptionCreate Capability = "subscription:create"
	CapSubscriptionCancel Capability = "subscription:cancel"
	CapSubscriptionView   Capability = "subscription:view"
	CapPaymentSubmit      Capability = "payment:submit"
	CapPaymentVerify      Capability = "payment:verify"
	CapInvoiceView        Capability = "invoice:view"
	CapTeamManage         Capability = "team:manage"
	CapTeamView           Capability = "team:view"
	CapProjectManage      Capability = "project:manage"
	CapTaskManage         Capability = "task:manage"
	CapTaskView           Capability = "task:view"
	CapAuditView          Capability = "audit:view"
)

// Actor is the authenticated principal performing an operation. TenantID
// is nil for platform operators.
type Actor struct {
	ID       int64  `json:"id"`
	Role     Role   `json:"role"`
	TenantID *int64 `json:"tenant_id,omitempty"`
}

// Target identifies the tenant a capability is being exercised against.
// A nil TenantID means the operation is platform-wide.
type Target struct {
	TenantID *int64 `json:"tenant_id,omitempty"`
}

// TenantTarget builds a target scoped to a single tenant
func TenantTarget(tenantID int64) Target {
	return Target{TenantID: &tenantID}
}

// PlatformTarget builds a platform-wide target
func PlatformTarget() Target {
	return Target{}
}

// ForbiddenError indicates the actor lacks the capability for the target
type ForbiddenError struct {
	ActorID    int64
	Capability Capability
	Reason     string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %d is not allowed to %s: %s", e.ActorID, e.Capability, e.Reason)
}

// IsForbidden checks if an error is a ForbiddenError
func IsForbidden(err error) bool {
	_, ok := err.(*ForbiddenError)
	return ok
}
