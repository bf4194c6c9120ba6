package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Tenant lifecycle events
	EventTypeTenantCreate     EventType = "tenant.create"
	EventTypeTenantApprove    EventType = "tenant.approve"
	EventTypeTenantReject     EventType = "tenant.reject"
	EventTypeTenantSuspend    EventType = "tenant.suspend"
	EventTypeTenantReactivate EventType = "tenant.reactivate"

	// Subscription events
	EventTypeSubscriptionCreate EventType = "subscription.create"
	EventTypeSubscriptionCancel EventType = "subscription.cancel"
	EventTypeSubscriptionRenew  EventType = "subscription.renew"
	EventTypeSubscriptionExpire EventType = "subscription.expire"

	// Payment events
	EventTypePaymentSubmit  EventType = "payment.submit"
	EventTypePaymentApprove EventType = "payment.approve"
	EventTypePaymentReject  EventType = "payment.reject"

	// Invoice events
	EventTypeInvoiceIssue EventType = "invoice.issue"
	EventTypeInvoicePaid  EventType = "invoice.paid"
	EventTypeInvoiceVoid  EventType = "invoice.void"

	// Limit enforcement events
	EventTypeLimitDenied EventType = "limit.denied"

	// Workspace events
	EventTypeTeamCreate   EventType = "team.create"
	EventTypeTeamDelete   EventType = "team.delete"
	EventTypeMemberAdd    EventType = "team.member_add"
	EventTypeMemberRemove EventType = "team.member_remove"
	EventTypeTaskAssign   EventType = "task.assign"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypeTenant       ResourceType = "tenant"
	ResourceTypePlan         ResourceType = "plan"
	ResourceTypeSubscription ResourceType = "subscription"
	ResourceTypePayment      ResourceType = "payment"
	ResourceTypeInvoice      ResourceType = "invoice"
	ResourceTypeTeam         ResourceType = "team"
	ResourceTypeProject      ResourceType = "project"
	ResourceTypeTask         ResourceType = "task"
)

// Event represents a single audit log entry. The FromStatus/ToStatus pair
// captures state-machine transitions; for denied attempts ToStatus holds
// the status that was requested.
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	ActorID  *int64 `json:"actor_id,omitempty"`
	TenantID *int64 `json:"tenant_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`

	RequestID    string                 `json:"request_id,omitempty"`
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter represents filters for querying the audit log
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	ActorID  *int64
	TenantID *int64

	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}
