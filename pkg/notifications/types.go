// Package notifications dispatches lifecycle notifications onto a Redis
// queue consumed by delivery workers. Dispatch is fire-and-forget: a
// failed enqueue is logged and never fails the operation that emitted it.
package notifications

import "time"

// Type represents the kind of notification
type Type string

const (
	TypeTenantApproved       Type = "tenant_approved"
	TypeTenantRejected       Type = "tenant_rejected"
	TypeTenantSuspended      Type = "tenant_suspended"
	TypeTenantReactivated    Type = "tenant_reactivated"
	TypeSubscriptionCreated  Type = "subscription_created"
	TypeSubscriptionExpiring Type = "subscription_expiring"
	TypeSubscriptionExpired  Type = "subscription_expired"
	TypePaymentApproved      Type = "payment_approved"
	TypePaymentRejected      Type = "payment_rejected"
	TypeInvoiceIssued        Type = "invoice_issued"
	TypeInvoiceOverdue       Type = "invoice_overdue"
	TypeTaskAssigned         Type = "task_assigned"
)

// Notification is a single queued notification
type Notification struct {
	Type      Type                   `json:"type"`
	TenantID  int64                  `json:"tenant_id"`
	UserID    *int64                 `json:"user_id,omitempty"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
