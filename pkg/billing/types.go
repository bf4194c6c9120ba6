package billing

import (
	"fmt"
	"time"
)

// SubscriptionStatus represents a subscription's lifecycle state
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "TRIAL"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// IsLive reports whether the subscription grants plan limits
func (s SubscriptionStatus) IsLive() bool {
	return s == SubscriptionTrial || s == SubscriptionActive
}

// IsTerminal reports whether no further transitions are allowed
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionExpired || s == SubscriptionCancelled
}

// Subscription ties a tenant to a plan for a billing period
type Subscription struct {
	ID       int64              `json:"id"`
	TenantID int64              `json:"tenant_id"`
	PlanID   int64              `json:"plan_id"`
	Status   SubscriptionStatus `json:"status"`

	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	AutoRenew          bool       `json:"auto_renew"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	TrialStart         *time.Time `json:"trial_start,omitempty"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentMethod represents how a payment was made
type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCard         PaymentMethod = "CARD"
	MethodPayPal       PaymentMethod = "PAYPAL"
	MethodOther        PaymentMethod = "OTHER"
)

// IsValid checks if the payment method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodBankTransfer, MethodCard, MethodPayPal, MethodOther:
		return true
	}
	return false
}

// PaymentStatus represents the settlement state of a payment
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// VerificationStatus represents the operator's decision on a payment
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationApproved VerificationStatus = "APPROVED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// IsTerminal reports whether the decision is final
func (v VerificationStatus) IsTerminal() bool {
	return v == VerificationApproved || v == VerificationRejected
}

// Payment is a manually-submitted payment awaiting verification
type Payment struct {
	ID             int64  `json:"id"`
	SubscriptionID int64  `json:"subscription_id"`
	TenantID       int64  `json:"tenant_id"`
	Reference      string `json:"reference"`

	AmountCents int64         `json:"amount_cents"`
	Currency    string        `json:"currency"`
	Method      PaymentMethod `json:"method"`
	ProofRef    string        `json:"proof_ref,omitempty"`
	Status      PaymentStatus `json:"status"`

	Verification      VerificationStatus `json:"verification_status"`
	VerifiedBy        *int64             `json:"verified_by,omitempty"`
	VerifiedAt        *time.Time         `json:"verified_at,omitempty"`
	VerificationNotes string             `json:"verification_notes,omitempty"`
	PaidAt            *time.Time         `json:"paid_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InvoiceKind distinguishes renewal invoices, whose settlement extends
// the subscription period, from ad-hoc subscription invoices
type InvoiceKind string

const (
	InvoiceKindSubscription InvoiceKind = "SUBSCRIPTION"
	InvoiceKindRenewal      InvoiceKind = "RENEWAL"
)

// InvoiceStatus represents an invoice's state
type InvoiceStatus string

const (
	InvoiceOpen    InvoiceStatus = "OPEN"
	InvoicePaid    InvoiceStatus = "PAID"
	InvoiceOverdue InvoiceStatus = "OVERDUE"
	InvoiceVoid    InvoiceStatus = "VOID"
)

// Invoice is a bill for a subscription period. TotalCents is always
// SubtotalCents + TaxCents - DiscountCents, and SubtotalCents equals the
// sum of the item amounts.
type Invoice struct {
	ID             int64  `json:"id"`
	SubscriptionID int64  `json:"subscription_id"`
	TenantID       int64  `json:"tenant_id"`
	InvoiceNumber  string `json:"invoice_number"`

	Kind   InvoiceKind   `json:"kind"`
	Status InvoiceStatus `json:"status"`

	SubtotalCents int64   `json:"subtotal_cents"`
	TaxRate       float64 `json:"tax_rate"`
	TaxCents      int64   `json:"tax_cents"`
	DiscountCents int64   `json:"discount_cents"`
	TotalCents    int64   `json:"total_cents"`
	Currency      string  `json:"currency"`

	IssueDate time.Time  `json:"issue_date"`
	DueDate   time.Time  `json:"due_date"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`

	Items []InvoiceItem `json:"items,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InvoiceItem is a single line on an invoice
type InvoiceItem struct {
	ID             int64  `json:"id"`
	InvoiceID      int64  `json:"invoice_id"`
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	AmountCents    int64  `json:"amount_cents"`
}

// ConflictError indicates an operation that clashes with current state,
// like creating a second live subscription or reversing a verification
// decision
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// IsConflict checks if an error is a ConflictError
func IsConflict(err error) bool {
	_, ok := err.(*ConflictError)
	return ok
}

// InvalidTransitionError indicates an attempt to move a payment out of a
// terminal verification state
type InvalidTransitionError struct {
	PaymentID int64
	Status    VerificationStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("payment %d is already %s; verification decisions are final", e.PaymentID, e.Status)
}

// IsInvalidTransition checks if an error is an InvalidTransitionError
func IsInvalidTransition(err error) bool {
	_, ok := err.(*InvalidTransitionError)
	return ok
}

// RenewalError indicates a subscription could not be renewed
type RenewalError struct {
	SubscriptionID int64
	Reason         string
}

func (e *RenewalError) Error() string {
	return fmt.Sprintf("subscription %d cannot be renewed: %s", e.SubscriptionID, e.Reason)
}

// IsRenewalError checks if an error is a RenewalError
func IsRenewalError(err error) bool {
	_, ok := err.(*RenewalError)
	return ok
}

// NotFoundError indicates a billing record does not exist
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// IsNotFound checks if an error is a billing NotFoundError
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
