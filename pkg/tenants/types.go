package tenants

import (
	"fmt"
	"time"
)

// Status represents a tenant's lifecycle state
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusRejected  Status = "REJECTED"
)

// IsValid checks if the status is a known lifecycle state
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed
func (s Status) IsTerminal() bool {
	return s == StatusRejected
}

// allowedTransitions defines the tenant state machine
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusActive, StatusRejected},
	StatusActive:    {StatusSuspended},
	StatusSuspended: {StatusActive},
	StatusRejected:  {},
}

// CanTransition reports whether from -> to is a legal transition
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Tenant represents a customer workspace
type Tenant struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	CompanyName  string `json:"company_name"`
	CompanyEmail string `json:"company_email"`

	Status     Status     `json:"status"`
	IsApproved bool       `json:"is_approved"`
	ApprovedBy *int64     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`

	StorageBytes int64 `json:"storage_bytes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter filters tenant listings
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// InvalidTransitionError indicates a lifecycle transition the state
// machine does not allow
type InvalidTransitionError struct {
	TenantID int64
	From     Status
	To       Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("tenant %d cannot transition from %s to %s", e.TenantID, e.From, e.To)
}

// IsInvalidTransition checks if an error is an InvalidTransitionError
func IsInvalidTransition(err error) bool {
	_, ok := err.(*InvalidTransitionError)
	return ok
}

// NotFoundError indicates a tenant does not exist
type NotFoundError struct {
	ID   int64
	Slug string
}

func (e *NotFoundError) Error() string {
	if e.Slug != "" {
		return fmt.Sprintf("tenant %q not found", e.Slug)
	}
	return fmt.Sprintf("tenant %d not found", e.ID)
}

// IsNotFound checks if an error is a tenant NotFoundError
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
