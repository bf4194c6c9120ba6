package limits

import "fmt"

// Resource represents a limited resource type
type Resource string

const (
	ResourceUser    Resource = "user"
	ResourceTeam    Resource = "team"
	ResourceProject Resource = "project"
	ResourceStorage Resource = "storage"
)

// IsValid checks if the resource is a known limited resource
func (r Resource) IsValid() bool {
	switch r {
	case ResourceUser, ResourceTeam, ResourceProject, ResourceStorage:
		return true
	}
	return false
}

// Denial reasons
const (
	ReasonTenantNotActive = "tenant_not_active"
	ReasonNoActivePlan    = "no_active_plan"
	ReasonLimitReached    = "limit_reached"
)

// Decision is the outcome of a limit check
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Current int64  `json:"current"`
	Limit   int64  `json:"limit"`
}

// LimitExceededError indicates a limit check denied the operation
type LimitExceededError struct {
	TenantID int64
	Resource Resource
	Current  int64
	Limit    int64
	Reason   string
}

func (e *LimitExceededError) Error() string {
	switch e.Reason {
	case ReasonTenantNotActive:
		return fmt.Sprintf("tenant %d is not active", e.TenantID)
	case ReasonNoActivePlan:
		return fmt.Sprintf("tenant %d has no active plan", e.TenantID)
	default:
		return fmt.Sprintf("tenant %d reached the %s limit (%d/%d)",
			e.TenantID, e.Resource, e.Current, e.Limit)
	}
}

// IsLimitExceeded checks if an error is a LimitExceededError
func IsLimitExceeded(err error) bool {
	_, ok := err.(*LimitExceededError)
	return ok
}
