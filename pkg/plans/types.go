package plans

import (
	"fmt"
	"time"
)

// UnlimitedSentinel marks a limit as uncapped
const UnlimitedSentinel = -1

// BillingInterval represents how often a plan renews
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "MONTHLY"
	IntervalYearly  BillingInterval = "YEARLY"
)

// IsValid checks if the billing interval is known
func (i BillingInterval) IsValid() bool {
	return i == IntervalMonthly || i == IntervalYearly
}

// Period returns the length of one billing interval starting from t
func (i BillingInterval) Period(t time.Time) time.Time {
	if i == IntervalYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// Limits holds the per-resource caps a plan grants
type Limits struct {
	MaxUsers     int `json:"max_users"`
	MaxTeams     int `json:"max_teams"`
	MaxProjects  int `json:"max_projects"`
	MaxStorageGB int `json:"max_storage_gb"`
}

// Features holds the feature flags a plan grants
type Features struct {
	AdvancedReports bool `json:"advanced_reports"`
	PrioritySupport bool `json:"priority_support"`
	APIAccess       bool `json:"api_access"`
	CustomBranding  bool `json:"custom_branding"`
	SSO             bool `json:"sso"`
	AuditLogs       bool `json:"audit_logs"`
}

// Plan represents a subscription plan in the catalog
type Plan struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`

	PriceCents int64           `json:"price_cents"`
	Currency   string          `json:"currency"`
	Interval   BillingInterval `json:"billing_interval"`

	Limits   Limits   `json:"limits"`
	Features Features `json:"features"`

	TrialDays int  `json:"trial_days"`
	IsActive  bool `json:"is_active"`
	SortOrder int  `json:"sort_order"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFree reports whether the plan costs nothing
func (p *Plan) IsFree() bool {
	return p.PriceCents == 0
}

// NotFoundError indicates a plan does not exist
type NotFoundError struct {
	ID   int64
	Slug string
}

func (e *NotFoundError) Error() string {
	if e.Slug != "" {
		return fmt.Sprintf("plan %q not found", e.Slug)
	}
	return fmt.Sprintf("plan %d not found", e.ID)
}

// IsNotFound checks if an error is a plan NotFoundError
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
