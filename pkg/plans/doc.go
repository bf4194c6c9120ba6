// Package plans manages the subscription plan catalog. Plans carry the
// usage limits and feature flags the limit enforcer reads; a limit of
// UnlimitedSentinel means the resource is not capped.
package plans
