// Package limits enforces per-tenant usage limits. Effective limits come
// from the plan behind the tenant's live subscription; a tenant without
// one falls back to zero limits and is denied everything. Checks run
// inside the caller's transaction with the tenant row locked, so a
// concurrent create cannot slip past the limit.
package limits
