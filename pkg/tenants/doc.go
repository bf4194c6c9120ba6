// Package tenants implements the tenant lifecycle. A tenant starts
// PENDING and moves through a fixed state machine: PENDING to ACTIVE or
// REJECTED, ACTIVE to SUSPENDED and back. REJECTED is terminal. Every
// transition attempt, including denied ones, is written to the audit log.
package tenants
