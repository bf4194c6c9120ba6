// Package authz implements capability-based authorization. Every actor
// carries a role; each role maps to a fixed set of capabilities. Platform
// capabilities (tenant approval, payment verification, plan management)
// are restricted to super admins, while tenant-scoped capabilities are
// additionally checked against the actor's own tenant.
package authz
