// Package observability provides structured logging, Prometheus metrics,
// and health checks for the taskhive control plane.
package observability
