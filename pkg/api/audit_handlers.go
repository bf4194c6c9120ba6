package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/httputil"
)

// AuditHandlers exposes the audit trail
type AuditHandlers struct {
	recorder audit.Recorder
	checker  authz.Checker
}

// NewAuditHandlers creates a new AuditHandlers
func NewAuditHandlers(recorder audit.Recorder, checker authz.Checker) *AuditHandlers {
	return &AuditHandlers{recorder: recorder, checker: checker}
}

// RegisterRoutes registers audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.SearchEvents).Methods("GET")
}

// SearchEvents handles GET /audit/events. Platform operators see
// everything; tenant actors are pinned to their own tenant.
func (h *AuditHandlers) SearchEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := authorize(w, r, h.checker, authz.CapAuditView, targetFromQuery(r))
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid offset")
		return
	}

	filter := audit.SearchFilter{Limit: limit, Offset: offset}
	if actor.Role != authz.RoleSuperAdmin {
		filter.TenantID = actor.TenantID
	} else if raw := httputil.ParseQueryString(r, "tenant_id", ""); raw != "" {
		tenantID, err := httputil.ParseQueryInt(r, "tenant_id", 0)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid tenant_id")
			return
		}
		id := int64(tenantID)
		filter.TenantID = &id
	}

	if raw := httputil.ParseQueryString(r, "event_type", ""); raw != "" {
		filter.EventTypes = []audit.EventType{audit.EventType(raw)}
	}
	if raw := httputil.ParseQueryString(r, "status", ""); raw != "" {
		status := audit.EventStatus(raw)
		filter.Status = &status
	}
	if raw := httputil.ParseQueryString(r, "since", ""); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid since timestamp")
			return
		}
		filter.StartTime = &since
	}

	events, err := h.recorder.Search(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, events)
}

// targetFromQuery scopes the authorization target to the queried tenant
// when one is given, so tenant admins can read their own trail
func targetFromQuery(r *http.Request) authz.Target {
	actor, ok := ActorFromContext(r.Context())
	if ok && actor.TenantID != nil {
		return authz.TenantTarget(*actor.TenantID)
	}
	return authz.PlatformTarget()
}
