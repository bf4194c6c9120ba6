package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/httputil"
	"github.com/taskhive/taskhive/pkg/tenants"
)

// TenantHandlers handles tenant lifecycle HTTP requests
type TenantHandlers struct {
	service *tenants.PostgresService
	checker authz.Checker
}

// NewTenantHandlers creates a new TenantHandlers
func NewTenantHandlers(service *tenants.PostgresService, checker authz.Checker) *TenantHandlers {
	return &TenantHandlers{service: service, checker: checker}
}

// RegisterRoutes registers tenant routes
func (h *TenantHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants", h.CreateTenant).Methods("POST")
	router.HandleFunc("/tenants", h.ListTenants).Methods("GET")
	router.HandleFunc("/tenants/{id}", h.GetTenant).Methods("GET")
	router.HandleFunc("/tenants/{id}/approve", h.ApproveTenant).Methods("POST")
	router.HandleFunc("/tenants/{id}/reject", h.RejectTenant).Methods("POST")
	router.HandleFunc("/tenants/{id}/suspend", h.SuspendTenant).Methods("POST")
	router.HandleFunc("/tenants/{id}/reactivate", h.ReactivateTenant).Methods("POST")
}

type createTenantRequest struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	CompanyName  string `json:"company_name"`
	CompanyEmail string `json:"company_email"`
}

type tenantDecisionRequest struct {
	Notes string `json:"notes"`
}

// CreateTenant handles POST /tenants. Signup is open; the tenant starts
// out pending review.
func (h *TenantHandlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	tenant := &tenants.Tenant{
		Name:         req.Name,
		Slug:         req.Slug,
		CompanyName:  req.CompanyName,
		CompanyEmail: req.CompanyEmail,
	}
	if err := h.service.CreateTenant(r.Context(), tenant); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, tenant)
}

// GetTenant handles GET /tenants/{id}
func (h *TenantHandlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapTenantView, authz.TenantTarget(id)); !ok {
		return
	}

	tenant, err := h.service.GetTenant(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, tenant)
}

// ListTenants handles GET /tenants with optional status, limit and
// offset query parameters
func (h *TenantHandlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.checker, authz.CapTenantView, authz.PlatformTarget()); !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid offset")
		return
	}

	filter := tenants.ListFilter{Limit: limit, Offset: offset}
	if status := httputil.ParseQueryString(r, "status", ""); status != "" {
		filter.Status = tenants.Status(status)
		if !filter.Status.IsValid() {
			httputil.WriteBadRequest(w, "invalid status filter")
			return
		}
	}

	list, err := h.service.ListTenants(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// ApproveTenant handles POST /tenants/{id}/approve
func (h *TenantHandlers) ApproveTenant(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, authz.CapTenantApprove, h.service.Approve)
}

// RejectTenant handles POST /tenants/{id}/reject
func (h *TenantHandlers) RejectTenant(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, authz.CapTenantReject, h.service.Reject)
}

// SuspendTenant handles POST /tenants/{id}/suspend
func (h *TenantHandlers) SuspendTenant(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, authz.CapTenantSuspend, h.service.Suspend)
}

// ReactivateTenant handles POST /tenants/{id}/reactivate
func (h *TenantHandlers) ReactivateTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapTenantReactivate, authz.PlatformTarget())
	if !ok {
		return
	}

	tenant, err := h.service.Reactivate(r.Context(), actor.ID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, tenant)
}

func (h *TenantHandlers) decide(w http.ResponseWriter, r *http.Request, capability authz.Capability,
	op func(ctx context.Context, actorID, tenantID int64, notes string) (*tenants.Tenant, error)) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	actor, ok := authorize(w, r, h.checker, capability, authz.PlatformTarget())
	if !ok {
		return
	}

	var req tenantDecisionRequest
	if r.ContentLength > 0 {
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
	}

	tenant, err := op(r.Context(), actor.ID, id, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, tenant)
}
