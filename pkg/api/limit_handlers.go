package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/httputil"
	"github.com/taskhive/taskhive/pkg/limits"
)

// LimitHandlers exposes advisory usage limit checks
type LimitHandlers struct {
	enforcer *limits.Enforcer
	checker  authz.Checker
}

// NewLimitHandlers creates a new LimitHandlers
func NewLimitHandlers(enforcer *limits.Enforcer, checker authz.Checker) *LimitHandlers {
	return &LimitHandlers{enforcer: enforcer, checker: checker}
}

// RegisterRoutes registers limit routes
func (h *LimitHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants/{tenant_id}/limits/{resource}", h.CheckLimit).Methods("GET")
}

// CheckLimit handles GET /tenants/{tenant_id}/limits/{resource}. The
// decision is advisory: mutations re-check inside their own transaction.
func (h *LimitHandlers) CheckLimit(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapTenantView, authz.TenantTarget(tenantID)); !ok {
		return
	}

	resource := limits.Resource(mux.Vars(r)["resource"])
	if !resource.IsValid() {
		httputil.WriteBadRequest(w, "unknown resource")
		return
	}

	decision, err := h.enforcer.Check(r.Context(), tenantID, resource)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, decision)
}
