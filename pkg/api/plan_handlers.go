package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/httputil"
	"github.com/taskhive/taskhive/pkg/plans"
)

// PlanHandlers handles plan catalog HTTP requests
type PlanHandlers struct {
	service plans.Service
	checker authz.Checker
}

// NewPlanHandlers creates a new PlanHandlers
func NewPlanHandlers(service plans.Service, checker authz.Checker) *PlanHandlers {
	return &PlanHandlers{service: service, checker: checker}
}

// RegisterRoutes registers plan routes
func (h *PlanHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/plans", h.ListPlans).Methods("GET")
	router.HandleFunc("/plans", h.CreatePlan).Methods("POST")
	router.HandleFunc("/plans/{id}", h.GetPlan).Methods("GET")
	router.HandleFunc("/plans/{id}", h.UpdatePlan).Methods("PUT")
	router.HandleFunc("/plans/{id}", h.DeactivatePlan).Methods("DELETE")
}

// ListPlans handles GET /plans. Inactive plans are included only when
// requested with ?all=true.
func (h *PlanHandlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.checker, authz.CapPlanView, authz.PlatformTarget()); !ok {
		return
	}

	all := httputil.ParseQueryString(r, "all", "false") == "true"
	list, err := h.service.ListPlans(r.Context(), !all)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// GetPlan handles GET /plans/{id}
func (h *PlanHandlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapPlanView, authz.PlatformTarget()); !ok {
		return
	}

	plan, err := h.service.GetPlan(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, plan)
}

// CreatePlan handles POST /plans
func (h *PlanHandlers) CreatePlan(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.checker, authz.CapPlanManage, authz.PlatformTarget()); !ok {
		return
	}

	var plan plans.Plan
	if !httputil.ParseJSONOrError(w, r, &plan) {
		return
	}

	if err := h.service.CreatePlan(r.Context(), &plan); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, plan)
}

// UpdatePlan handles PUT /plans/{id}
func (h *PlanHandlers) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapPlanManage, authz.PlatformTarget()); !ok {
		return
	}

	var plan plans.Plan
	if !httputil.ParseJSONOrError(w, r, &plan) {
		return
	}
	plan.ID = id

	if err := h.service.UpdatePlan(r.Context(), &plan); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, plan)
}

// DeactivatePlan handles DELETE /plans/{id}. Plans are never hard
// deleted; existing subscriptions keep referencing them.
func (h *PlanHandlers) DeactivatePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapPlanManage, authz.PlatformTarget()); !ok {
		return
	}

	if err := h.service.DeactivatePlan(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
