package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/httputil"
	"github.com/taskhive/taskhive/pkg/teams"
)

// TeamHandlers handles user and team HTTP requests
type TeamHandlers struct {
	service *teams.Service
	checker authz.Checker
}

// NewTeamHandlers creates a new TeamHandlers
func NewTeamHandlers(service *teams.Service, checker authz.Checker) *TeamHandlers {
	return &TeamHandlers{service: service, checker: checker}
}

// RegisterRoutes registers team routes
func (h *TeamHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants/{tenant_id}/users", h.InviteUser).Methods("POST")
	router.HandleFunc("/tenants/{tenant_id}/teams", h.CreateTeam).Methods("POST")
	router.HandleFunc("/tenants/{tenant_id}/teams", h.ListTeams).Methods("GET")
	router.HandleFunc("/teams/{id}", h.GetTeam).Methods("GET")
	router.HandleFunc("/teams/{id}", h.DeleteTeam).Methods("DELETE")
	router.HandleFunc("/teams/{id}/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/teams/{id}/members", h.AddMember).Methods("POST")
	router.HandleFunc("/teams/{id}/members/{user_id}", h.RemoveMember).Methods("DELETE")
}

type inviteUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type addMemberRequest struct {
	UserID int64          `json:"user_id"`
	Role   teams.TeamRole `json:"role"`
}

// InviteUser handles POST /tenants/{tenant_id}/users
func (h *TeamHandlers) InviteUser(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapTeamManage, authz.TenantTarget(tenantID))
	if !ok {
		return
	}

	var req inviteUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	user, err := h.service.InviteUser(r.Context(), actor.ID, &teams.User{
		Email:    req.Email,
		FullName: req.FullName,
		Role:     req.Role,
		TenantID: &tenantID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, user)
}

// CreateTeam handles POST /tenants/{tenant_id}/teams
func (h *TeamHandlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapTeamManage, authz.TenantTarget(tenantID))
	if !ok {
		return
	}

	var team teams.Team
	if !httputil.ParseJSONOrError(w, r, &team) {
		return
	}
	team.TenantID = tenantID
	if team.OwnerID == 0 {
		team.OwnerID = actor.ID
	}

	created, err := h.service.CreateTeam(r.Context(), actor.ID, &team)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, created)
}

// ListTeams handles GET /tenants/{tenant_id}/teams
func (h *TeamHandlers) ListTeams(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapTeamView, authz.TenantTarget(tenantID)); !ok {
		return
	}

	list, err := h.service.ListTeams(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// GetTeam handles GET /teams/{id}
func (h *TeamHandlers) GetTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	team, err := h.service.GetTeam(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapTeamView, authz.TenantTarget(team.TenantID)); !ok {
		return
	}

	httputil.WriteSuccess(w, team)
}

// DeleteTeam handles DELETE /teams/{id}
func (h *TeamHandlers) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	team, err := h.service.GetTeam(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapTeamManage, authz.TenantTarget(team.TenantID))
	if !ok {
		return
	}

	if err := h.service.DeleteTeam(r.Context(), actor.ID, id); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// ListMembers handles GET /teams/{id}/members
func (h *TeamHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	team, err := h.service.GetTeam(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapTeamView, authz.TenantTarget(team.TenantID)); !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, members)
}

// AddMember handles POST /teams/{id}/members
func (h *TeamHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	team, err := h.service.GetTeam(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapTeamManage, authz.TenantTarget(team.TenantID))
	if !ok {
		return
	}

	var req addMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	member, err := h.service.AddMember(r.Context(), actor.ID, id, req.UserID, req.Role)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, member)
}

// RemoveMember handles DELETE /teams/{id}/members/{user_id}
func (h *TeamHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	team, err := h.service.GetTeam(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapTeamManage, authz.TenantTarget(team.TenantID))
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), actor.ID, id, userID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
