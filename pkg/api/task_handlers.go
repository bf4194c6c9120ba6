package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/httputil"
	"github.com/taskhive/taskhive/pkg/tasks"
)

// TaskHandlers handles project and task HTTP requests
type TaskHandlers struct {
	service *tasks.Service
	checker authz.Checker
}

// NewTaskHandlers creates a new TaskHandlers
func NewTaskHandlers(service *tasks.Service, checker authz.Checker) *TaskHandlers {
	return &TaskHandlers{service: service, checker: checker}
}

// RegisterRoutes registers project and task routes
func (h *TaskHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants/{tenant_id}/projects", h.CreateProject).Methods("POST")
	router.HandleFunc("/tenants/{tenant_id}/projects", h.ListProjects).Methods("GET")
	router.HandleFunc("/projects/{id}", h.GetProject).Methods("GET")
	router.HandleFunc("/projects/{id}/archive", h.ArchiveProject).Methods("POST")
	router.HandleFunc("/projects/{id}/tasks", h.CreateTask).Methods("POST")
	router.HandleFunc("/projects/{id}/tasks", h.ListTasks).Methods("GET")
	router.HandleFunc("/tasks/{id}", h.GetTask).Methods("GET")
	router.HandleFunc("/tasks/{id}/status", h.UpdateTaskStatus).Methods("PUT")
	router.HandleFunc("/tasks/{id}/assign", h.AssignTask).Methods("POST")
}

type updateTaskStatusRequest struct {
	Status tasks.TaskStatus `json:"status"`
}

type assignTaskRequest struct {
	AssigneeID int64 `json:"assignee_id"`
}

// CreateProject handles POST /tenants/{tenant_id}/projects
func (h *TaskHandlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapProjectManage, authz.TenantTarget(tenantID))
	if !ok {
		return
	}

	var project tasks.Project
	if !httputil.ParseJSONOrError(w, r, &project) {
		return
	}
	project.TenantID = tenantID

	created, err := h.service.CreateProject(r.Context(), actor.ID, &project)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, created)
}

// ListProjects handles GET /tenants/{tenant_id}/projects
func (h *TaskHandlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapTaskView, authz.TenantTarget(tenantID)); !ok {
		return
	}

	list, err := h.service.ListProjects(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// GetProject handles GET /projects/{id}
func (h *TaskHandlers) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	project, err := h.service.GetProject(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapTaskView, authz.TenantTarget(project.TenantID)); !ok {
		return
	}

	httputil.WriteSuccess(w, project)
}

// ArchiveProject handles POST /projects/{id}/archive
func (h *TaskHandlers) ArchiveProject(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	project, err := h.service.GetProject(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapProjectManage, authz.TenantTarget(project.TenantID))
	if !ok {
		return
	}

	archived, err := h.service.ArchiveProject(r.Context(), actor.ID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, archived)
}

// CreateTask handles POST /projects/{id}/tasks
func (h *TaskHandlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	project, err := h.service.GetProject(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapTaskManage, authz.TenantTarget(project.TenantID))
	if !ok {
		return
	}

	var task tasks.Task
	if !httputil.ParseJSONOrError(w, r, &task) {
		return
	}
	task.ProjectID = projectID

	created, err := h.service.CreateTask(r.Context(), actor.ID, &task)
	if err != nil {
		if tasks.IsNotFound(err) {
			writeDomainError(w, err)
			return
		}
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	httputil.WriteCreated(w, created)
}

// ListTasks handles GET /projects/{id}/tasks with optional status and
// assignee_id filters
func (h *TaskHandlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	project, err := h.service.GetProject(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapTaskView, authz.TenantTarget(project.TenantID)); !ok {
		return
	}

	filter := &tasks.TaskFilter{ProjectID: &projectID}
	if raw := httputil.ParseQueryString(r, "status", ""); raw != "" {
		status := tasks.TaskStatus(raw)
		if !status.IsValid() {
			httputil.WriteBadRequest(w, "invalid status filter")
			return
		}
		filter.Status = &status
	}

	list, err := h.service.ListTasks(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// GetTask handles GET /tasks/{id}
func (h *TaskHandlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	task, err := h.service.GetTask(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapTaskView, authz.TenantTarget(task.TenantID)); !ok {
		return
	}

	httputil.WriteSuccess(w, task)
}

// UpdateTaskStatus handles PUT /tasks/{id}/status
func (h *TaskHandlers) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	task, err := h.service.GetTask(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapTaskManage, authz.TenantTarget(task.TenantID))
	if !ok {
		return
	}

	var req updateTaskStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	updated, err := h.service.UpdateTaskStatus(r.Context(), actor.ID, id, req.Status)
	if err != nil {
		if tasks.IsNotFound(err) {
			writeDomainError(w, err)
			return
		}
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	httputil.WriteSuccess(w, updated)
}

// AssignTask handles POST /tasks/{id}/assign
func (h *TaskHandlers) AssignTask(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	task, err := h.service.GetTask(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapTaskManage, authz.TenantTarget(task.TenantID))
	if !ok {
		return
	}

	var req assignTaskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.AssigneeID == 0 {
		httputil.WriteBadRequest(w, "assignee_id is required")
		return
	}

	assigned, err := h.service.AssignTask(r.Context(), actor.ID, id, req.AssigneeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, assigned)
}
