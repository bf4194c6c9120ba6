package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/billing"
	"github.com/taskhive/taskhive/pkg/httputil"
	"github.com/taskhive/taskhive/pkg/limits"
	"github.com/taskhive/taskhive/pkg/observability"
	"github.com/taskhive/taskhive/pkg/plans"
	"github.com/taskhive/taskhive/pkg/tasks"
	"github.com/taskhive/taskhive/pkg/teams"
	"github.com/taskhive/taskhive/pkg/tenants"
)

// Services bundles the domain services the API serves
type Services struct {
	Tenants  *tenants.PostgresService
	Plans    plans.Service
	Billing  *billing.Service
	Teams    *teams.Service
	Tasks    *tasks.Service
	Limits   *limits.Enforcer
	Recorder audit.Recorder
	Checker  authz.Checker
}

// Server represents the control plane API server
type Server struct {
	router  *mux.Router
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewServer creates an API server with all routes registered
func NewServer(services Services, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		metrics: metrics,
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(httputil.RequestIDMiddleware)
	api.Use(httputil.LoggingMiddleware(logger))
	if metrics != nil {
		api.Use(httputil.MetricsMiddleware(metrics))
	}
	api.Use(httputil.RecoveryMiddleware(logger))
	api.Use(ActorMiddleware)

	NewTenantHandlers(services.Tenants, services.Checker).RegisterRoutes(api)
	NewPlanHandlers(services.Plans, services.Checker).RegisterRoutes(api)
	NewBillingHandlers(services.Billing, services.Checker).RegisterRoutes(api)
	NewTeamHandlers(services.Teams, services.Checker).RegisterRoutes(api)
	NewTaskHandlers(services.Tasks, services.Checker).RegisterRoutes(api)
	NewLimitHandlers(services.Limits, services.Checker).RegisterRoutes(api)
	NewAuditHandlers(services.Recorder, services.Checker).RegisterRoutes(api)

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional registrations
func (s *Server) Router() *mux.Router {
	return s.router
}
