package api

import (
	"net/http"

	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/billing"
	"github.com/taskhive/taskhive/pkg/httputil"
	"github.com/taskhive/taskhive/pkg/limits"
	"github.com/taskhive/taskhive/pkg/plans"
	"github.com/taskhive/taskhive/pkg/tasks"
	"github.com/taskhive/taskhive/pkg/teams"
	"github.com/taskhive/taskhive/pkg/tenants"
)

// writeDomainError maps domain errors onto HTTP status codes. Anything
// unrecognized is treated as an internal error.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case authz.IsForbidden(err):
		httputil.WriteForbidden(w, err.Error())
	case limits.IsLimitExceeded(err):
		httputil.WriteErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
	case tenants.IsNotFound(err), plans.IsNotFound(err), billing.IsNotFound(err),
		teams.IsNotFound(err), tasks.IsNotFound(err):
		httputil.WriteNotFound(w, err.Error())
	case tenants.IsInvalidTransition(err), billing.IsInvalidTransition(err),
		billing.IsConflict(err), billing.IsRenewalError(err), teams.IsConflict(err):
		httputil.WriteConflict(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
