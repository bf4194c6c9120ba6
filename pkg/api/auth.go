package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/httputil"
	"github.com/taskhive/taskhive/pkg/observability"
)

type actorContextKey struct{}

// ActorMiddleware resolves the acting principal from the gateway-injected
// identity headers and stores it on the request context. Requests without
// an identity are rejected before reaching any handler.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
		if err != nil {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "missing or invalid actor identity")
			return
		}

		role := authz.Role(r.Header.Get("X-Actor-Role"))
		if !role.IsValid() {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "missing or invalid actor role")
			return
		}

		actor := authz.Actor{ID: actorID, Role: role}
		if raw := r.Header.Get("X-Actor-Tenant-ID"); raw != "" {
			tenantID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				httputil.WriteBadRequest(w, "invalid actor tenant")
				return
			}
			actor.TenantID = &tenantID
		}

		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		ctx = observability.WithActorID(ctx, actor.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext returns the actor resolved by ActorMiddleware
func ActorFromContext(ctx context.Context) (authz.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(authz.Actor)
	return actor, ok
}

// authorize checks the actor on the request against a capability and
// writes the error response itself when the check fails
func authorize(w http.ResponseWriter, r *http.Request, checker authz.Checker,
	capability authz.Capability, target authz.Target) (authz.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "missing actor identity")
		return authz.Actor{}, false
	}
	if err := checker.Can(actor, capability, target); err != nil {
		httputil.WriteForbidden(w, err.Error())
		return authz.Actor{}, false
	}
	return actor, true
}
