package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/shared"
)

// Middleware wires authorization guards for HTTP handlers. The domain is
// taken from the {domain} route parameter and the principal from the request
// context. Guard decisions count toward the decision metric alongside the
// explicit check endpoint.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Require ensures the principal may perform the action on the resource type
// within the routed domain.
func (m Middleware) Require(resource ResourceType, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, domain, ok := m.requestScope(w, r)
			if !ok {
				return
			}
			allowed, err := m.Service.Enforce(r.Context(), principal.UserID, resource, action, domain)
			if err != nil {
				m.fail(w, err)
				return
			}
			m.Metrics.RecordDecision(allowed)
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole ensures the principal's role in the routed domain ranks at or
// above minRole. A domain with no assignments yet admits any principal so
// the first owner can be bootstrapped.
func (m Middleware) RequireRole(minRole Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, domain, ok := m.requestScope(w, r)
			if !ok {
				return
			}
			has, err := m.Service.HasRole(r.Context(), principal.UserID, domain, minRole)
			if err != nil {
				m.fail(w, err)
				return
			}
			if !has {
				assignments, err := m.Service.ListRoleAssignments(r.Context(), domain)
				if err != nil {
					m.fail(w, err)
					return
				}
				if len(assignments) > 0 {
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) requestScope(w http.ResponseWriter, r *http.Request) (shared.Principal, string, bool) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return shared.Principal{}, "", false
	}
	domain := chi.URLParam(r, "domain")
	if domain == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return shared.Principal{}, "", false
	}
	return principal, domain, true
}

func (m Middleware) fail(w http.ResponseWriter, err error) {
	if m.Logger != nil {
		m.Logger.Error("authorization guard", slog.Any("error", err))
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
