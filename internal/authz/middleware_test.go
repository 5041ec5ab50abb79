package authz

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/shared"
)

func TestRequireGuardCountsDecisions(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, DefaultHierarchy(), nil, slog.Default())
	require.NoError(t, service.AssignRole(context.Background(), "owner", "proj1", RoleOwner))

	metrics := observability.NewMetrics()
	guard := Middleware{Service: service, Logger: slog.Default(), Metrics: metrics}

	router := chi.NewRouter()
	router.Route("/domains/{domain}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(guard.Require(ResourceCampaign, ActionRead))
			r.Get("/campaigns", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		})
	})

	asUser := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/domains/proj1/campaigns", nil)
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: userID}))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, asUser("owner").Code)
	assert.Equal(t, http.StatusForbidden, asUser("stranger").Code)

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	if !strings.Contains(body, `authgate_decisions_total{decision="allow"} 1`) {
		t.Fatalf("expected guard allow to be counted, got: %s", body)
	}
	if !strings.Contains(body, `authgate_decisions_total{decision="deny"} 1`) {
		t.Fatalf("expected guard deny to be counted, got: %s", body)
	}
}
