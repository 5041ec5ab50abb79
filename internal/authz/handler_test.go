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
	_ "github.com/authgate/authgate/testing"
)

func newTestAPI(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	store := NewMemoryStore()
	service := NewService(store, DefaultHierarchy(), nil, slog.Default())
	handler := NewHandler(slog.Default(), service, observability.NewMetrics())

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := r.Header.Get("X-Authgate-User"); userID != "" {
				ctx := shared.ContextWithPrincipal(r.Context(), shared.Principal{UserID: userID})
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Route("/api/v1", handler.MountRoutes)
	return router, service
}

func doJSON(t *testing.T, api http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Authgate-User", user)
	}
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	return rec
}

func TestCheckEndpointReportsDecision(t *testing.T) {
	api, service := newTestAPI(t)
	require.NoError(t, service.AssignRole(context.Background(), "u1", "proj1", RoleAdmin))

	rec := doJSON(t, api, http.MethodPost, "/api/v1/check", "",
		`{"user_id":"u1","resource":"CAMPAIGN","action":"DELETE","domain":"proj1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allowed":true}`, rec.Body.String())

	rec = doJSON(t, api, http.MethodPost, "/api/v1/check", "",
		`{"user_id":"u1","resource":"POLICY","action":"MANAGE","domain":"proj1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allowed":false}`, rec.Body.String())
}

func TestCheckEndpointRejectsIncompleteBody(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/check", "",
		`{"user_id":"u1","resource":"CAMPAIGN"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, api, http.MethodPost, "/api/v1/check", "", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutesRequirePrincipal(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/domains/proj1/roles", "",
		`{"user_id":"u1","role":"OWNER"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFirstOwnerBootstrapOnEmptyDomain(t *testing.T) {
	api, service := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/domains/proj1/roles", "founder",
		`{"user_id":"founder","role":"OWNER"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	has, err := service.HasRole(context.Background(), "founder", "proj1", RoleOwner)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestBootstrapWithNonOwnerRoleReturnsConflict(t *testing.T) {
	api, service := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/domains/proj1/roles", "founder",
		`{"user_id":"founder","role":"MEMBER"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assignments, err := service.ListRoleAssignments(context.Background(), "proj1")
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func TestRoleMutationForbiddenForNonAdmin(t *testing.T) {
	api, service := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, service.AssignRole(ctx, "owner", "proj1", RoleOwner))
	require.NoError(t, service.AssignRole(ctx, "peon", "proj1", RoleMember))

	rec := doJSON(t, api, http.MethodPost, "/api/v1/domains/proj1/roles", "peon",
		`{"user_id":"peon","role":"ADMIN"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRevokeLastOwnerReturnsConflict(t *testing.T) {
	api, service := newTestAPI(t)
	require.NoError(t, service.AssignRole(context.Background(), "owner", "proj1", RoleOwner))

	rec := doJSON(t, api, http.MethodDelete, "/api/v1/domains/proj1/roles/owner/OWNER", "owner", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPolicyLifecycleOverAPI(t *testing.T) {
	api, service := newTestAPI(t)
	require.NoError(t, service.AssignRole(context.Background(), "owner", "proj1", RoleOwner))

	body := `{"subject":"u2","resource":"VOUCHER","action":"CREATE"}`
	rec := doJSON(t, api, http.MethodPost, "/api/v1/domains/proj1/policies", "owner", body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, api, http.MethodGet, "/api/v1/domains/proj1/policies?subject=u2", "owner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"subject":"u2"`)

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/domains/proj1/policies", "owner", body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/domains/proj1/policies", "owner", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicyManagementForbiddenForAdmin(t *testing.T) {
	api, service := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, service.AssignRole(ctx, "owner", "proj1", RoleOwner))
	require.NoError(t, service.AssignRole(ctx, "admin", "proj1", RoleAdmin))

	rec := doJSON(t, api, http.MethodPost, "/api/v1/domains/proj1/policies", "admin",
		`{"subject":"u2","resource":"VOUCHER","action":"CREATE"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReadRoutesVisibleToViewer(t *testing.T) {
	api, service := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, service.AssignRole(ctx, "owner", "proj1", RoleOwner))
	require.NoError(t, service.AssignRole(ctx, "watcher", "proj1", RoleViewer))

	rec := doJSON(t, api, http.MethodGet, "/api/v1/domains/proj1/roles", "watcher", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":"owner"`)

	rec = doJSON(t, api, http.MethodGet, "/api/v1/domains/proj1/users/owner/has-role?role=ADMIN", "watcher", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"granted":true}`, rec.Body.String())
}

func TestReadRoutesHiddenFromOutsiders(t *testing.T) {
	api, service := newTestAPI(t)
	require.NoError(t, service.AssignRole(context.Background(), "owner", "proj1", RoleOwner))

	rec := doJSON(t, api, http.MethodGet, "/api/v1/domains/proj1/roles", "stranger", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
