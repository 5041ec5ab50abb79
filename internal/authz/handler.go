package authz

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/platform/httpx"
)

// Handler exposes the decision and administration API over JSON. All admin
// routes are domain-scoped and guarded by the engine itself.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
	guard     Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   metrics,
		validator: validator.New(),
		guard:     Middleware{Service: service, Logger: logger, Metrics: metrics},
	}
}

// MountRoutes registers the API routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Route("/domains/{domain}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.guard.Require(ResourcePolicy, ActionRead))
			r.Get("/roles", h.listRoleAssignments)
			r.Get("/users/{userID}/roles", h.userRoles)
			r.Get("/users/{userID}/has-role", h.hasRole)
			r.Get("/policies", h.listPolicies)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireRole(RoleAdmin))
			r.Post("/roles", h.assignRole)
			r.Delete("/roles/{userID}/{role}", h.revokeRole)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.guard.Require(ResourcePolicy, ActionManage))
			r.Post("/policies", h.createPolicy)
			r.Delete("/policies", h.deletePolicy)
		})
	})
}

type checkRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
	Domain   string `json:"domain" validate:"required"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}
	allowed, err := h.service.Enforce(r.Context(), req.UserID, ResourceType(req.Resource), Action(req.Action), req.Domain)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.RecordDecision(allowed)
	httpx.JSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

type assignmentPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type assignRoleRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.service.AssignRole(r.Context(), req.UserID, chi.URLParam(r, "domain"), role); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.service.RevokeRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "domain"), role); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listRoleAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.service.ListRoleAssignments(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]assignmentPayload, len(assignments))
	for i, a := range assignments {
		out[i] = assignmentPayload{UserID: a.UserID, Role: string(a.Role)}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": out})
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.UserRoles(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "domain"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": names})
}

func (h *Handler) hasRole(w http.ResponseWriter, r *http.Request) {
	minRole, err := ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	has, err := h.service.HasRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "domain"), minRole)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"granted": has})
}

type policyRequest struct {
	Subject  string `json:"subject" validate:"required"`
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
}

type policyPayload struct {
	Subject  string `json:"subject"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

func (h *Handler) policyFromRequest(r *http.Request, req policyRequest) Policy {
	return Policy{
		Subject:  req.Subject,
		Resource: ResourceType(req.Resource),
		Action:   Action(req.Action),
		Domain:   chi.URLParam(r, "domain"),
	}
}

func (h *Handler) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.CreatePolicy(r.Context(), h.policyFromRequest(r, req)); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

// deletePolicy takes the four identifying fields as a structured body rather
// than an encoded path segment.
func (h *Handler) deletePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.DeletePolicy(r.Context(), h.policyFromRequest(r, req)); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := PolicyFilter{
		Subject:  query.Get("subject"),
		Resource: ResourceType(query.Get("resource")),
		Action:   Action(query.Get("action")),
	}
	policies, err := h.service.ListPolicies(r.Context(), chi.URLParam(r, "domain"), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]policyPayload, len(policies))
	for i, p := range policies {
		out[i] = policyPayload{Subject: p.Subject, Resource: string(p.Resource), Action: string(p.Action)}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"policies": out})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", "request body is not valid JSON")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvariantViolation):
		httpx.Problem(w, http.StatusConflict, "Invariant Violation", err.Error())
	case errors.Is(err, ErrUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "")
	default:
		h.logger.Error("unhandled api error", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
