package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEnqueuer struct {
	payloads []IntegrityScanPayload
	err      error
}

func (s *stubEnqueuer) EnqueueIntegrityScan(_ context.Context, payload IntegrityScanPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.payloads = append(s.payloads, payload)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func newJobsAPI(enqueuer scanEnqueuer) http.Handler {
	h := &Handler{enqueuer: enqueuer, logger: slog.Default()}
	router := chi.NewRouter()
	router.Route("/jobs", h.MountRoutes)
	return router
}

func TestScanEndpointEnqueuesWithDefaults(t *testing.T) {
	stub := &stubEnqueuer{}
	api := newJobsAPI(stub)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/scan", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"task_id":"task-1"`)
	require.Len(t, stub.payloads, 1)
	assert.True(t, stub.payloads[0].SelfHeal, "self-healing defaults to on")
}

func TestScanEndpointHonorsPayloadOverride(t *testing.T) {
	stub := &stubEnqueuer{}
	api := newJobsAPI(stub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/scan", strings.NewReader(`{"self_heal":false}`))
	api.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, stub.payloads, 1)
	assert.False(t, stub.payloads[0].SelfHeal)
}

func TestScanEndpointRejectsMalformedBody(t *testing.T) {
	stub := &stubEnqueuer{}
	api := newJobsAPI(stub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/scan", strings.NewReader(`{broken`))
	api.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, stub.payloads)
}

func TestScanEndpointUnavailableWithoutClient(t *testing.T) {
	api := newJobsAPI(nil)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/scan", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScanEndpointSurfacesEnqueueFailure(t *testing.T) {
	stub := &stubEnqueuer{err: errors.New("redis down")}
	api := newJobsAPI(stub)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/scan", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthEndpointWithoutInspector(t *testing.T) {
	api := newJobsAPI(nil)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":0`)
}
