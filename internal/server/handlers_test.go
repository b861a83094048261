package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/linkeLi0421/Epstein-Rag/internal/db"
	"github.com/linkeLi0421/Epstein-Rag/internal/models"
	"github.com/linkeLi0421/Epstein-Rag/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), "body: %s", raw)
	return v
}

func TestJobEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Routes())
	defer ts.Close()

	// Create
	resp, raw := doJSON(t, ts, http.MethodPost, "/api/indexing/jobs", map[string]any{
		"source_type": "filesystem",
		"source_url":  "/data/docs",
		"total_files": 4,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	job := decode[models.Job](t, raw)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)

	// Progress
	resp, raw = doJSON(t, ts, http.MethodPost, "/api/indexing/jobs/"+job.ID+"/progress", map[string]any{
		"processed_files": 2,
		"failed_files":    0,
		"current_file":    "b.pdf",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	job = decode[models.Job](t, raw)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Equal(t, 50, job.ProgressPercent)

	// Stale report is a conflict with a machine-readable reason.
	resp, raw = doJSON(t, ts, http.MethodPost, "/api/indexing/jobs/"+job.ID+"/progress", map[string]any{
		"processed_files": 1,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	rej := decode[errorBody](t, raw)
	assert.Equal(t, string(service.ReasonStaleReport), rej.Reason)

	// Premature completion
	resp, raw = doJSON(t, ts, http.MethodPost, "/api/indexing/jobs/"+job.ID+"/complete", struct{}{})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	rej = decode[errorBody](t, raw)
	assert.Equal(t, string(service.ReasonFilesRemaining), rej.Reason)

	// Finish and complete
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/indexing/jobs/"+job.ID+"/progress", map[string]any{
		"processed_files": 3,
		"failed_files":    1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = doJSON(t, ts, http.MethodPost, "/api/indexing/jobs/"+job.ID+"/complete", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job = decode[models.Job](t, raw)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.ProgressPercent)

	// Detail read
	resp, raw = doJSON(t, ts, http.MethodGet, "/api/dashboard/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[models.Job](t, raw)
	assert.Equal(t, job.ID, got.ID)
}

func TestCreateJobValidation(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Routes())
	defer ts.Close()

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/indexing/jobs", map[string]any{
		"total_files": 3,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/indexing/jobs", map[string]any{
		"source_type": "filesystem",
		"total_files": -2,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Routes())
	defer ts.Close()

	resp, raw := doJSON(t, ts, http.MethodPost, "/api/indexing/jobs", map[string]any{
		"source_type": "web",
		"total_files": 10,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	job := decode[models.Job](t, raw)

	resp, raw = doJSON(t, ts, http.MethodPost, "/api/dashboard/jobs/"+job.ID+"/cancel", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decode[models.Job](t, raw)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)

	// A second cancel hits the tombstone.
	resp, raw = doJSON(t, ts, http.MethodPost, "/api/dashboard/jobs/"+job.ID+"/cancel", struct{}{})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	rej := decode[errorBody](t, raw)
	assert.Equal(t, string(service.ReasonTerminal), rej.Reason)

	// So does the producer's next report.
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/indexing/jobs/"+job.ID+"/progress", map[string]any{
		"processed_files": 1,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestJobNotFound(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Routes())
	defer ts.Close()

	resp, _ := doJSON(t, ts, http.MethodGet, "/api/dashboard/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/dashboard/jobs/nope/cancel", struct{}{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListJobsEnvelope(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Routes())
	defer ts.Close()

	for i := 0; i < 3; i++ {
		resp, _ := doJSON(t, ts, http.MethodPost, "/api/indexing/jobs", map[string]any{
			"source_type": "filesystem",
			"total_files": i + 1,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, raw := doJSON(t, ts, http.MethodGet, "/api/dashboard/jobs?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[jobListResponse](t, raw)
	assert.Equal(t, 3, list.Total)
	assert.Len(t, list.Jobs, 2)

	resp, _ = doJSON(t, ts, http.MethodGet, "/api/dashboard/jobs?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw = doJSON(t, ts, http.MethodGet, "/api/dashboard/jobs?status=pending", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decode[jobListResponse](t, raw)
	assert.Equal(t, 3, list.Total)
}

func TestProgressEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Routes())
	defer ts.Close()

	resp, raw := doJSON(t, ts, http.MethodPost, "/api/indexing/jobs", map[string]any{
		"source_type": "filesystem",
		"total_files": 10,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	job := decode[models.Job](t, raw)

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/indexing/jobs/"+job.ID+"/progress", map[string]any{
		"processed_files": 4,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = doJSON(t, ts, http.MethodGet, "/api/dashboard/jobs/"+job.ID+"/progress", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	progress := decode[models.JobProgress](t, raw)
	assert.Equal(t, job.ID, progress.JobID)
	assert.Equal(t, models.JobStatusProcessing, progress.Status)
	assert.Equal(t, 40, progress.ProgressPercent)
	assert.NotNil(t, progress.EstimatedTimeRemaining)
}

func TestQueryEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Routes())
	defer ts.Close()

	resp, raw := doJSON(t, ts, http.MethodPost, "/api/dashboard/queries", map[string]any{
		"query_text":       "flight manifests",
		"response_time_ms": 450,
		"client_type":      "web",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	entry := decode[models.QueryLogEntry](t, raw)
	assert.NotEmpty(t, entry.ID)

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/dashboard/queries", map[string]any{
		"response_time_ms": 450,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw = doJSON(t, ts, http.MethodGet, "/api/dashboard/queries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[queryListResponse](t, raw)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Queries, 1)
	assert.Equal(t, "flight manifests", list.Queries[0].QueryText)

	resp, raw = doJSON(t, ts, http.MethodGet, "/api/dashboard/queries/"+entry.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[models.QueryLogEntry](t, raw)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "flight manifests", got.QueryText)

	resp, _ = doJSON(t, ts, http.MethodGet, "/api/dashboard/queries/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, raw = doJSON(t, ts, http.MethodGet, "/api/dashboard/queries/stats?hours=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[service.QueryStats](t, raw)
	assert.Equal(t, 1, stats.TotalQueries)

	resp, _ = doJSON(t, ts, http.MethodGet, "/api/dashboard/queries/stats?hours=zero", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Routes())
	defer ts.Close()

	resp, raw := doJSON(t, ts, http.MethodGet, "/api/dashboard/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[service.HealthSummary](t, raw)
	assert.Equal(t, service.StatusHealthy, summary.Status)
	assert.Len(t, summary.Components, 3)

	env.store.setPingErr(fmt.Errorf("db gone"))
	resp, raw = doJSON(t, ts, http.MethodGet, "/api/dashboard/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	summary = decode[service.HealthSummary](t, raw)
	assert.Equal(t, service.StatusUnhealthy, summary.Status)
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Routes())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/dashboard/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	// Unknown origins get no CORS grant.
	req.Header.Set("Origin", "http://evil.example")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestErrorStatusMapping(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"rejection", &service.RejectionError{Reason: service.ReasonTerminal, Message: "job done"}, http.StatusConflict},
		{"not found", fmt.Errorf("get job: %w", db.ErrNotFound), http.StatusNotFound},
		{"invalid input", fmt.Errorf("%w: bad counts", service.ErrInvalidInput), http.StatusBadRequest},
		{"transaction conflict", fmt.Errorf("update job: %w", db.ErrTransactionConflict), http.StatusServiceUnavailable},
		{"store unreachable", fmt.Errorf("list jobs: %w", db.ErrUnavailable), http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.srv.writeError(rec, tc.err)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
