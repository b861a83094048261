// Package client provides a Go client for the RAG dashboard server: a REST
// surface for job producers and dashboard reads, and a reconnecting
// WebSocket stream for real-time events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/linkeLi0421/Epstein-Rag/internal/models"
	"github.com/linkeLi0421/Epstein-Rag/internal/service"
)

// Client talks to the dashboard REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new dashboard client.
// If baseURL is empty, uses RAG_DASHBOARD_URL env var or defaults to localhost:8001.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("RAG_DASHBOARD_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8001"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("RAG_DASHBOARD_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response from the server. Reason is set for
// lifecycle rejections.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("dashboard API: %s (%s)", e.Message, e.Reason)
	}
	return fmt.Sprintf("dashboard API: %d %s", e.StatusCode, e.Message)
}

// IsRejected reports whether err is a lifecycle rejection, meaning the
// server refused the transition rather than failing. Producers use this to
// detect cancellation mid-run.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		var eb struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			apiErr.Message = eb.Error
			apiErr.Reason = eb.Reason
		}
		return apiErr
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// CreateJobInput is the input for registering an indexing job.
type CreateJobInput struct {
	SourceType string         `json:"source_type"`
	SourceURL  string         `json:"source_url,omitempty"`
	TotalFiles int            `json:"total_files"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CreateJob registers a new indexing job.
func (c *Client) CreateJob(ctx context.Context, input CreateJobInput) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodPost, "/api/indexing/jobs", input, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ReportProgress sends a cumulative progress report for a running job.
// A rejection (see IsRejected) means the job was cancelled or left the
// running state; the producer should stop work.
func (c *Client) ReportProgress(ctx context.Context, id string, processed, failed int, currentFile *string) (*models.Job, error) {
	body := map[string]any{
		"processed_files": processed,
		"failed_files":    failed,
	}
	if currentFile != nil {
		body["current_file"] = *currentFile
	}

	var job models.Job
	if err := c.do(ctx, http.MethodPost, "/api/indexing/jobs/"+id+"/progress", body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// CompleteJob marks a job as successfully finished.
func (c *Client) CompleteJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodPost, "/api/indexing/jobs/"+id+"/complete", struct{}{}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// FailJob marks a job as failed with an error message.
func (c *Client) FailJob(ctx context.Context, id, errorMessage string) (*models.Job, error) {
	body := map[string]string{"error_message": errorMessage}
	var job models.Job
	if err := c.do(ctx, http.MethodPost, "/api/indexing/jobs/"+id+"/fail", body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// CancelJob requests cancellation of a job.
func (c *Client) CancelJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodPost, "/api/dashboard/jobs/"+id+"/cancel", struct{}{}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob retrieves a job by ID.
func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetProgress retrieves the derived progress view of a job, including the
// estimated time remaining.
func (c *Client) GetProgress(ctx context.Context, id string) (*models.JobProgress, error) {
	var progress models.JobProgress
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/jobs/"+id+"/progress", nil, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// ListJobsOptions configures job listing.
type ListJobsOptions struct {
	Status *models.JobStatus
	Limit  int
	Offset int
}

// JobList is one page of jobs plus the total matching count.
type JobList struct {
	Jobs  []models.Job `json:"jobs"`
	Total int          `json:"total"`
}

// ListJobs returns jobs with optional filtering, active jobs first.
func (c *Client) ListJobs(ctx context.Context, opts ListJobsOptions) (*JobList, error) {
	q := url.Values{}
	if opts.Status != nil {
		q.Set("status", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/dashboard/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list JobList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// QueryList is one page of query log entries plus the total matching count.
type QueryList struct {
	Queries []models.QueryLogEntry `json:"queries"`
	Total   int                    `json:"total"`
}

// RecentQueriesOptions configures query log listing.
type RecentQueriesOptions struct {
	Search     string
	ClientType string
	Since      *time.Time
	Limit      int
	Offset     int
}

// RecentQueries returns logged queries, newest first.
func (c *Client) RecentQueries(ctx context.Context, opts RecentQueriesOptions) (*QueryList, error) {
	q := url.Values{}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.ClientType != "" {
		q.Set("client_type", opts.ClientType)
	}
	if opts.Since != nil {
		q.Set("since", opts.Since.Format(time.RFC3339))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/dashboard/queries"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list QueryList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetQuery retrieves one logged query by ID.
func (c *Client) GetQuery(ctx context.Context, id string) (*models.QueryLogEntry, error) {
	var entry models.QueryLogEntry
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/queries/"+id, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// LogQuery records one completed retrieval query.
func (c *Client) LogQuery(ctx context.Context, input service.LogQueryInput) (*models.QueryLogEntry, error) {
	var entry models.QueryLogEntry
	if err := c.do(ctx, http.MethodPost, "/api/dashboard/queries", input, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// QueryStats returns query statistics over the last given number of hours.
func (c *Client) QueryStats(ctx context.Context, hours int) (*service.QueryStats, error) {
	path := "/api/dashboard/queries/stats"
	if hours > 0 {
		path += "?hours=" + strconv.Itoa(hours)
	}

	var stats service.QueryStats
	if err := c.do(ctx, http.MethodGet, path, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health returns the rolled-up system health summary. An unhealthy system
// answers 503, which is still decoded rather than treated as an error.
func (c *Client) Health(ctx context.Context) (*service.HealthSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/dashboard/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var summary service.HealthSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &summary, nil
}
