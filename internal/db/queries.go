package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linkeLi0421/Epstein-Rag/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// statusCount represents a job status with its count.
type statusCount struct {
	Status models.JobStatus `json:"status"`
	Count  int              `json:"count"`
}

// countResult wraps a bare count aggregation.
type countResult struct {
	Count int `json:"count"`
}

// CreateJob inserts a new indexing job record in the pending state.
func (c *Client) CreateJob(
	ctx context.Context,
	id string,
	sourceType, sourceURL string,
	totalFiles int,
	metadata map[string]any,
) (*models.IndexingJob, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}

	sql := `
		CREATE type::record("indexing_job", $id) CONTENT {
			source_type: $source_type,
			source_url: $source_url,
			status: 'pending',
			total_files: $total_files,
			processed_files: 0,
			failed_files: 0,
			progress_percent: 0,
			metadata: $metadata
		} RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, sql, map[string]any{
		"id":          id,
		"source_type": sourceType,
		"source_url":  sourceURL,
		"total_files": totalFiles,
		"metadata":    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create job: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetJob retrieves a job by ID. Returns ErrNotFound if it does not exist.
func (c *Client) GetJob(ctx context.Context, id string) (*models.IndexingJob, error) {
	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, `
		SELECT * FROM type::record("indexing_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get job %s: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// UpdateJob applies a field patch to a job in a single atomic UPDATE and
// returns the post-update record. The lifecycle engine serializes callers
// per job ID; this method only guarantees record-level atomicity.
func (c *Client) UpdateJob(ctx context.Context, id string, patch map[string]any) (*models.IndexingJob, error) {
	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, `
		UPDATE type::record("indexing_job", $id) MERGE $patch RETURN AFTER
	`, map[string]any{"id": id, "patch": patch})
	if err != nil {
		return nil, fmt.Errorf("update job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("update job %s: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListJobs returns one page of jobs plus the total matching count.
// Active (processing) jobs sort first, then most recently started.
func (c *Client) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.IndexingJob, int, error) {
	where := ""
	vars := map[string]any{
		"limit":  filter.Limit,
		"offset": filter.Offset,
	}
	if filter.Status != nil {
		where = "WHERE status = $status"
		vars["status"] = string(*filter.Status)
	}

	countSQL := fmt.Sprintf(`SELECT count() AS count FROM indexing_job %s GROUP ALL`, where)
	counts, err := surrealdb.Query[[]countResult](ctx, c.db, countSQL, vars)
	if err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", wrapQueryError(err))
	}
	total := 0
	if counts != nil && len(*counts) > 0 && len((*counts)[0].Result) > 0 {
		total = (*counts)[0].Result[0].Count
	}

	listSQL := fmt.Sprintf(`
		SELECT *, status = 'processing' AS active FROM indexing_job %s
		ORDER BY active DESC, started_at DESC, created_at DESC
		LIMIT $limit START $offset
	`, where)
	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, listSQL, vars)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.IndexingJob{}, total, nil
	}
	return (*results)[0].Result, total, nil
}

// CountJobsByStatus returns the per-status job counts for summary displays.
func (c *Client) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	results, err := surrealdb.Query[[]statusCount](ctx, c.db, `
		SELECT status, count() AS count FROM indexing_job GROUP BY status
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", wrapQueryError(err))
	}

	counts := make(map[models.JobStatus]int)
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			counts[row.Status] = row.Count
		}
	}
	return counts, nil
}

// InsertQueryLog persists a completed retrieval query. Write-once.
func (c *Client) InsertQueryLog(
	ctx context.Context,
	id string,
	queryText string,
	responseText *string,
	sources []models.SourceInfo,
	responseTimeMs int,
	clientType, sessionID string,
) (*models.QueryLog, error) {
	sql := `
		CREATE type::record("query_log", $id) CONTENT {
			query_text: $query_text,
			response_text: $response_text,
			sources: $sources,
			response_time_ms: $response_time_ms,
			timestamp: time::now(),
			client_type: $client_type,
			session_id: $session_id
		} RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.QueryLog](ctx, c.db, sql, map[string]any{
		"id":               id,
		"query_text":       queryText,
		"response_text":    responseText,
		"sources":          sources,
		"response_time_ms": responseTimeMs,
		"client_type":      clientType,
		"session_id":       sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("insert query log: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("insert query log: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetQueryLog retrieves a query log by ID. Returns ErrNotFound if it does
// not exist.
func (c *Client) GetQueryLog(ctx context.Context, id string) (*models.QueryLog, error) {
	results, err := surrealdb.Query[[]models.QueryLog](ctx, c.db, `
		SELECT * FROM type::record("query_log", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get query log: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get query log %s: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListQueryLogs returns one page of query logs plus the total matching count,
// most recent first.
func (c *Client) ListQueryLogs(ctx context.Context, filter models.QueryLogFilter) ([]models.QueryLog, int, error) {
	var clauses []string
	vars := map[string]any{
		"limit":  filter.Limit,
		"offset": filter.Offset,
	}
	if filter.Search != "" {
		clauses = append(clauses, "string::lowercase(query_text) CONTAINS $search")
		vars["search"] = strings.ToLower(filter.Search)
	}
	if filter.ClientType != "" {
		clauses = append(clauses, "client_type = $client_type")
		vars["client_type"] = filter.ClientType
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= $since")
		vars["since"] = *filter.Since
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	countSQL := fmt.Sprintf(`SELECT count() AS count FROM query_log %s GROUP ALL`, where)
	counts, err := surrealdb.Query[[]countResult](ctx, c.db, countSQL, vars)
	if err != nil {
		return nil, 0, fmt.Errorf("count query logs: %w", wrapQueryError(err))
	}
	total := 0
	if counts != nil && len(*counts) > 0 && len((*counts)[0].Result) > 0 {
		total = (*counts)[0].Result[0].Count
	}

	listSQL := fmt.Sprintf(`
		SELECT * FROM query_log %s
		ORDER BY timestamp DESC
		LIMIT $limit START $offset
	`, where)
	results, err := surrealdb.Query[[]models.QueryLog](ctx, c.db, listSQL, vars)
	if err != nil {
		return nil, 0, fmt.Errorf("list query logs: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.QueryLog{}, total, nil
	}
	return (*results)[0].Result, total, nil
}

// LatestQueryTime returns the timestamp of the most recent logged query,
// or nil when no queries have been logged yet.
func (c *Client) LatestQueryTime(ctx context.Context) (*time.Time, error) {
	type row struct {
		Timestamp time.Time `json:"timestamp"`
	}
	results, err := surrealdb.Query[[]row](ctx, c.db, `
		SELECT timestamp FROM query_log ORDER BY timestamp DESC LIMIT 1
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("latest query time: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	ts := (*results)[0].Result[0].Timestamp
	return &ts, nil
}

// RecordMetric stores one resource measurement.
func (c *Client) RecordMetric(ctx context.Context, name string, value float64, labels map[string]any) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE system_metric CONTENT {
			metric_name: $name,
			metric_value: $value,
			labels: $labels,
			timestamp: time::now()
		}
	`, map[string]any{"name": name, "value": value, "labels": labels})
	if err != nil {
		return fmt.Errorf("record metric: %w", wrapQueryError(err))
	}
	return nil
}

// RecentMetrics returns the most recent resource measurements, newest first.
func (c *Client) RecentMetrics(ctx context.Context, limit int) ([]models.SystemMetric, error) {
	results, err := surrealdb.Query[[]models.SystemMetric](ctx, c.db, `
		SELECT metric_name, metric_value, labels, timestamp FROM system_metric
		ORDER BY timestamp DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("recent metrics: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.SystemMetric{}, nil
	}
	return (*results)[0].Result, nil
}
