package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/linkeLi0421/Epstein-Rag/internal/db"
	"github.com/linkeLi0421/Epstein-Rag/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// fakeStore is an in-memory store used by the service tests. It applies
// update patches the same way the database merge does.
type fakeStore struct {
	mu      sync.Mutex
	jobs    map[string]*models.IndexingJob
	order   []string
	logs    []models.QueryLog
	metrics []models.SystemMetric

	updateErr error
	insertErr error
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*models.IndexingJob)}
}

func (f *fakeStore) CreateJob(ctx context.Context, id, sourceType, sourceURL string, totalFiles int, metadata map[string]any) (*models.IndexingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job := &models.IndexingJob{
		ID:         surrealmodels.RecordID{Table: "indexing_job", ID: id},
		SourceType: sourceType,
		SourceURL:  sourceURL,
		Status:     models.JobStatusPending,
		TotalFiles: totalFiles,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	f.jobs[id] = job
	f.order = append(f.order, id)

	cp := *job
	return &cp, nil
}

func (f *fakeStore) GetJob(ctx context.Context, id string) (*models.IndexingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (f *fakeStore) UpdateJob(ctx context.Context, id string, patch map[string]any) (*models.IndexingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return nil, f.updateErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}

	for key, val := range patch {
		switch key {
		case "status":
			job.Status = models.JobStatus(val.(string))
		case "processed_files":
			job.ProcessedFiles = val.(int)
		case "failed_files":
			job.FailedFiles = val.(int)
		case "progress_percent":
			job.ProgressPercent = val.(int)
		case "current_file":
			if s, ok := val.(*string); ok && s != nil {
				cp := *s
				job.CurrentFile = &cp
			} else {
				job.CurrentFile = nil
			}
		case "started_at":
			t := val.(time.Time)
			job.StartedAt = &t
		case "completed_at":
			t := val.(time.Time)
			job.CompletedAt = &t
		case "error_message":
			if s, ok := val.(string); ok {
				job.ErrorMessage = &s
			} else {
				job.ErrorMessage = nil
			}
		}
	}

	cp := *job
	return &cp, nil
}

func (f *fakeStore) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.IndexingJob, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []models.IndexingJob
	for _, id := range f.order {
		job := f.jobs[id]
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		matched = append(matched, *job)
	}
	total := len(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (f *fakeStore) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := make(map[models.JobStatus]int)
	for _, job := range f.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (f *fakeStore) InsertQueryLog(ctx context.Context, id, queryText string, responseText *string, sources []models.SourceInfo, responseTimeMs int, clientType, sessionID string) (*models.QueryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return nil, f.insertErr
	}
	entry := models.QueryLog{
		ID:             surrealmodels.RecordID{Table: "query_log", ID: id},
		QueryText:      queryText,
		ResponseText:   responseText,
		Sources:        sources,
		ResponseTimeMs: responseTimeMs,
		Timestamp:      time.Now().UTC(),
		ClientType:     clientType,
		SessionID:      sessionID,
	}
	f.logs = append(f.logs, entry)

	cp := entry
	return &cp, nil
}

func (f *fakeStore) GetQueryLog(ctx context.Context, id string) (*models.QueryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.logs {
		if f.logs[i].ID.ID == id {
			cp := f.logs[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("query log %s: %w", id, db.ErrNotFound)
}

func (f *fakeStore) ListQueryLogs(ctx context.Context, filter models.QueryLogFilter) ([]models.QueryLog, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []models.QueryLog
	for i := len(f.logs) - 1; i >= 0; i-- { // newest first
		entry := f.logs[i]
		if filter.Search != "" && !strings.Contains(strings.ToLower(entry.QueryText), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.ClientType != "" && entry.ClientType != filter.ClientType {
			continue
		}
		if filter.Since != nil && entry.Timestamp.Before(*filter.Since) {
			continue
		}
		matched = append(matched, entry)
	}
	total := len(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (f *fakeStore) LatestQueryTime(ctx context.Context) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.logs) == 0 {
		return nil, nil
	}
	latest := f.logs[0].Timestamp
	for _, entry := range f.logs[1:] {
		if entry.Timestamp.After(latest) {
			latest = entry.Timestamp
		}
	}
	return &latest, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeStore) RecordMetric(ctx context.Context, name string, value float64, labels map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.metrics = append(f.metrics, models.SystemMetric{
		MetricName:  name,
		MetricValue: value,
		Labels:      labels,
		Timestamp:   time.Now().UTC(),
	})
	return nil
}

func (f *fakeStore) RecentMetrics(ctx context.Context, limit int) ([]models.SystemMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if limit <= 0 || limit > len(f.metrics) {
		limit = len(f.metrics)
	}
	out := make([]models.SystemMetric, limit)
	copy(out, f.metrics[len(f.metrics)-limit:])
	return out, nil
}

func (f *fakeStore) setUpdateErr(err error) {
	f.mu.Lock()
	f.updateErr = err
	f.mu.Unlock()
}

func (f *fakeStore) setPingErr(err error) {
	f.mu.Lock()
	f.pingErr = err
	f.mu.Unlock()
}
