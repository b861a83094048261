package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/linkeLi0421/Epstein-Rag/internal/bus"
	"github.com/linkeLi0421/Epstein-Rag/internal/config"
	"github.com/linkeLi0421/Epstein-Rag/internal/db"
	"github.com/linkeLi0421/Epstein-Rag/internal/metrics"
	"github.com/linkeLi0421/Epstein-Rag/internal/models"
	"github.com/linkeLi0421/Epstein-Rag/internal/service"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// memStore backs the HTTP tests with an in-memory implementation of the
// store interfaces the services consume.
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]*models.IndexingJob
	order   []string
	logs    []models.QueryLog
	metrics []models.SystemMetric
	pingErr error
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*models.IndexingJob)}
}

func (s *memStore) CreateJob(ctx context.Context, id, sourceType, sourceURL string, totalFiles int, metadata map[string]any) (*models.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &models.IndexingJob{
		ID:         surrealmodels.RecordID{Table: "indexing_job", ID: id},
		SourceType: sourceType,
		SourceURL:  sourceURL,
		Status:     models.JobStatusPending,
		TotalFiles: totalFiles,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	s.jobs[id] = job
	s.order = append(s.order, id)
	cp := *job
	return &cp, nil
}

func (s *memStore) GetJob(ctx context.Context, id string) (*models.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) UpdateJob(ctx context.Context, id string, patch map[string]any) (*models.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
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
			if cf, ok := val.(*string); ok && cf != nil {
				cp := *cf
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
			if msg, ok := val.(string); ok {
				job.ErrorMessage = &msg
			} else {
				job.ErrorMessage = nil
			}
		}
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.IndexingJob, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.IndexingJob
	for _, id := range s.order {
		job := s.jobs[id]
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		matched = append(matched, *job)
	}
	total := len(matched)
	if filter.Offset > 0 && filter.Offset < len(matched) {
		matched = matched[filter.Offset:]
	} else if filter.Offset >= len(matched) && filter.Offset > 0 {
		matched = nil
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *memStore) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.JobStatus]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (s *memStore) InsertQueryLog(ctx context.Context, id, queryText string, responseText *string, sources []models.SourceInfo, responseTimeMs int, clientType, sessionID string) (*models.QueryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	s.logs = append(s.logs, entry)
	cp := entry
	return &cp, nil
}

func (s *memStore) GetQueryLog(ctx context.Context, id string) (*models.QueryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.logs {
		if s.logs[i].ID.ID == id {
			cp := s.logs[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("query log %s: %w", id, db.ErrNotFound)
}

func (s *memStore) ListQueryLogs(ctx context.Context, filter models.QueryLogFilter) ([]models.QueryLog, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.QueryLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		entry := s.logs[i]
		if filter.ClientType != "" && entry.ClientType != filter.ClientType {
			continue
		}
		if filter.Since != nil && entry.Timestamp.Before(*filter.Since) {
			continue
		}
		matched = append(matched, entry)
	}
	total := len(matched)
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *memStore) LatestQueryTime(ctx context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.logs) == 0 {
		return nil, nil
	}
	latest := s.logs[len(s.logs)-1].Timestamp
	return &latest, nil
}

func (s *memStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *memStore) RecordMetric(ctx context.Context, name string, value float64, labels map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, models.SystemMetric{MetricName: name, MetricValue: value, Labels: labels, Timestamp: time.Now().UTC()})
	return nil
}

func (s *memStore) RecentMetrics(ctx context.Context, limit int) ([]models.SystemMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.metrics) {
		limit = len(s.metrics)
	}
	out := make([]models.SystemMetric, limit)
	copy(out, s.metrics[len(s.metrics)-limit:])
	return out, nil
}

func (s *memStore) setPingErr(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

// testEnv bundles a wired server with its dependencies for HTTP tests.
type testEnv struct {
	srv     *Server
	store   *memStore
	bus     *bus.Bus
	metrics *metrics.Collector
	jobs    *service.JobManager
	queries *service.QueryLogService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	store := newMemStore()
	eventBus := bus.New(logger)
	collector := metrics.NewCollector()

	jobs := service.NewJobManager(store, eventBus, collector, logger)
	queries := service.NewQueryLogService(store, eventBus, collector, logger)
	health := service.NewHealthService(store, eventBus, collector, logger)

	cfg := config.Config{
		Port:                "0",
		CORSOrigins:         []string{"http://localhost:3000"},
		WSHeartbeatInterval: 100 * time.Millisecond,
		DefaultPageSize:     50,
		MaxPageSize:         200,
	}

	return &testEnv{
		srv:     New(cfg, jobs, queries, health, eventBus, collector, logger),
		store:   store,
		bus:     eventBus,
		metrics: collector,
		jobs:    jobs,
		queries: queries,
	}
}
