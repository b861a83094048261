package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linkeLi0421/Epstein-Rag/internal/bus"
	"github.com/linkeLi0421/Epstein-Rag/internal/metrics"
	"github.com/linkeLi0421/Epstein-Rag/internal/models"
)

// JobStore is the narrow durable-store contract the lifecycle engine needs.
// Implementations must provide read-your-writes consistency and atomic
// per-record updates; the engine supplies per-job write serialization.
type JobStore interface {
	CreateJob(ctx context.Context, id, sourceType, sourceURL string, totalFiles int, metadata map[string]any) (*models.IndexingJob, error)
	GetJob(ctx context.Context, id string) (*models.IndexingJob, error)
	UpdateJob(ctx context.Context, id string, patch map[string]any) (*models.IndexingJob, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]models.IndexingJob, int, error)
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// JobManager owns the indexing-job state machine. It is the sole writer of
// job state: every accepted transition is persisted first and published as a
// job_updated snapshot second, so observers can never see an event for a
// mutation that was not durable.
type JobManager struct {
	store   JobStore
	bus     *bus.Bus
	metrics *metrics.Collector
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-job write serialization
}

// NewJobManager creates a job lifecycle engine.
func NewJobManager(store JobStore, eventBus *bus.Bus, mc *metrics.Collector, logger *slog.Logger) *JobManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobManager{
		store:   store,
		bus:     eventBus,
		metrics: mc,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockJob serializes mutations for one job ID. Different job IDs proceed
// independently.
func (m *JobManager) lockJob(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// releaseJob drops the per-job mutex once the job is terminal, keeping the
// lock map bounded by the number of live jobs. A caller still blocked on the
// stale mutex re-reads the job under it, sees the terminal status and
// rejects, so it never mutates concurrently with a fresh mutex holder.
func (m *JobManager) releaseJob(id string) {
	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()
}

// Create registers a new indexing job in the pending state and returns its
// snapshot. totalFiles may be 0 when source enumeration failed.
func (m *JobManager) Create(ctx context.Context, sourceType, sourceURL string, totalFiles int, metadata map[string]any) (*models.Job, error) {
	if sourceType == "" {
		return nil, fmt.Errorf("%w: source type is required", ErrInvalidInput)
	}
	if totalFiles < 0 {
		return nil, fmt.Errorf("%w: total_files must be >= 0", ErrInvalidInput)
	}

	id := uuid.New().String()
	record, err := m.store.CreateJob(ctx, id, sourceType, sourceURL, totalFiles, metadata)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	snap, err := record.Snapshot()
	if err != nil {
		return nil, err
	}

	m.logger.Info("job created", "job_id", id, "source_type", sourceType, "total_files", totalFiles)
	m.publish(snap)
	return &snap, nil
}

// ReportProgress applies a cumulative progress report from the work producer.
// The first accepted report moves the job from pending to processing. Reports
// carry cumulative counts, so a duplicate or out-of-order report is detected
// and rejected rather than double-counted. A report against a terminal job is
// rejected; that rejection is how producers observe cooperative cancellation.
func (m *JobManager) ReportProgress(ctx context.Context, id string, processed, failed int, currentFile *string) (*models.Job, error) {
	if processed < 0 || failed < 0 {
		return nil, fmt.Errorf("%w: cumulative counts must be >= 0", ErrInvalidInput)
	}

	unlock := m.lockJob(id)
	defer unlock()
	start := time.Now()

	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, reject(ReasonTerminal, "job %s is %s", id, job.Status)
	}
	if processed < job.ProcessedFiles || failed < job.FailedFiles {
		return nil, reject(ReasonStaleReport,
			"report (%d processed, %d failed) is behind stored (%d, %d)",
			processed, failed, job.ProcessedFiles, job.FailedFiles)
	}
	if job.TotalFiles > 0 && processed+failed > job.TotalFiles {
		return nil, reject(ReasonExceedsTotal,
			"%d files reported but job has %d", processed+failed, job.TotalFiles)
	}

	patch := map[string]any{
		"processed_files":  processed,
		"failed_files":     failed,
		"current_file":     currentFile,
		"progress_percent": Percent(job.Status, job.TotalFiles, processed, failed),
	}
	if job.Status == models.JobStatusPending {
		patch["status"] = string(models.JobStatusProcessing)
		patch["started_at"] = time.Now().UTC()
	}

	updated, err := m.store.UpdateJob(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("persist progress: %w", err)
	}

	snap, err := updated.Snapshot()
	if err != nil {
		return nil, err
	}

	m.recordTransition(start)
	m.publish(snap)
	return &snap, nil
}

// Complete records the producer's done signal. Valid only while processing
// and only once every file is accounted for.
func (m *JobManager) Complete(ctx context.Context, id string) (*models.Job, error) {
	unlock := m.lockJob(id)
	defer unlock()
	start := time.Now()

	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, reject(ReasonTerminal, "job %s is %s", id, job.Status)
	}
	if job.Status != models.JobStatusProcessing {
		return nil, reject(ReasonInvalidTransition, "cannot complete a %s job", job.Status)
	}
	if job.ProcessedFiles+job.FailedFiles != job.TotalFiles {
		return nil, reject(ReasonFilesRemaining,
			"not all files accounted for: %d of %d",
			job.ProcessedFiles+job.FailedFiles, job.TotalFiles)
	}

	updated, err := m.store.UpdateJob(ctx, id, map[string]any{
		"status":           string(models.JobStatusCompleted),
		"completed_at":     time.Now().UTC(),
		"current_file":     nil,
		"progress_percent": 100,
	})
	if err != nil {
		return nil, fmt.Errorf("persist completion: %w", err)
	}

	snap, err := updated.Snapshot()
	if err != nil {
		return nil, err
	}

	m.logger.Info("job completed", "job_id", id, "processed", snap.ProcessedFiles, "failed", snap.FailedFiles)
	m.releaseJob(id)
	m.recordTransition(start)
	m.publish(snap)
	return &snap, nil
}

// Fail records a fatal producer error. Accepted from pending as well as
// processing, since enumeration can fail before the first progress report.
func (m *JobManager) Fail(ctx context.Context, id string, errorMessage string) (*models.Job, error) {
	unlock := m.lockJob(id)
	defer unlock()
	start := time.Now()

	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, reject(ReasonTerminal, "job %s is %s", id, job.Status)
	}

	updated, err := m.store.UpdateJob(ctx, id, map[string]any{
		"status":           string(models.JobStatusFailed),
		"error_message":    errorMessage,
		"completed_at":     time.Now().UTC(),
		"current_file":     nil,
		"progress_percent": Percent(models.JobStatusFailed, job.TotalFiles, job.ProcessedFiles, job.FailedFiles),
	})
	if err != nil {
		return nil, fmt.Errorf("persist failure: %w", err)
	}

	snap, err := updated.Snapshot()
	if err != nil {
		return nil, err
	}

	m.logger.Error("job failed", "job_id", id, "error", errorMessage)
	m.releaseJob(id)
	m.recordTransition(start)
	m.publish(snap)
	return &snap, nil
}

// Cancel requests cooperative cancellation. The job is marked cancelled
// immediately; the producer notices on its next progress report and stops on
// its own. Racing a concurrent completion or failure, whichever transition
// persists first wins and the loser gets a rejection.
func (m *JobManager) Cancel(ctx context.Context, id string) (*models.Job, error) {
	unlock := m.lockJob(id)
	defer unlock()
	start := time.Now()

	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, reject(ReasonTerminal, "job %s is already %s", id, job.Status)
	}

	updated, err := m.store.UpdateJob(ctx, id, map[string]any{
		"status":           string(models.JobStatusCancelled),
		"error_message":    "cancelled by operator",
		"completed_at":     time.Now().UTC(),
		"current_file":     nil,
		"progress_percent": Percent(models.JobStatusCancelled, job.TotalFiles, job.ProcessedFiles, job.FailedFiles),
	})
	if err != nil {
		return nil, fmt.Errorf("persist cancellation: %w", err)
	}

	snap, err := updated.Snapshot()
	if err != nil {
		return nil, err
	}

	m.logger.Info("job cancelled", "job_id", id, "processed", snap.ProcessedFiles, "total", snap.TotalFiles)
	m.releaseJob(id)
	m.recordTransition(start)
	m.publish(snap)
	return &snap, nil
}

// Get returns the current snapshot of one job.
func (m *JobManager) Get(ctx context.Context, id string) (*models.Job, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := job.Snapshot()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// List returns one page of job snapshots plus the total matching count.
func (m *JobManager) List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error) {
	records, total, err := m.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	jobs := make([]models.Job, 0, len(records))
	for i := range records {
		snap, err := records[i].Snapshot()
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, snap)
	}
	return jobs, total, nil
}

// StatusCounts returns the per-status job counts.
func (m *JobManager) StatusCounts(ctx context.Context) (map[models.JobStatus]int, error) {
	return m.store.CountJobsByStatus(ctx)
}

func (m *JobManager) publish(snap models.Job) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(models.Event{Kind: models.EventJobUpdated, Data: snap})
}

func (m *JobManager) recordTransition(start time.Time) {
	if m.metrics != nil {
		m.metrics.RecordTiming(metrics.OpJobTransition, time.Since(start))
	}
}
