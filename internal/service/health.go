package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/linkeLi0421/Epstein-Rag/internal/bus"
	"github.com/linkeLi0421/Epstein-Rag/internal/metrics"
	"github.com/linkeLi0421/Epstein-Rag/internal/models"
)

// Component health statuses, worst wins during rollup.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ComponentHealth is one checked subsystem.
type ComponentHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// ResourceUsage is a point-in-time snapshot of process resources.
type ResourceUsage struct {
	HeapAllocBytes     uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes       uint64 `json:"heap_sys_bytes"`
	Goroutines         int    `json:"goroutines"`
	ConnectedObservers int64  `json:"connected_observers"`
}

// HealthSummary is the rolled-up health report served by the dashboard.
type HealthSummary struct {
	Status        string                `json:"status"`
	UptimeSeconds float64               `json:"uptime_seconds"`
	Components    []ComponentHealth     `json:"components"`
	Resources     ResourceUsage         `json:"resources"`
	SystemMetrics []models.SystemMetric `json:"system_metrics,omitempty"`
	CheckedAt     time.Time             `json:"checked_at"`
}

// HealthStore is the subset of the store the health checks touch.
type HealthStore interface {
	Ping(ctx context.Context) error
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
	LatestQueryTime(ctx context.Context) (*time.Time, error)
	RecordMetric(ctx context.Context, name string, value float64, labels map[string]any) error
	RecentMetrics(ctx context.Context, limit int) ([]models.SystemMetric, error)
}

// queryIdleThreshold marks the query pipeline degraded when no query has
// been logged for this long.
const queryIdleThreshold = 30 * time.Minute

// HealthService runs component checks and publishes health_changed events
// when the overall status flips.
type HealthService struct {
	store   HealthStore
	bus     *bus.Bus
	metrics *metrics.Collector
	logger  *slog.Logger

	mu         sync.Mutex
	lastStatus string
}

// NewHealthService creates a health service.
func NewHealthService(store HealthStore, eventBus *bus.Bus, mc *metrics.Collector, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{store: store, bus: eventBus, metrics: mc, logger: logger}
}

// Summary runs all component checks and rolls them up.
func (s *HealthService) Summary(ctx context.Context) *HealthSummary {
	components := []ComponentHealth{
		s.checkDatabase(ctx),
		s.checkIndexing(ctx),
		s.checkQueries(ctx),
	}

	overall := StatusHealthy
	for _, c := range components {
		switch c.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	summary := &HealthSummary{
		Status:     overall,
		Components: components,
		Resources: ResourceUsage{
			HeapAllocBytes: mem.HeapAlloc,
			HeapSysBytes:   mem.HeapSys,
			Goroutines:     runtime.NumGoroutine(),
		},
		CheckedAt: time.Now().UTC(),
	}
	if s.metrics != nil {
		summary.UptimeSeconds = s.metrics.Uptime().Seconds()
		summary.Resources.ConnectedObservers = s.metrics.Observers()
	}
	if recent, err := s.store.RecentMetrics(ctx, 20); err == nil {
		summary.SystemMetrics = recent
	} else {
		s.logger.Warn("reading recent system metrics failed", "error", err)
	}
	return summary
}

func (s *HealthService) checkDatabase(ctx context.Context) ComponentHealth {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.store.Ping(pingCtx); err != nil {
		return ComponentHealth{Name: "database", Status: StatusUnhealthy, Details: err.Error()}
	}
	return ComponentHealth{Name: "database", Status: StatusHealthy, Details: "connected"}
}

func (s *HealthService) checkIndexing(ctx context.Context) ComponentHealth {
	counts, err := s.store.CountJobsByStatus(ctx)
	if err != nil {
		return ComponentHealth{Name: "indexing_engine", Status: StatusDegraded, Details: err.Error()}
	}
	if processing := counts[models.JobStatusProcessing]; processing > 0 {
		return ComponentHealth{
			Name:    "indexing_engine",
			Status:  StatusHealthy,
			Details: fmt.Sprintf("%d jobs processing", processing),
		}
	}
	return ComponentHealth{Name: "indexing_engine", Status: StatusHealthy, Details: "idle"}
}

func (s *HealthService) checkQueries(ctx context.Context) ComponentHealth {
	latest, err := s.store.LatestQueryTime(ctx)
	if err != nil {
		return ComponentHealth{Name: "query_pipeline", Status: StatusDegraded, Details: err.Error()}
	}
	if latest == nil {
		return ComponentHealth{Name: "query_pipeline", Status: StatusHealthy, Details: "no queries logged yet"}
	}
	if age := time.Since(*latest); age > queryIdleThreshold {
		return ComponentHealth{
			Name:    "query_pipeline",
			Status:  StatusDegraded,
			Details: fmt.Sprintf("last query %s ago", age.Round(time.Second)),
		}
	}
	return ComponentHealth{Name: "query_pipeline", Status: StatusHealthy, Details: "active"}
}

// Run re-checks health on the given interval until ctx is cancelled,
// publishing a health_changed event whenever the overall status flips.
func (s *HealthService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.observe(ctx)
		}
	}
}

func (s *HealthService) observe(ctx context.Context) {
	summary := s.Summary(ctx)

	if err := s.store.RecordMetric(ctx, "goroutines", float64(summary.Resources.Goroutines), nil); err != nil {
		s.logger.Warn("recording system metric failed", "error", err)
	}
	if err := s.store.RecordMetric(ctx, "heap_alloc_bytes", float64(summary.Resources.HeapAllocBytes), nil); err != nil {
		s.logger.Warn("recording system metric failed", "error", err)
	}

	s.mu.Lock()
	changed := summary.Status != s.lastStatus
	s.lastStatus = summary.Status
	s.mu.Unlock()

	if !changed {
		return
	}
	s.logger.Info("health status changed", "status", summary.Status)
	if s.bus != nil {
		s.bus.Publish(models.Event{Kind: models.EventHealthChanged, Data: summary})
	}
}
