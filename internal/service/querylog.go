package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/linkeLi0421/Epstein-Rag/internal/bus"
	"github.com/linkeLi0421/Epstein-Rag/internal/metrics"
	"github.com/linkeLi0421/Epstein-Rag/internal/models"
)

// QueryStore is the durable-store contract for query logs.
type QueryStore interface {
	InsertQueryLog(ctx context.Context, id, queryText string, responseText *string, sources []models.SourceInfo, responseTimeMs int, clientType, sessionID string) (*models.QueryLog, error)
	GetQueryLog(ctx context.Context, id string) (*models.QueryLog, error)
	ListQueryLogs(ctx context.Context, filter models.QueryLogFilter) ([]models.QueryLog, int, error)
	LatestQueryTime(ctx context.Context) (*time.Time, error)
}

// LogQueryInput describes one completed retrieval query.
type LogQueryInput struct {
	QueryText      string              `json:"query_text"`
	ResponseText   *string             `json:"response_text,omitempty"`
	Sources        []models.SourceInfo `json:"sources,omitempty"`
	ResponseTimeMs int                 `json:"response_time_ms"`
	ClientType     string              `json:"client_type,omitempty"`
	SessionID      string              `json:"session_id,omitempty"`
}

// ResponseTimeBucket is one bar of the response-time distribution.
type ResponseTimeBucket struct {
	Bucket     string  `json:"bucket"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// PopularQuery is one frequently repeated query text.
type PopularQuery struct {
	QueryText string `json:"query_text"`
	Count     int    `json:"count"`
}

// QueryStats summarizes recent query activity for the dashboard.
type QueryStats struct {
	TotalQueries             int                  `json:"total_queries"`
	AvgResponseTimeMs        *float64             `json:"avg_response_time_ms,omitempty"`
	PopularQueries           []PopularQuery       `json:"popular_queries"`
	ResponseTimeDistribution []ResponseTimeBucket `json:"response_time_distribution"`
}

// statsSampleLimit caps how many recent entries Stats pulls from the store.
const statsSampleLimit = 1000

// QueryLogService persists completed retrieval queries and publishes
// query_logged events. Entries are write-once.
type QueryLogService struct {
	store   QueryStore
	bus     *bus.Bus
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewQueryLogService creates a query log service.
func NewQueryLogService(store QueryStore, eventBus *bus.Bus, mc *metrics.Collector, logger *slog.Logger) *QueryLogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryLogService{store: store, bus: eventBus, metrics: mc, logger: logger}
}

// Log records one completed query: persist first, publish second.
func (s *QueryLogService) Log(ctx context.Context, input LogQueryInput) (*models.QueryLogEntry, error) {
	if input.QueryText == "" {
		return nil, fmt.Errorf("%w: query text is required", ErrInvalidInput)
	}
	if input.ResponseTimeMs < 0 {
		return nil, fmt.Errorf("%w: response_time_ms must be >= 0", ErrInvalidInput)
	}

	id := uuid.New().String()
	record, err := s.store.InsertQueryLog(ctx, id, input.QueryText, input.ResponseText,
		input.Sources, input.ResponseTimeMs, input.ClientType, input.SessionID)
	if err != nil {
		return nil, fmt.Errorf("log query: %w", err)
	}

	entry, err := record.Snapshot()
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordTiming(metrics.OpQueryLog, time.Duration(input.ResponseTimeMs)*time.Millisecond)
	}
	s.logger.Debug("query logged", "entry_id", id, "client_type", input.ClientType, "response_time_ms", input.ResponseTimeMs)

	if s.bus != nil {
		s.bus.Publish(models.Event{Kind: models.EventQueryLogged, Data: entry})
	}
	return &entry, nil
}

// Get returns one query log entry by ID.
func (s *QueryLogService) Get(ctx context.Context, id string) (*models.QueryLogEntry, error) {
	record, err := s.store.GetQueryLog(ctx, id)
	if err != nil {
		return nil, err
	}
	entry, err := record.Snapshot()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Recent returns one page of query log entries plus the total matching count.
func (s *QueryLogService) Recent(ctx context.Context, filter models.QueryLogFilter) ([]models.QueryLogEntry, int, error) {
	records, total, err := s.store.ListQueryLogs(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]models.QueryLogEntry, 0, len(records))
	for i := range records {
		entry, err := records[i].Snapshot()
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

// Stats computes summary statistics over queries newer than since.
func (s *QueryLogService) Stats(ctx context.Context, since time.Time) (*QueryStats, error) {
	entries, total, err := s.Recent(ctx, models.QueryLogFilter{
		Since: &since,
		Limit: statsSampleLimit,
	})
	if err != nil {
		return nil, err
	}

	stats := &QueryStats{TotalQueries: total}
	if len(entries) == 0 {
		stats.PopularQueries = []PopularQuery{}
		stats.ResponseTimeDistribution = distribution(nil)
		return stats, nil
	}

	sum := 0
	byText := make(map[string]int)
	for _, e := range entries {
		sum += e.ResponseTimeMs
		byText[e.QueryText]++
	}
	avg := float64(sum) / float64(len(entries))
	stats.AvgResponseTimeMs = &avg

	popular := make([]PopularQuery, 0, len(byText))
	for text, count := range byText {
		popular = append(popular, PopularQuery{QueryText: text, Count: count})
	}
	sort.Slice(popular, func(i, j int) bool {
		if popular[i].Count != popular[j].Count {
			return popular[i].Count > popular[j].Count
		}
		return popular[i].QueryText < popular[j].QueryText
	})
	if len(popular) > 10 {
		popular = popular[:10]
	}
	stats.PopularQueries = popular
	stats.ResponseTimeDistribution = distribution(entries)
	return stats, nil
}

// distribution buckets response times the way the dashboard charts them.
func distribution(entries []models.QueryLogEntry) []ResponseTimeBucket {
	bounds := []struct {
		label    string
		min, max int // max exclusive, -1 means unbounded
	}{
		{"<0.5s", 0, 500},
		{"0.5-1s", 500, 1000},
		{"1-2s", 1000, 2000},
		{"2-5s", 2000, 5000},
		{">5s", 5000, -1},
	}

	counts := make([]int, len(bounds))
	for _, e := range entries {
		for i, b := range bounds {
			if e.ResponseTimeMs >= b.min && (b.max < 0 || e.ResponseTimeMs < b.max) {
				counts[i]++
				break
			}
		}
	}

	denom := len(entries)
	if denom == 0 {
		denom = 1
	}
	out := make([]ResponseTimeBucket, len(bounds))
	for i, b := range bounds {
		out[i] = ResponseTimeBucket{
			Bucket:     b.label,
			Count:      counts[i],
			Percentage: float64(counts[i]) / float64(denom) * 100,
		}
	}
	return out
}
