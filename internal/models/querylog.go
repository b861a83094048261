package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// SourceInfo identifies one retrieved source that contributed to an answer.
type SourceInfo struct {
	Source     string  `json:"source"`
	Locator    string  `json:"locator,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// QueryLog is the persisted record of one completed retrieval query.
// Write-once: no lifecycle beyond creation.
type QueryLog struct {
	ID             surrealmodels.RecordID `json:"id"`
	QueryText      string                 `json:"query_text"`
	ResponseText   *string                `json:"response_text,omitempty"`
	Sources        []SourceInfo           `json:"sources,omitempty"`
	ResponseTimeMs int                    `json:"response_time_ms"`
	Timestamp      time.Time              `json:"timestamp"`
	ClientType     string                 `json:"client_type,omitempty"`
	SessionID      string                 `json:"session_id,omitempty"`
}

// QueryLogEntry is the wire snapshot of a logged query.
type QueryLogEntry struct {
	ID             string       `json:"id"`
	QueryText      string       `json:"query_text"`
	ResponseText   *string      `json:"response_text,omitempty"`
	Sources        []SourceInfo `json:"sources,omitempty"`
	ResponseTimeMs int          `json:"response_time_ms"`
	Timestamp      time.Time    `json:"timestamp"`
	ClientType     string       `json:"client_type,omitempty"`
	SessionID      string       `json:"session_id,omitempty"`
}

// Snapshot converts the persisted record into its wire form.
func (q *QueryLog) Snapshot() (QueryLogEntry, error) {
	id, err := RecordIDString(q.ID)
	if err != nil {
		return QueryLogEntry{}, err
	}
	return QueryLogEntry{
		ID:             id,
		QueryText:      q.QueryText,
		ResponseText:   q.ResponseText,
		Sources:        q.Sources,
		ResponseTimeMs: q.ResponseTimeMs,
		Timestamp:      q.Timestamp,
		ClientType:     q.ClientType,
		SessionID:      q.SessionID,
	}, nil
}

// QueryLogFilter narrows query-log listings.
type QueryLogFilter struct {
	Search     string
	ClientType string
	Since      *time.Time
	Limit      int
	Offset     int
}

// SystemMetric is one recorded resource measurement (CPU, memory, disk).
// Producers outside the core write these; the health summary reads them back.
type SystemMetric struct {
	MetricName  string         `json:"metric_name"`
	MetricValue float64        `json:"metric_value"`
	Labels      map[string]any `json:"labels,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
