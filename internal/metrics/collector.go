// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot represents the full runtime statistics at a point in time.
type Snapshot struct {
	UptimeSeconds      float64            `json:"uptime_seconds"`
	ConnectedObservers int64              `json:"connected_observers"`
	JobTransition      *OperationSnapshot `json:"job_transition,omitempty"`
	QueryLog           *OperationSnapshot `json:"query_log,omitempty"`
	DBQuery            *OperationSnapshot `json:"db_query,omitempty"`
	WSSend             *OperationSnapshot `json:"ws_send,omitempty"`
}

// Operation names for the collector.
const (
	OpJobTransition = "job_transition"
	OpQueryLog      = "query_log"
	OpDBQuery       = "db_query"
	OpWSSend        = "ws_send"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	observers int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// ObserverConnected increments the connected-observer gauge.
func (c *Collector) ObserverConnected() {
	c.mu.Lock()
	c.observers++
	c.mu.Unlock()
}

// ObserverDisconnected decrements the connected-observer gauge.
func (c *Collector) ObserverDisconnected() {
	c.mu.Lock()
	if c.observers > 0 {
		c.observers--
	}
	c.mu.Unlock()
}

// Observers returns the current connected-observer count.
func (c *Collector) Observers() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.observers
}

// Uptime returns the time elapsed since the collector was created.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:      time.Since(c.startTime).Seconds(),
		ConnectedObservers: c.observers,
		JobTransition:      snapshotOp(c.ops[OpJobTransition]),
		QueryLog:           snapshotOp(c.ops[OpQueryLog]),
		DBQuery:            snapshotOp(c.ops[OpDBQuery]),
		WSSend:             snapshotOp(c.ops[OpWSSend]),
	}
}
