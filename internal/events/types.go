// Package events provides the in-process publish/subscribe bus used to
// broadcast optimization lifecycle events to subscribers such as the SSE
// stream handler.
package events

import "time"

// EventType identifies a class of system event.
type EventType string

// Event types emitted by the engine.
const (
	OptimizationStarted   EventType = "optimization_started"
	OptimizationCompleted EventType = "optimization_completed"
	OptimizationFailed    EventType = "optimization_failed"
	FrontierComputed      EventType = "frontier_computed"
	RiskMetricsComputed   EventType = "risk_metrics_computed"
	CacheInvalidated      EventType = "cache_invalidated"
	CachePruned           EventType = "cache_pruned"
	SystemStatusChanged   EventType = "system_status_changed"
	ErrorOccurred         EventType = "error_occurred"
	JobStarted            EventType = "job_started"
	JobProgress           EventType = "job_progress"
	JobCompleted          EventType = "job_completed"
	JobFailed             EventType = "job_failed"
)

// AllTypes returns every event type the unified stream subscribes to by default.
func AllTypes() []EventType {
	return []EventType{
		OptimizationStarted,
		OptimizationCompleted,
		OptimizationFailed,
		FrontierComputed,
		RiskMetricsComputed,
		CacheInvalidated,
		CachePruned,
		SystemStatusChanged,
		ErrorOccurred,
		JobStarted,
		JobProgress,
		JobCompleted,
		JobFailed,
	}
}

// Event is a single bus message.
type Event struct {
	Type      EventType   `json:"type"`
	Module    string      `json:"module"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}
