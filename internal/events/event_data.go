package events

import "time"

// EventData is the interface implemented by typed event payloads.
// It lets emitters publish without repeating the event type by hand.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// OptimizationStartedData contains data for OptimizationStarted events
type OptimizationStartedData struct {
	RunID            string `json:"run_id"`
	OptimizationType string `json:"optimization_type"`
	Assets           int    `json:"assets"`
}

// EventType returns the event type for OptimizationStartedData
func (d *OptimizationStartedData) EventType() EventType {
	return OptimizationStarted
}

// OptimizationCompletedData contains data for OptimizationCompleted events
type OptimizationCompletedData struct {
	RunID            string  `json:"run_id"`
	OptimizationType string  `json:"optimization_type"`
	Assets           int     `json:"assets"`
	ExpectedReturn   float64 `json:"expected_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	Converged        bool    `json:"converged"`
	FromCache        bool    `json:"from_cache"`
	DurationMs       int64   `json:"duration_ms"`
}

// EventType returns the event type for OptimizationCompletedData
func (d *OptimizationCompletedData) EventType() EventType {
	return OptimizationCompleted
}

// OptimizationFailedData contains data for OptimizationFailed events
type OptimizationFailedData struct {
	RunID            string `json:"run_id"`
	OptimizationType string `json:"optimization_type"`
	Error            string `json:"error"`
}

// EventType returns the event type for OptimizationFailedData
func (d *OptimizationFailedData) EventType() EventType {
	return OptimizationFailed
}

// FrontierComputedData contains data for FrontierComputed events
type FrontierComputedData struct {
	RunID      string `json:"run_id"`
	Assets     int    `json:"assets"`
	Points     int    `json:"points"`
	DurationMs int64  `json:"duration_ms"`
}

// EventType returns the event type for FrontierComputedData
func (d *FrontierComputedData) EventType() EventType {
	return FrontierComputed
}

// RiskMetricsComputedData contains data for RiskMetricsComputed events
type RiskMetricsComputedData struct {
	Assets       int `json:"assets"`
	Observations int `json:"observations"`
}

// EventType returns the event type for RiskMetricsComputedData
func (d *RiskMetricsComputedData) EventType() EventType {
	return RiskMetricsComputed
}

// CacheInvalidatedData contains data for CacheInvalidated and CachePruned events
type CacheInvalidatedData struct {
	Category string `json:"category,omitempty"`
	Entries  int64  `json:"entries"`
	Pruned   bool   `json:"pruned,omitempty"`
}

// EventType returns the event type for CacheInvalidatedData
func (d *CacheInvalidatedData) EventType() EventType {
	if d.Pruned {
		return CachePruned
	}
	return CacheInvalidated
}

// SystemStatusChangedData contains data for SystemStatusChanged events
type SystemStatusChangedData struct {
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for SystemStatusChangedData
func (d *SystemStatusChangedData) EventType() EventType {
	return SystemStatusChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// JobStatusData contains data for job lifecycle events
type JobStatusData struct {
	JobID       string    `json:"job_id"`
	JobType     string    `json:"job_type"`
	Status      string    `json:"status"` // "started", "progress", "completed", "failed"
	Description string    `json:"description"`
	Error       string    `json:"error,omitempty"`
	Duration    float64   `json:"duration,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventType returns the event type for JobStatusData
// Note: The actual event type is determined by the Status field
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "started":
		return JobStarted
	case "progress":
		return JobProgress
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobStarted
	}
}
