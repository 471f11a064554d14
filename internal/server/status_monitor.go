package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/events"
)

// StatusMonitor periodically samples system health and emits an event when
// the overall status flips between healthy and degraded. The first sample
// always emits, announcing the startup state.
type StatusMonitor struct {
	eventManager   *events.Manager
	systemHandlers *SystemHandlers
	log            zerolog.Logger
	stop           chan struct{}
	stopOnce       sync.Once

	// Only touched by the monitor goroutine.
	lastStatus string
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(eventManager *events.Manager, systemHandlers *SystemHandlers, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		eventManager:   eventManager,
		systemHandlers: systemHandlers,
		log:            log.With().Str("component", "status_monitor").Logger(),
		stop:           make(chan struct{}),
	}
}

// Start begins periodic status monitoring
func (m *StatusMonitor) Start(interval time.Duration) {
	go m.monitor(interval)
}

// Stop halts the monitoring loop.
func (m *StatusMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// monitor runs the periodic monitoring loop
func (m *StatusMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.checkStatus()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.checkStatus()
		}
	}
}

// checkStatus samples the system snapshot and emits on status transitions.
func (m *StatusMonitor) checkStatus() {
	snapshot, err := m.systemHandlers.GetSystemStatusSnapshot(context.Background())
	if err != nil {
		m.log.Warn().Err(err).Msg("Status check collected with warnings")
	}

	if snapshot.Status == m.lastStatus {
		return
	}

	m.log.Info().
		Str("from", m.lastStatus).
		Str("to", snapshot.Status).
		Msg("System status changed")

	m.eventManager.EmitTyped("status_monitor", &events.SystemStatusChangedData{
		Status:    snapshot.Status,
		Timestamp: time.Now().Format(time.RFC3339),
	})

	m.lastStatus = snapshot.Status
}
