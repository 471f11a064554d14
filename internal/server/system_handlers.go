package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/ballast/internal/database"
	"github.com/aristath/ballast/internal/modules/calculations"
)

// SystemHandlers exposes process and engine health for monitoring clients.
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	cache       *calculations.Cache
	db          *database.DB
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(cache *calculations.Cache, db *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		cache:       cache,
		db:          db,
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string              `json:"status"` // "healthy" or "degraded"
	UptimeSeconds float64             `json:"uptime_seconds"`
	CPUPercent    float64             `json:"cpu_percent"`
	MemoryPercent float64             `json:"memory_percent"`
	MemoryUsedMB  float64             `json:"memory_used_mb"`
	Goroutines    int                 `json:"goroutines"`
	DatabaseOK    bool                `json:"database_ok"`
	Cache         *calculations.Stats `json:"cache,omitempty"`
}

// GetSystemStatusSnapshot returns a snapshot of the current system status.
// The snapshot is still usable when a collector fails; the first failure is
// returned alongside it.
func (h *SystemHandlers) GetSystemStatusSnapshot(ctx context.Context) (SystemStatusResponse, error) {
	var firstErr error

	cpuPercent, ramPercent, ramUsedMB := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		CPUPercent:    cpuPercent,
		MemoryPercent: ramPercent,
		MemoryUsedMB:  ramUsedMB,
		Goroutines:    runtime.NumGoroutine(),
		DatabaseOK:    true,
	}

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			h.log.Error().Err(err).Msg("Cache database health check failed")
			response.DatabaseOK = false
			response.Status = "degraded"
			firstErr = err
		}
	}

	if h.cache != nil {
		stats, err := h.cache.GetStats()
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to collect cache stats")
			if firstErr == nil {
				firstErr = err
			}
		} else {
			response.Cache = stats
		}
	}

	return response, firstErr
}

// HandleSystemStatus returns comprehensive system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	response, err := h.GetSystemStatusSnapshot(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("System status collected with warnings")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// getSystemStats calculates CPU and RAM usage.
// CPU is sampled over 100ms so the endpoint answers quickly.
func (h *SystemHandlers) getSystemStats() (float64, float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent, float64(memStat.Used) / 1024 / 1024
}
