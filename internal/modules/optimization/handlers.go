package optimization

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/modules/calculations"
)

// Handler exposes the optimizer over HTTP.
type Handler struct {
	optimizer *Optimizer
	log       zerolog.Logger
}

func NewHandler(optimizer *Optimizer, log zerolog.Logger) *Handler {
	return &Handler{
		optimizer: optimizer,
		log:       log.With().Str("component", "optimization_handler").Logger(),
	}
}

// RegisterRoutes mounts the optimization endpoints on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/optimize", h.HandleOptimize)
	r.Post("/optimize/frontier", h.HandleFrontier)
	r.Get("/optimize/cache", h.HandleCacheStats)
	r.Delete("/optimize/cache", h.HandleCacheInvalidate)
}

// OptimizeRequest is the request body for optimization and frontier calls.
type OptimizeRequest struct {
	Assets      []AssetData              `json:"assets"`
	Constraints *OptimizationConstraints `json:"constraints,omitempty"`
	Options     Options                  `json:"options,omitempty"`
}

func (req *OptimizeRequest) validate() error {
	for i, asset := range req.Assets {
		if asset.Symbol == "" {
			return fmt.Errorf("asset at index %d is missing a symbol", i)
		}
	}
	return nil
}

// HandleOptimize runs a full optimization for the posted asset set.
// POST /api/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.optimizer.Optimize(r.Context(), req.Assets, req.Constraints, req.Options)
	if err != nil {
		h.log.Warn().Err(err).Int("assets", len(req.Assets)).Msg("optimization rejected")
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleFrontier traces the efficient frontier for the posted asset set.
// POST /api/optimize/frontier
func (h *Handler) HandleFrontier(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := h.optimizer.GenerateEfficientFrontier(r.Context(), req.Assets, req.Constraints, req.Options)
	if err != nil {
		h.log.Warn().Err(err).Int("assets", len(req.Assets)).Msg("frontier request rejected")
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"points": points,
		"count":  len(points),
	})
}

// HandleCacheStats reports calculation cache entry counts.
// GET /api/optimize/cache
func (h *Handler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.optimizer.CacheStats()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read cache stats")
		h.writeError(w, http.StatusInternalServerError, "Failed to read cache stats")
		return
	}
	if stats == nil {
		stats = &calculations.Stats{ByCategory: map[string]int64{}}
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// HandleCacheInvalidate clears all optimization-related caches. Callers use
// this after refreshing the underlying return series.
// DELETE /api/optimize/cache
func (h *Handler) HandleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	invalidated, err := h.optimizer.InvalidateCaches()
	if err != nil {
		h.log.Error().Err(err).Msg("cache invalidation failed")
		h.writeError(w, http.StatusInternalServerError, "Cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"invalidated": invalidated,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
