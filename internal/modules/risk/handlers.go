package risk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/modules/optimization"
)

// Handler exposes the risk metrics calculator over HTTP.
type Handler struct {
	calculator *MetricsCalculator
	log        zerolog.Logger
}

func NewHandler(calculator *MetricsCalculator, log zerolog.Logger) *Handler {
	return &Handler{
		calculator: calculator,
		log:        log.With().Str("component", "risk_handler").Logger(),
	}
}

// RegisterRoutes mounts the risk endpoints on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/risk/metrics", h.HandleMetrics)
}

// MetricsRequest is the request body for a risk report.
type MetricsRequest struct {
	Assets  []optimization.AssetData `json:"assets"`
	Weights map[string]float64       `json:"weights"`
	Options optimization.Options     `json:"options,omitempty"`
}

func (req *MetricsRequest) validate() error {
	for i, asset := range req.Assets {
		if asset.Symbol == "" {
			return fmt.Errorf("asset at index %d is missing a symbol", i)
		}
	}
	if len(req.Assets) > 0 && len(req.Weights) == 0 {
		return fmt.Errorf("weights are required")
	}
	return nil
}

// HandleMetrics computes the risk report for the posted weighted portfolio.
// POST /api/risk/metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	var req MetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics := h.calculator.Compute(req.Assets, req.Weights, req.Options)
	h.writeJSON(w, http.StatusOK, metrics)
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
