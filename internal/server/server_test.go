package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ballast/internal/config"
	"github.com/aristath/ballast/internal/database"
	"github.com/aristath/ballast/internal/events"
	"github.com/aristath/ballast/internal/modules/calculations"
	"github.com/aristath/ballast/internal/modules/optimization"
	"github.com/aristath/ballast/internal/modules/risk"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	log := zerolog.Nop()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache, err := calculations.NewCache(db, log)
	require.NoError(t, err)

	bus := events.NewBus(log)
	manager := events.NewManager(bus, log)

	defaults := optimization.DefaultOptions()
	optimizer := optimization.NewOptimizer(cache, manager, defaults, log)
	calculator := risk.NewMetricsCalculator(cache, manager, defaults, log)

	cfg := &config.Config{
		Port:               0,
		DatabasePath:       ":memory:",
		RiskFreeRate:       0.02,
		TradingDaysPerYear: 252,
		LookbackPeriod:     252,
		FrontierPoints:     10,
	}

	return New(Config{
		Log:          log,
		Config:       cfg,
		DB:           db,
		Cache:        cache,
		EventBus:     bus,
		EventManager: manager,
		Optimization: optimization.NewHandler(optimizer, log),
		Risk:         risk.NewHandler(calculator, log),
	})
}

func syntheticAssets(n, obs int) []map[string]interface{} {
	sectors := []string{"tech", "finance", "energy"}

	assets := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		returns := make([]float64, obs)
		for day := 0; day < obs; day++ {
			drift := 0.0003 + 0.0002*float64(i)
			wave := 0.008 * math.Sin(float64(day)*0.2+float64(i))
			returns[day] = drift + wave
		}
		assets = append(assets, map[string]interface{}{
			"symbol":  fmt.Sprintf("SYM%d", i),
			"sector":  sectors[i%len(sectors)],
			"returns": returns,
		})
	}
	return assets
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t)

	optimizeBody, err := json.Marshal(map[string]interface{}{
		"assets":            syntheticAssets(3, 120),
		"optimization_type": "MAX_SHARPE",
	})
	require.NoError(t, err)

	riskBody, err := json.Marshal(map[string]interface{}{
		"assets":  syntheticAssets(2, 120),
		"weights": map[string]float64{"SYM0": 0.5, "SYM1": 0.5},
	})
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		body       []byte
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", nil, http.StatusOK},
		{"system status", http.MethodGet, "/api/system/status", nil, http.StatusOK},
		{"optimize", http.MethodPost, "/api/optimize", optimizeBody, http.StatusOK},
		{"risk metrics", http.MethodPost, "/api/risk/metrics", riskBody, http.StatusOK},
		{"unknown route", http.MethodGet, "/api/unknown", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body == nil {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			} else {
				req = httptest.NewRequest(tt.method, tt.path, bytes.NewReader(tt.body))
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()

			s.router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ballast", body["service"])
}

func TestOptimizeThroughFullStack(t *testing.T) {
	s := newTestServer(t)

	body, err := json.Marshal(map[string]interface{}{
		"assets":            syntheticAssets(4, 252),
		"optimization_type": "MIN_VOLATILITY",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/optimize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	assert.NotEmpty(t, result["run_id"])

	weights, ok := result["weights"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, weights, 4)

	sum := 0.0
	for _, w := range weights {
		sum += w.(float64)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestCORSHeadersPresent(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
