// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath string // calculations cache database
	LogLevel     string
	LogPretty    bool
	Port         int
	DevMode      bool

	// Engine defaults, overridable per request.
	RiskFreeRate         float64 // annual, as decimal (0.02 = 2%)
	TradingDaysPerYear   int
	LookbackPeriod       int // trailing observations for covariance estimation
	FrontierPoints       int
	FrontierWorkers      int // parallel target-return solves (0 = serial)
	L2Regularization     float64
	MaxIterations        int     // risk parity iteration cap
	ConvergenceThreshold float64 // risk parity stopping rule
	WatchlistDir         string  // JSON watchlists warmed by the frontier warmup job
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8090),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/calculations.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPretty:    getEnvAsBool("LOG_PRETTY", false),

		RiskFreeRate:         getEnvAsFloat("RISK_FREE_RATE", 0.02),
		TradingDaysPerYear:   getEnvAsInt("TRADING_DAYS_PER_YEAR", 252),
		LookbackPeriod:       getEnvAsInt("LOOKBACK_PERIOD", 252),
		FrontierPoints:       getEnvAsInt("FRONTIER_POINTS", 50),
		FrontierWorkers:      getEnvAsInt("FRONTIER_WORKERS", 4),
		L2Regularization:     getEnvAsFloat("L2_REGULARIZATION", 1e-5),
		MaxIterations:        getEnvAsInt("MAX_ITERATIONS", 100),
		ConvergenceThreshold: getEnvAsFloat("CONVERGENCE_THRESHOLD", 1e-6),
		WatchlistDir:         getEnv("WATCHLIST_DIR", "./data/watchlists"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.TradingDaysPerYear <= 0 {
		return fmt.Errorf("TRADING_DAYS_PER_YEAR must be positive")
	}
	if c.FrontierPoints < 2 {
		return fmt.Errorf("FRONTIER_POINTS must be at least 2")
	}
	if c.L2Regularization < 0 {
		return fmt.Errorf("L2_REGULARIZATION must be non-negative")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
