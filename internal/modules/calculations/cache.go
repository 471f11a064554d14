// Package calculations provides a persistent cache for expensive optimization
// results such as covariance matrices, efficient frontiers, and full
// optimization runs.
package calculations

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/ballast/internal/database"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache categories.
const (
	CategoryCovariance   = "covariance"
	CategoryFrontier     = "frontier"
	CategoryOptimization = "optimization"
)

// TTLs per category. Covariance estimates only change when new price history
// arrives, so a day is a safe horizon. Full runs and frontiers depend on
// request parameters as well, so they expire sooner.
const (
	TTLCovariance   = 24 * time.Hour
	TTLFrontier     = 6 * time.Hour
	TTLOptimization = 6 * time.Hour
)

// Cache is a SQLite-backed calculation cache with per-entry TTLs.
// Values are stored as msgpack-encoded blobs.
type Cache struct {
	db  *database.DB
	log zerolog.Logger
}

// Stats summarizes cache contents.
type Stats struct {
	TotalEntries   int64            `json:"total_entries"`
	ExpiredEntries int64            `json:"expired_entries"`
	ByCategory     map[string]int64 `json:"by_category"`
}

// NewCache creates a cache backed by the given database, creating the cache
// table when missing.
func NewCache(db *database.DB, log zerolog.Logger) (*Cache, error) {
	if err := InitSchema(db.Conn()); err != nil {
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Cache{
		db:  db,
		log: log.With().Str("component", "calc_cache").Logger(),
	}, nil
}

// KeyForSymbols builds a deterministic cache key from a symbol list and
// optional extra discriminators (lookback, optimization type, and so on).
// Symbols are sorted first so the key is independent of input order.
func KeyForSymbols(symbols []string, extra ...string) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)

	keyData := strings.Join(sorted, ",")
	if len(extra) > 0 {
		keyData += "|" + strings.Join(extra, "|")
	}

	h := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(h[:16]) // First 16 bytes (32 hex chars) for efficiency
}

// Get looks up a cache entry and decodes it into out. Returns false when the
// entry is missing, expired, or cannot be decoded.
func (c *Cache) Get(category, key string, out interface{}) bool {
	var blob []byte
	err := c.db.QueryRow(
		`SELECT value FROM calculation_cache WHERE category = ? AND cache_key = ? AND expires_at > ?`,
		category, key, time.Now().Unix(),
	).Scan(&blob)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn().Err(err).Str("category", category).Msg("Cache lookup failed")
		}
		return false
	}

	if err := msgpack.Unmarshal(blob, out); err != nil {
		c.log.Warn().Err(err).Str("category", category).Msg("Failed to decode cached value, treating as miss")
		return false
	}

	return true
}

// Set stores a value under (category, key) with the given TTL.
func (c *Cache) Set(category, key string, value interface{}, ttl time.Duration) error {
	blob, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	now := time.Now()
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO calculation_cache (category, cache_key, value, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		category, key, blob, now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// Invalidate removes all entries in a category and returns the number removed.
func (c *Cache) Invalidate(category string) (int64, error) {
	result, err := c.db.Exec(`DELETE FROM calculation_cache WHERE category = ?`, category)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate category %s: %w", category, err)
	}

	removed, _ := result.RowsAffected()
	c.log.Info().Str("category", category).Int64("removed", removed).Msg("Invalidated cache category")
	return removed, nil
}

// InvalidateAll removes every cache entry and returns the number removed.
func (c *Cache) InvalidateAll() (int64, error) {
	result, err := c.db.Exec(`DELETE FROM calculation_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache: %w", err)
	}

	removed, _ := result.RowsAffected()
	c.log.Info().Int64("removed", removed).Msg("Invalidated entire cache")
	return removed, nil
}

// PruneExpired removes entries whose TTL has elapsed and returns the number
// removed. Run periodically by the scheduler.
func (c *Cache) PruneExpired() (int64, error) {
	result, err := c.db.Exec(`DELETE FROM calculation_cache WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired entries: %w", err)
	}

	removed, _ := result.RowsAffected()
	if removed > 0 {
		c.log.Info().Int64("removed", removed).Msg("Pruned expired cache entries")
	}
	return removed, nil
}

// GetStats returns entry counts overall, expired, and per category.
func (c *Cache) GetStats() (*Stats, error) {
	stats := &Stats{ByCategory: make(map[string]int64)}
	now := time.Now().Unix()

	if err := c.db.QueryRow(`SELECT COUNT(*) FROM calculation_cache`).Scan(&stats.TotalEntries); err != nil {
		return nil, fmt.Errorf("failed to count cache entries: %w", err)
	}

	if err := c.db.QueryRow(
		`SELECT COUNT(*) FROM calculation_cache WHERE expires_at <= ?`, now,
	).Scan(&stats.ExpiredEntries); err != nil {
		return nil, fmt.Errorf("failed to count expired entries: %w", err)
	}

	rows, err := c.db.Query(`SELECT category, COUNT(*) FROM calculation_cache GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries by category: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		stats.ByCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category counts: %w", err)
	}

	return stats, nil
}
