package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/ballast/internal/database"
	"github.com/aristath/ballast/internal/events"
	"github.com/aristath/ballast/internal/modules/calculations"
	"github.com/aristath/ballast/internal/modules/optimization"
)

// CacheMaintenanceJob prunes expired calculation cache entries and compacts
// the WAL file so the cache database does not grow unbounded.
type CacheMaintenanceJob struct {
	cache  *calculations.Cache
	db     *database.DB
	events *events.Manager
	log    zerolog.Logger
}

func NewCacheMaintenanceJob(cache *calculations.Cache, db *database.DB, eventManager *events.Manager, log zerolog.Logger) *CacheMaintenanceJob {
	return &CacheMaintenanceJob{
		cache:  cache,
		db:     db,
		events: eventManager,
		log:    log.With().Str("component", "cache_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *CacheMaintenanceJob) Name() string {
	return "cache_maintenance"
}

// Run prunes expired entries and truncates the WAL file.
func (j *CacheMaintenanceJob) Run() error {
	if j.cache == nil {
		return nil
	}

	pruned, err := j.cache.PruneExpired()
	if err != nil {
		return fmt.Errorf("prune expired cache entries: %w", err)
	}
	if pruned > 0 {
		j.events.EmitTyped("scheduler", &events.CacheInvalidatedData{
			Entries: pruned,
			Pruned:  true,
		})
	}

	if j.db != nil {
		if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
			return fmt.Errorf("checkpoint cache database: %w", err)
		}
	}

	j.log.Debug().Int64("pruned", pruned).Msg("Cache maintenance completed")
	return nil
}

// FrontierWarmupJob precomputes covariance matrices and efficient frontiers
// for watchlist files so interactive requests hit a warm cache. Each file in
// the watchlist directory holds a JSON array of assets with their return
// series; the file name is the watchlist name.
type FrontierWarmupJob struct {
	optimizer *optimization.Optimizer
	dir       string
	workers   int
	log       zerolog.Logger
}

func NewFrontierWarmupJob(optimizer *optimization.Optimizer, dir string, workers int, log zerolog.Logger) *FrontierWarmupJob {
	if workers <= 0 {
		workers = 2
	}
	return &FrontierWarmupJob{
		optimizer: optimizer,
		dir:       dir,
		workers:   workers,
		log:       log.With().Str("component", "frontier_warmup").Logger(),
	}
}

// Name returns the job name
func (j *FrontierWarmupJob) Name() string {
	return "frontier_warmup"
}

// Run warms the cache for every watchlist in the directory. Unreadable files
// are skipped with a warning; a missing directory is not an error.
func (j *FrontierWarmupJob) Run() error {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			j.log.Debug().Str("dir", j.dir).Msg("No watchlist directory, skipping warmup")
			return nil
		}
		return fmt.Errorf("read watchlist directory: %w", err)
	}

	var warmed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(j.workers)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		path := filepath.Join(j.dir, entry.Name())

		g.Go(func() error {
			assets, err := loadWatchlist(path)
			if err != nil {
				j.log.Warn().Err(err).Str("watchlist", name).Msg("Skipping unreadable watchlist")
				return nil
			}

			points, err := j.optimizer.GenerateEfficientFrontier(context.Background(), assets, nil, optimization.Options{})
			if err != nil {
				j.log.Warn().Err(err).Str("watchlist", name).Msg("Frontier warmup failed")
				return nil
			}

			warmed.Add(1)
			j.log.Debug().
				Str("watchlist", name).
				Int("assets", len(assets)).
				Int("points", len(points)).
				Msg("Watchlist warmed")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	j.log.Info().Int64("watchlists", warmed.Load()).Msg("Frontier warmup completed")
	return nil
}

func loadWatchlist(path string) ([]optimization.AssetData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist %s: %w", path, err)
	}

	var assets []optimization.AssetData
	if err := json.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("parse watchlist %s: %w", path, err)
	}
	return assets, nil
}
