package scheduler

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ballast/internal/database"
	"github.com/aristath/ballast/internal/modules/calculations"
	"github.com/aristath/ballast/internal/modules/optimization"
)

func testCache(t *testing.T) (*calculations.Cache, *database.DB) {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache, err := calculations.NewCache(db, zerolog.Nop())
	require.NoError(t, err)
	return cache, db
}

func testWatchlist(n int) []optimization.AssetData {
	series := func(drift, amp, freq, phase float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = drift + amp*math.Sin(freq*float64(i)+phase)
		}
		return out
	}
	return []optimization.AssetData{
		{Symbol: "AAA", Returns: series(0.0006, 0.010, 0.9, 0.0)},
		{Symbol: "BBB", Returns: series(0.0003, 0.007, 1.2, 1.8)},
	}
}

func TestCacheMaintenanceJobName(t *testing.T) {
	job := NewCacheMaintenanceJob(nil, nil, nil, zerolog.Nop())
	assert.Equal(t, "cache_maintenance", job.Name())
}

func TestCacheMaintenanceJobNilCache(t *testing.T) {
	job := NewCacheMaintenanceJob(nil, nil, nil, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestCacheMaintenanceJobPrunesExpired(t *testing.T) {
	cache, db := testCache(t)

	require.NoError(t, cache.Set(calculations.CategoryCovariance, "stale", []float64{1}, -time.Hour))
	require.NoError(t, cache.Set(calculations.CategoryCovariance, "fresh", []float64{2}, time.Hour))

	job := NewCacheMaintenanceJob(cache, db, nil, zerolog.Nop())
	require.NoError(t, job.Run())

	stats, err := cache.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)
	assert.Zero(t, stats.ExpiredEntries)
}

func TestFrontierWarmupJobName(t *testing.T) {
	job := NewFrontierWarmupJob(nil, "", 0, zerolog.Nop())
	assert.Equal(t, "frontier_warmup", job.Name())
}

func TestFrontierWarmupJobMissingDir(t *testing.T) {
	job := NewFrontierWarmupJob(nil, filepath.Join(t.TempDir(), "absent"), 2, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestFrontierWarmupJobWarmsCache(t *testing.T) {
	cache, _ := testCache(t)
	optimizer := optimization.NewOptimizer(cache, nil, optimization.DefaultOptions(), zerolog.Nop())

	dir := t.TempDir()
	payload, err := json.Marshal(testWatchlist(120))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "core.json"), payload, 0644))

	job := NewFrontierWarmupJob(optimizer, dir, 2, zerolog.Nop())
	require.NoError(t, job.Run())

	stats, err := cache.GetStats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.ByCategory[calculations.CategoryCovariance], int64(1))
	assert.GreaterOrEqual(t, stats.ByCategory[calculations.CategoryFrontier], int64(1))
}

func TestFrontierWarmupJobSkipsBadFiles(t *testing.T) {
	cache, _ := testCache(t)
	optimizer := optimization.NewOptimizer(cache, nil, optimization.DefaultOptions(), zerolog.Nop())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{nope"), 0644))
	payload, err := json.Marshal(testWatchlist(120))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "core.json"), payload, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	job := NewFrontierWarmupJob(optimizer, dir, 2, zerolog.Nop())
	require.NoError(t, job.Run())

	stats, err := cache.GetStats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.ByCategory[calculations.CategoryFrontier], int64(1))
}

func TestLoadWatchlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "list.json")
	payload, err := json.Marshal(testWatchlist(30))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload, 0644))

	assets, err := loadWatchlist(path)
	require.NoError(t, err)
	assert.Len(t, assets, 2)
	assert.Equal(t, "AAA", assets[0].Symbol)
	assert.Len(t, assets[0].Returns, 30)

	_, err = loadWatchlist(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
