package calculations

import "database/sql"

// CacheSchema defines the calculation cache table. Entries are keyed by
// (category, cache_key) and carry an absolute expiry timestamp.
const CacheSchema = `
CREATE TABLE IF NOT EXISTS calculation_cache (
    category TEXT NOT NULL,
    cache_key TEXT NOT NULL,
    value BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL,
    PRIMARY KEY (category, cache_key)
);

CREATE INDEX IF NOT EXISTS idx_calculation_cache_expires ON calculation_cache(expires_at);
`

// InitSchema ensures the calculation_cache table exists.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(CacheSchema)
	return err
}
