package weather

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"cropcore/pkg/sim"
)

// SQLiteCache fronts another provider with an on-disk cache, one JSON payload
// per day. Repeated runs over the same campaign then skip the upstream source
// entirely.
type SQLiteCache struct {
	upstream Provider
	db       *sql.DB
	path     string
}

// NewSQLiteCache opens (creating if needed) the cache at path.
func NewSQLiteCache(path string, upstream Provider) (*SQLiteCache, error) {
	if upstream == nil {
		return nil, fmt.Errorf("sqlite weather cache requires an upstream provider")
	}
	if path == "" {
		path = "weather.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS weather (
		day TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create weather table: %w", err)
	}
	return &SQLiteCache{upstream: upstream, db: db, path: path}, nil
}

// Drivers serves from the cache, falling through to the upstream provider and
// storing what it returns.
func (c *SQLiteCache) Drivers(day time.Time) (*sim.Drivers, error) {
	key := day.Format("2006-01-02")

	var payload []byte
	err := c.db.QueryRow(`SELECT payload FROM weather WHERE day = ?`, key).Scan(&payload)
	switch {
	case err == nil:
		var d sim.Drivers
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, fmt.Errorf("decode cached weather for %s: %w", key, err)
		}
		return &d, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to upstream
	default:
		return nil, fmt.Errorf("query weather cache: %w", err)
	}

	d, err := c.upstream.Drivers(day)
	if err != nil {
		return nil, err
	}
	payload, err = json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode weather for %s: %w", key, err)
	}
	if _, err := c.db.Exec(`INSERT OR REPLACE INTO weather(day, payload) VALUES(?, ?)`, key, payload); err != nil {
		return nil, fmt.Errorf("store weather for %s: %w", key, err)
	}
	return d, nil
}

// Close releases the database handle.
func (c *SQLiteCache) Close() error { return c.db.Close() }
