package overpass

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

const cacheMigration = `
CREATE TABLE IF NOT EXISTS poi_cache (
	amenity    TEXT NOT NULL,
	bbox       TEXT NOT NULL,
	pois       TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (amenity, bbox)
);
`

// Cache stores flattened Overpass responses in SQLite keyed by amenity and
// bounding box.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenCache opens (or creates) the cache database at dsn. Entries older than
// ttl are treated as misses.
func OpenCache(ctx context.Context, dsn string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "overpass cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "overpass cache: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, cacheMigration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "overpass cache: migrate")
	}
	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns the cached POIs for (amenity, box) if present and fresh.
func (c *Cache) Get(ctx context.Context, amenity string, box BBox) ([]POI, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT pois FROM poi_cache WHERE amenity = ? AND bbox = ? AND expires_at > ?`,
		amenity, box.String(), c.now().Unix(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "overpass cache: get")
	}
	var pois []POI
	if err := json.Unmarshal([]byte(raw), &pois); err != nil {
		return nil, false, eris.Wrap(err, "overpass cache: decode")
	}
	return pois, true, nil
}

// Put stores pois for (amenity, box), replacing any previous entry.
func (c *Cache) Put(ctx context.Context, amenity string, box BBox, pois []POI) error {
	raw, err := json.Marshal(pois)
	if err != nil {
		return eris.Wrap(err, "overpass cache: encode")
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO poi_cache (amenity, bbox, pois, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (amenity, bbox) DO UPDATE SET
			pois = excluded.pois,
			expires_at = excluded.expires_at`,
		amenity, box.String(), string(raw), c.now().Add(c.ttl).Unix(),
	)
	return eris.Wrap(err, "overpass cache: put")
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
