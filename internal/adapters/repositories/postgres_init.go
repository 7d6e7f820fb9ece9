package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nearest-store-service/internal/adapters/catalog"
)

// Initialize the Postgres schema used by the store catalog and address cache.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createStoresQuery := `
	CREATE TABLE IF NOT EXISTS stores (
		store_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		hours TEXT NOT NULL DEFAULT ''
	);
	`

	createAddressCacheQuery := `
	CREATE TABLE IF NOT EXISTS address_cache (
		coord_key TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_address_cache_updated_at
	ON address_cache(updated_at);
	`

	statements := []string{
		createStoresQuery,
		createAddressCacheQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

// Populate the stores table from a seed file (embedded list when path is empty).
// Existing rows with the same id are replaced. Returns the number of seeded stores.
func SeedStores(ctx context.Context, db *sql.DB, path string) (int, error) {
	if db == nil {
		return 0, errors.New("seed stores: DB is nil")
	}

	seeds, err := catalog.LoadSeeds(path)
	if err != nil {
		return 0, fmt.Errorf("seed stores: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed stores: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO stores (store_id, name, address, lat, lon, phone, hours)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (store_id) DO UPDATE
	SET name = EXCLUDED.name,
		address = EXCLUDED.address,
		lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		phone = EXCLUDED.phone,
		hours = EXCLUDED.hours;
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("seed stores: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range seeds {
		if _, err := stmt.ExecContext(ctx, s.ID, s.Name, s.Address, s.Lat, s.Lng, s.Phone, s.Hours); err != nil {
			return 0, fmt.Errorf("seed stores: insert store_id=%d: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed stores: commit tx: %w", err)
	}

	return len(seeds), nil
}
