package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"nearest-store-service/internal/platform/obs"

	"go.uber.org/zap"
)

// SQLAddressCache is a SQL-backed cache mapping rounded coordinates to addresses.
type SQLAddressCache struct {
	DB  *sql.DB
	TTL time.Duration
	Log *zap.Logger
}

func NewSQLAddressCache(db *sql.DB, ttl time.Duration, log *zap.Logger) *SQLAddressCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLAddressCache{DB: db, TTL: ttl, Log: log}
}

// Fetch a cached address. Entries older than TTL are treated as missing.
func (s *SQLAddressCache) Get(ctx context.Context, key string) (_ string, _ bool, err error) {
	defer obs.Time(ctx, s.Log, "address.cache.Get")(&err)

	if s.DB == nil {
		return "", false, errors.New("address cache: db is nil")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, nil
	}

	q := `
	SELECT address, updated_at
	FROM address_cache
	WHERE coord_key = $1;
	`

	var (
		addr      string
		updatedAt time.Time
	)
	err = s.DB.QueryRowContext(ctx, q, key).Scan(&addr, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get address cache: query address_cache table: %w", err)
	}

	if s.TTL > 0 && time.Since(updatedAt) > s.TTL {
		return "", false, nil
	}
	return addr, true, nil
}

// Store a key -> address mapping in the cache.
func (s *SQLAddressCache) Put(ctx context.Context, key, address string) error {
	if s.DB == nil {
		return errors.New("address cache: db is nil")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("insert address cache: empty coordinate key")
	}

	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO address_cache (coord_key, address, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (coord_key) DO UPDATE
	SET address = EXCLUDED.address,
		updated_at = EXCLUDED.updated_at;
	`, key, address)
	if err != nil {
		return fmt.Errorf("insert address cache key=%q: %w", key, err)
	}

	return nil
}

// Prune deletes entries older than TTL and returns how many were removed.
func (s *SQLAddressCache) Prune(ctx context.Context) (_ int64, err error) {
	defer obs.Time(ctx, s.Log, "address.cache.Prune")(&err)

	if s.DB == nil {
		return 0, errors.New("address cache: db is nil")
	}
	if s.TTL <= 0 {
		return 0, nil
	}

	res, err := s.DB.ExecContext(ctx, `
	DELETE FROM address_cache
	WHERE updated_at < $1;
	`, time.Now().Add(-s.TTL))
	if err != nil {
		return 0, fmt.Errorf("prune address cache: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune address cache: rows affected: %w", err)
	}
	return n, nil
}
