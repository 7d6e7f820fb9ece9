package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nearest-store-service/internal/adapters/catalog"
	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/platform/obs"

	"go.uber.org/zap"
)

// Postgres-backed implementation of the StoreCatalog port.
type SQLStoreCatalog struct {
	DB  *sql.DB
	Log *zap.Logger
}

func NewSQLStoreCatalog(db *sql.DB, log *zap.Logger) *SQLStoreCatalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLStoreCatalog{DB: db, Log: log}
}

// Return all curated stores ordered by id.
func (s *SQLStoreCatalog) Stores(ctx context.Context) (_ []domain.EnrichedCandidate, err error) {
	defer obs.Time(ctx, s.Log, "catalog.Stores")(&err)

	if s.DB == nil {
		return nil, errors.New("sql store catalog: DB is nil")
	}

	query := `
	SELECT
		store_id,
		name,
		address,
		lat,
		lon,
		phone,
		hours
	FROM stores
	ORDER BY store_id;
	`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stores: query stores table: %w", err)
	}
	defer rows.Close()

	stores := make([]domain.EnrichedCandidate, 0, 16)
	for rows.Next() {
		var seed catalog.StoreSeed
		if err := rows.Scan(&seed.ID, &seed.Name, &seed.Address, &seed.Lat, &seed.Lng, &seed.Phone, &seed.Hours); err != nil {
			return nil, fmt.Errorf("list stores: scan row: %w", err)
		}
		stores = append(stores, seed.Candidate())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stores: row iteration: %w", err)
	}

	return stores, nil
}
