package ports

import (
	"context"
	"nearest-store-service/internal/domain"
)

// Port: the curated set of known stores used when the directory is slow or empty.
// Catalog entries already carry their address.
type StoreCatalog interface {
	Stores(ctx context.Context) ([]domain.EnrichedCandidate, error)
}
