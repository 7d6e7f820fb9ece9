package ports

import (
	"context"
	"nearest-store-service/internal/domain"
)

// Contract for searching an external point-of-interest directory.
type StoreDirectory interface {
	// Return candidates named like nameFilter within radiusMeters of center.
	// An empty slice with a nil error means the directory answered but nothing matched.
	Search(ctx context.Context, center domain.Position, radiusMeters int, nameFilter string) ([]domain.RawCandidate, error)
}
