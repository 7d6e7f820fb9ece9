package ports

import (
	"context"
	"nearest-store-service/internal/domain"
)

// A single platform location read (device, browser or network based).
type PositionSource interface {
	Locate(ctx context.Context) (domain.Position, error)
}

// StaticSource is a PositionSource for an explicitly supplied coordinate.
type StaticSource domain.Position

func (s StaticSource) Locate(ctx context.Context) (domain.Position, error) {
	p := domain.Position(s)
	if !p.Valid() {
		return domain.Position{}, domain.ErrPositionUnavailable
	}
	return p, nil
}

// UnavailableSource always reports the position as unavailable.
type UnavailableSource struct{}

func (UnavailableSource) Locate(ctx context.Context) (domain.Position, error) {
	return domain.Position{}, domain.ErrPositionUnavailable
}
