package ports

import (
	"context"
	"nearest-store-service/internal/domain"
)

// Contract for converting a coordinate into a human-readable address.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, p domain.Position) (string, error)
}

// Persistent or shared cache of reverse geocoding results.
// Keys are expected to be normalized by the caller.
type AddressCache interface {
	// Return the cached address and whether it was found.
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key string, address string) error
}
