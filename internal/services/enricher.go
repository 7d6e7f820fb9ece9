package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/platform/obs"
	"nearest-store-service/internal/ports"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultEnrichTimeout bounds every single reverse geocoding lookup.
const DefaultEnrichTimeout = 2 * time.Second

// Enricher attaches human-readable addresses to raw candidates.
//
// Lookups run concurrently, each under its own deadline. A failed or slow
// lookup degrades to domain.PlaceholderAddress instead of failing the batch,
// so the batch latency is bounded by ItemTimeout rather than the sum of lookups.
type Enricher struct {
	Geocoder    ports.ReverseGeocoder
	ItemTimeout time.Duration
	Log         *zap.Logger
}

func NewEnricher(geocoder ports.ReverseGeocoder, itemTimeout time.Duration, log *zap.Logger) *Enricher {
	if itemTimeout <= 0 {
		itemTimeout = DefaultEnrichTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Enricher{Geocoder: geocoder, ItemTimeout: itemTimeout, Log: log}
}

// Enrich resolves addresses for at most limit candidates. Output index i
// always corresponds to input index i regardless of completion order.
func (e *Enricher) Enrich(ctx context.Context, candidates []domain.RawCandidate, limit int) []domain.EnrichedCandidate {
	if limit >= 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]domain.EnrichedCandidate, len(candidates))
	if len(candidates) == 0 {
		return out
	}

	// Each slot is written by exactly one goroutine; Wait provides the fan-in barrier.
	var g errgroup.Group
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			addr, err := e.lookup(ctx, c.Position)
			if err != nil {
				obs.EnrichmentFailuresTotal.Inc()
				e.Log.Warn("enrichment item failed, using placeholder",
					zap.String("req_id", obs.RequestID(ctx)),
					zap.String("candidate", c.ExternalID),
					zap.Error(err),
				)
				addr = domain.PlaceholderAddress
			}
			out[i] = domain.EnrichedCandidate{RawCandidate: c, Address: addr}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

type lookupResult struct {
	address string
	err     error
}

// lookup performs one bounded reverse geocode. The deadline is enforced here
// as well as through ctx, so a geocoder that ignores cancellation cannot stall the batch.
func (e *Enricher) lookup(ctx context.Context, p domain.Position) (string, error) {
	if e.Geocoder == nil {
		return "", fmt.Errorf("%w: no geocoder configured", domain.ErrEnrichmentItemFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, e.ItemTimeout)
	defer cancel()

	ch := make(chan lookupResult, 1)
	go func() {
		addr, err := e.Geocoder.Reverse(ctx, p)
		ch <- lookupResult{address: addr, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrEnrichmentItemFailed, res.err)
		}
		if res.address == "" {
			return "", fmt.Errorf("%w: empty address", domain.ErrEnrichmentItemFailed)
		}
		return res.address, nil
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("lookup exceeded %s: %w", e.ItemTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrEnrichmentItemFailed, err)
	}
}

// ResolveAddress reverse-geocodes a single position under the item timeout,
// returning the placeholder on failure.
func (e *Enricher) ResolveAddress(ctx context.Context, p domain.Position) string {
	addr, err := e.lookup(ctx, p)
	if err != nil {
		e.Log.Info("reference address unavailable", zap.String("req_id", obs.RequestID(ctx)), zap.Error(err))
		return domain.PlaceholderAddress
	}
	return addr
}
