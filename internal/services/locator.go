package services

import (
	"context"
	"errors"
	"fmt"

	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/platform/obs"
	"nearest-store-service/internal/ports"

	"go.uber.org/zap"
)

const (
	SourceDirectory = "directory"
	SourceFallback  = "fallback"
)

// LocateOptions configures one run of the store resolution pipeline.
type LocateOptions struct {
	RadiusMeters int
	NameFilter   string
	EnrichLimit  int
	Rank         RankOptions
}

func DefaultLocateOptions() LocateOptions {
	return LocateOptions{
		RadiusMeters: 1000,
		NameFilter:   "Tambo",
		EnrichLimit:  5,
		Rank:         DefaultRankOptions(),
	}
}

// LocateResult is the ranked outcome of one pipeline run.
type LocateResult struct {
	Stores []domain.RankedStore
	Source string
	// FallbackReason is domain.ErrDirectorySearchFailed or domain.ErrDirectorySearchEmpty
	// when Source is SourceFallback.
	FallbackReason error
}

// Empty reports the user-visible "no stores nearby" state.
func (r LocateResult) Empty() bool { return len(r.Stores) == 0 }

// Locator resolves the nearest stores for a reference position:
// directory search, or the fallback catalog when the search fails or comes back
// empty; then nearest pre-selection, address enrichment and final ranking.
type Locator struct {
	Directory ports.StoreDirectory
	Catalog   ports.StoreCatalog
	// Backup serves the fallback when Catalog itself fails (e.g. database down).
	Backup   ports.StoreCatalog
	Enricher *Enricher
	Options  LocateOptions
	Log      *zap.Logger
}

func NewLocator(
	directory ports.StoreDirectory,
	catalog ports.StoreCatalog,
	backup ports.StoreCatalog,
	enricher *Enricher,
	opts LocateOptions,
	log *zap.Logger,
) *Locator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Locator{
		Directory: directory,
		Catalog:   catalog,
		Backup:    backup,
		Enricher:  enricher,
		Options:   opts,
		Log:       log,
	}
}

// Locate never fails: every upstream problem degrades to the fallback catalog
// or to placeholder addresses.
func (l *Locator) Locate(ctx context.Context, reference domain.Position) LocateResult {
	defer obs.Time(ctx, l.Log, "locator.Locate")(nil)

	raws, searchErr := l.search(ctx, reference)
	if searchErr == nil && len(raws) == 0 {
		searchErr = domain.ErrDirectorySearchEmpty
	}

	if searchErr != nil {
		reason := domain.ErrDirectorySearchFailed
		if errors.Is(searchErr, domain.ErrDirectorySearchEmpty) {
			reason = domain.ErrDirectorySearchEmpty
		}
		obs.FallbackTotal.WithLabelValues(fallbackLabel(reason)).Inc()
		l.Log.Info("serving fallback catalog",
			zap.String("req_id", obs.RequestID(ctx)),
			zap.String("reason", reason.Error()),
			zap.NamedError("cause", searchErr),
		)

		ranked := Rank(reference, l.fallbackStores(ctx), l.Options.Rank)
		l.logEmpty(ctx, ranked)
		return LocateResult{Stores: ranked, Source: SourceFallback, FallbackReason: reason}
	}

	nearest := NearestRaw(reference, raws, l.Options.EnrichLimit)
	var enriched []domain.EnrichedCandidate
	if l.Enricher != nil {
		enriched = l.Enricher.Enrich(ctx, nearest, l.Options.EnrichLimit)
	} else {
		enriched = make([]domain.EnrichedCandidate, 0, len(nearest))
		for _, c := range nearest {
			enriched = append(enriched, domain.EnrichedCandidate{RawCandidate: c, Address: domain.PlaceholderAddress})
		}
	}

	ranked := Rank(reference, enriched, l.Options.Rank)
	l.logEmpty(ctx, ranked)
	return LocateResult{Stores: ranked, Source: SourceDirectory}
}

func (l *Locator) search(ctx context.Context, reference domain.Position) ([]domain.RawCandidate, error) {
	if l.Directory == nil {
		return nil, fmt.Errorf("%w: no directory configured", domain.ErrDirectorySearchFailed)
	}

	raws, err := l.Directory.Search(ctx, reference, l.Options.RadiusMeters, l.Options.NameFilter)
	if err != nil {
		if errors.Is(err, domain.ErrDirectorySearchFailed) || errors.Is(err, domain.ErrDirectorySearchEmpty) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrDirectorySearchFailed, err)
	}
	return raws, nil
}

func (l *Locator) fallbackStores(ctx context.Context) []domain.EnrichedCandidate {
	if l.Catalog != nil {
		stores, err := l.Catalog.Stores(ctx)
		if err == nil {
			return stores
		}
		l.Log.Warn("fallback catalog unavailable", zap.String("req_id", obs.RequestID(ctx)), zap.Error(err))
	}

	if l.Backup != nil {
		stores, err := l.Backup.Stores(ctx)
		if err == nil {
			return stores
		}
		l.Log.Error("backup catalog unavailable", zap.String("req_id", obs.RequestID(ctx)), zap.Error(err))
	}

	return nil
}

func (l *Locator) logEmpty(ctx context.Context, ranked []domain.RankedStore) {
	if len(ranked) > 0 {
		return
	}
	l.Log.Info("no stores to show",
		zap.String("req_id", obs.RequestID(ctx)),
		zap.String("state", domain.ErrNoCandidatesInRadius.Error()),
		zap.Float64("max_radius_km", l.Options.Rank.MaxRadiusKm),
	)
}

func fallbackLabel(reason error) string {
	if errors.Is(reason, domain.ErrDirectorySearchEmpty) {
		return "empty"
	}
	return "failed"
}
