package services

import (
	"math"
	"slices"
	"strings"

	"nearest-store-service/internal/domain"
)

// RankOptions controls the proximity filter and the delivery time estimate.
type RankOptions struct {
	MaxRadiusKm        float64
	TopN               int
	SpeedFactor        float64 // km/h
	FixedOffsetMinutes int
}

// DefaultRankOptions returns the production defaults: 3 km radius, top 5,
// 3 km/h courier speed factor and a fixed 10 minute preparation offset.
func DefaultRankOptions() RankOptions {
	return RankOptions{
		MaxRadiusKm:        3,
		TopN:               5,
		SpeedFactor:        3,
		FixedOffsetMinutes: 10,
	}
}

// EstimateMinutes converts a straight-line distance into a delivery ETA:
// ceil(distance / speed * 60) + offset.
func EstimateMinutes(distanceKm, speedFactor float64, fixedOffsetMinutes int) int {
	return int(math.Ceil(distanceKm/speedFactor*60)) + fixedOffsetMinutes
}

// Rank filters candidates to those within MaxRadiusKm of reference, orders
// them nearest first and keeps at most TopN, each annotated with its ETA.
//
// Ties on distance are broken by external id so the output is deterministic.
func Rank(reference domain.Position, candidates []domain.EnrichedCandidate, opts RankOptions) []domain.RankedStore {
	ranked := make([]domain.RankedStore, 0, len(candidates))
	for _, c := range candidates {
		d := domain.DistanceKm(reference, c.Position)
		if d > opts.MaxRadiusKm {
			continue
		}
		ranked = append(ranked, domain.RankedStore{
			EnrichedCandidate: c,
			DistanceKm:        d,
		})
	}

	slices.SortStableFunc(ranked, func(a, b domain.RankedStore) int {
		if a.DistanceKm < b.DistanceKm {
			return -1
		}
		if a.DistanceKm > b.DistanceKm {
			return 1
		}
		return strings.Compare(a.ExternalID, b.ExternalID)
	})

	if opts.TopN >= 0 && len(ranked) > opts.TopN {
		ranked = ranked[:opts.TopN]
	}

	for i := range ranked {
		ranked[i].ETAMinutes = EstimateMinutes(ranked[i].DistanceKm, opts.SpeedFactor, opts.FixedOffsetMinutes)
	}

	return ranked
}

// NearestRaw returns at most n raw candidates ordered by straight-line distance
// to reference. It is used to bound the number of enrichment lookups, so no
// radius filter is applied here.
func NearestRaw(reference domain.Position, candidates []domain.RawCandidate, n int) []domain.RawCandidate {
	type withDistance struct {
		c domain.RawCandidate
		d float64
	}

	tmp := make([]withDistance, 0, len(candidates))
	for _, c := range candidates {
		tmp = append(tmp, withDistance{c: c, d: domain.DistanceKm(reference, c.Position)})
	}

	slices.SortStableFunc(tmp, func(a, b withDistance) int {
		if a.d < b.d {
			return -1
		}
		if a.d > b.d {
			return 1
		}
		return strings.Compare(a.c.ExternalID, b.c.ExternalID)
	})

	if n >= 0 && len(tmp) > n {
		tmp = tmp[:n]
	}

	out := make([]domain.RawCandidate, 0, len(tmp))
	for _, w := range tmp {
		out = append(out, w.c)
	}
	return out
}
