package services

import (
	"fmt"
	"math/rand"
	"testing"

	"nearest-store-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var limaCenter = domain.Position{Lat: -12.0464, Lon: -77.0428}

func enriched(id string, lat, lon float64) domain.EnrichedCandidate {
	return domain.EnrichedCandidate{
		RawCandidate: domain.RawCandidate{
			ExternalID: id,
			Name:       "Tambo+ " + id,
			Position:   domain.Position{Lat: lat, Lon: lon},
		},
		Address: "addr " + id,
	}
}

func TestEstimateMinutes(t *testing.T) {
	assert.Equal(t, 40, EstimateMinutes(1.5, 3, 10))
	assert.Equal(t, 10, EstimateMinutes(0, 3, 10))
	// 0.01 km still costs a full minute.
	assert.Equal(t, 11, EstimateMinutes(0.01, 3, 10))
}

func TestRankFiltersSortsAndTruncates(t *testing.T) {
	ref := domain.Position{Lat: -12.0957, Lon: -77.0365} // San Isidro store
	candidates := []domain.EnrichedCandidate{
		enriched("far", -12.1680, -77.0120),    // Chorrillos, ~8 km
		enriched("lince", -12.0850, -77.0350),  // ~1.2 km
		enriched("same", -12.0957, -77.0365),   // 0 km
		enriched("borja", -12.0960, -77.0030),  // ~3.6 km, outside
		enriched("mira", -12.1212, -77.0300),   // ~2.9 km
	}

	ranked := Rank(ref, candidates, DefaultRankOptions())
	require.Len(t, ranked, 3)

	ids := []string{ranked[0].ExternalID, ranked[1].ExternalID, ranked[2].ExternalID}
	assert.Equal(t, []string{"same", "lince", "mira"}, ids)

	assert.Equal(t, 0.0, ranked[0].DistanceKm)
	assert.Equal(t, 10, ranked[0].ETAMinutes)
	for _, r := range ranked {
		assert.Equal(t, EstimateMinutes(r.DistanceKm, 3, 10), r.ETAMinutes)
		assert.Equal(t, "addr "+r.ExternalID, r.Address)
	}
}

func TestRankProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	opts := DefaultRankOptions()

	for round := 0; round < 50; round++ {
		n := rng.Intn(30)
		candidates := make([]domain.EnrichedCandidate, 0, n)
		for i := 0; i < n; i++ {
			lat := limaCenter.Lat + (rng.Float64()-0.5)*0.1
			lon := limaCenter.Lon + (rng.Float64()-0.5)*0.1
			candidates = append(candidates, enriched(fmt.Sprintf("c%d", i), lat, lon))
		}

		ranked := Rank(limaCenter, candidates, opts)
		assert.LessOrEqual(t, len(ranked), opts.TopN)
		for i, r := range ranked {
			assert.LessOrEqual(t, r.DistanceKm, opts.MaxRadiusKm)
			if i > 0 {
				assert.LessOrEqual(t, ranked[i-1].DistanceKm, r.DistanceKm)
			}
		}
	}
}

func TestRankEmptyInput(t *testing.T) {
	ranked := Rank(limaCenter, nil, DefaultRankOptions())
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
}

func TestNearestRaw(t *testing.T) {
	raws := []domain.RawCandidate{
		{ExternalID: "b", Position: domain.Position{Lat: -12.0500, Lon: -77.0428}},
		{ExternalID: "far", Position: domain.Position{Lat: -12.5000, Lon: -77.0428}},
		{ExternalID: "a", Position: domain.Position{Lat: -12.0470, Lon: -77.0428}},
	}

	got := NearestRaw(limaCenter, raws, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ExternalID)
	assert.Equal(t, "b", got[1].ExternalID)

	// Far candidates are kept when there is room: no radius filter before enrichment.
	all := NearestRaw(limaCenter, raws, 10)
	assert.Len(t, all, 3)
	assert.Equal(t, "far", all[2].ExternalID)
}
