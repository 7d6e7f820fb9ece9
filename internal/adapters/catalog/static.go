package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"nearest-store-service/internal/domain"
)

//go:embed stores.json
var embeddedStores []byte

// IDPrefix namespaces catalog ids so they never collide with directory ids.
const IDPrefix = "fallback/"

// StoreSeed is one curated store as shipped in stores.json.
type StoreSeed struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Phone   string  `json:"phone"`
	Hours   string  `json:"hours"`
}

// Candidate converts the seed into an already enriched candidate.
func (s StoreSeed) Candidate() domain.EnrichedCandidate {
	tags := map[string]string{"name": s.Name}
	if s.Phone != "" {
		tags["phone"] = s.Phone
	}
	if s.Hours != "" {
		tags["opening_hours"] = s.Hours
	}
	return domain.EnrichedCandidate{
		RawCandidate: domain.RawCandidate{
			ExternalID: IDPrefix + strconv.Itoa(s.ID),
			Name:       s.Name,
			Tags:       tags,
			Position:   domain.Position{Lat: s.Lat, Lon: s.Lng},
		},
		Address: s.Address,
	}
}

// EmbeddedSeeds returns the curated store list compiled into the binary.
func EmbeddedSeeds() ([]StoreSeed, error) {
	return ParseSeeds(embeddedStores)
}

// LoadSeeds reads seeds from path, or the embedded list when path is empty.
func LoadSeeds(path string) ([]StoreSeed, error) {
	if strings.TrimSpace(path) == "" {
		return EmbeddedSeeds()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load store seeds: read %q: %w", path, err)
	}
	return ParseSeeds(b)
}

// ParseSeeds decodes and validates a store seed document.
func ParseSeeds(b []byte) ([]StoreSeed, error) {
	var data []StoreSeed
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse store seeds: %w", err)
	}

	seen := make(map[int]struct{}, len(data))
	for i, s := range data {
		if s.ID <= 0 {
			return nil, fmt.Errorf("parse store seeds: invalid id at index %d: %d", i+1, s.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("parse store seeds: duplicate id %d", s.ID)
		}
		seen[s.ID] = struct{}{}

		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Address) == "" {
			return nil, fmt.Errorf("parse store seeds: store %d: name and address cannot be empty", s.ID)
		}
		if !(domain.Position{Lat: s.Lat, Lon: s.Lng}).Valid() {
			return nil, fmt.Errorf("parse store seeds: store %d: invalid coordinate %v,%v", s.ID, s.Lat, s.Lng)
		}
	}
	return data, nil
}

// Static serves a fixed in-memory catalog.
type Static struct {
	stores []domain.EnrichedCandidate
}

func NewStatic(seeds []StoreSeed) *Static {
	stores := make([]domain.EnrichedCandidate, 0, len(seeds))
	for _, s := range seeds {
		stores = append(stores, s.Candidate())
	}
	return &Static{stores: stores}
}

// NewEmbedded builds a Static catalog from the embedded store list.
func NewEmbedded() (*Static, error) {
	seeds, err := EmbeddedSeeds()
	if err != nil {
		return nil, err
	}
	return NewStatic(seeds), nil
}

func (s *Static) Stores(context.Context) ([]domain.EnrichedCandidate, error) {
	return slices.Clone(s.stores), nil
}
