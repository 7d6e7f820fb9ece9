package domain

// PlaceholderAddress is used whenever a human-readable address could not be resolved.
const PlaceholderAddress = "Lima, Perú"

const (
	defaultPhone = "No disponible"
	defaultHours = "24 horas"
)

// Represents a point of interest as returned by the store directory or the fallback catalog.
// Tags is a free-form key/value bag and must be treated as read-only once the candidate
// has been produced; candidates are shared across goroutines without locking.
type RawCandidate struct {
	ExternalID string
	Name       string
	Tags       map[string]string
	Position   Position
}

// Phone returns the contact phone advertised in the candidate tags.
func (c RawCandidate) Phone() string {
	if v := c.Tags["phone"]; v != "" {
		return v
	}
	if v := c.Tags["contact:phone"]; v != "" {
		return v
	}
	return defaultPhone
}

// Hours returns the opening hours advertised in the candidate tags.
func (c RawCandidate) Hours() string {
	if v := c.Tags["opening_hours"]; v != "" {
		return v
	}
	return defaultHours
}

// A RawCandidate augmented with a human-readable address.
type EnrichedCandidate struct {
	RawCandidate
	Address string
}

// An EnrichedCandidate annotated with its distance to the reference position
// and an estimated delivery time. This is the only store shape exposed outside the engine.
type RankedStore struct {
	EnrichedCandidate
	DistanceKm float64
	ETAMinutes int
}
