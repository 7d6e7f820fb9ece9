package ports

import "nearest-store-service/internal/domain"

// Marker placed on the map rendering surface.
type Marker struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Position domain.Position `json:"position"`
	Label    string          `json:"label,omitempty"`
	Title    string          `json:"title,omitempty"`
	Detail   string          `json:"detail,omitempty"`
}

const (
	MarkerKindUser  = "user"
	MarkerKindStore = "store"
)

// Capability interface of a map rendering surface. The engine never touches
// a concrete mapping library; it only issues these commands.
type MapSurface interface {
	AddMarker(m Marker) error
	// MoveMarker repositions an existing marker without recreating it.
	MoveMarker(id string, p domain.Position) error
	RemoveMarker(id string) error
	DrawLine(from, to domain.Position) error
	ClearLine() error
	FitBounds(a, b domain.Position) error
	// OnClick registers the callback invoked with the clicked map coordinate.
	OnClick(func(domain.Position))
	// OnMarkerClick registers the callback invoked with the clicked marker id.
	OnMarkerClick(func(id string))
}
