package mapsync

import (
	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/ports"
)

// State of the controller state machine.
type State int32

const (
	Initializing State = iota
	LocatingUser
	QueryingStores
	Ready
	Relocating
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case LocatingUser:
		return "locating_user"
	case QueryingStores:
		return "querying_stores"
	case Ready:
		return "ready"
	case Relocating:
		return "relocating"
	default:
		return "unknown"
	}
}

// Line is a straight route line between the reference position and a store.
type Line struct {
	From domain.Position
	To   domain.Position
}

// MapState is the visual state mirrored on the rendering surface.
// It is owned by the controller loop; nothing else reads or writes it.
type MapState struct {
	UserMarker *ports.Marker
	// StoreMarkers is keyed by candidate external id and always matches the
	// last applied ranked store list.
	StoreMarkers    map[string]ports.Marker
	RouteLine       *Line
	SelectedStoreID string
}

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	State           State
	Generation      uint64
	Reference       domain.Position
	Degraded        bool
	Address         string
	Stores          []domain.RankedStore
	SelectedStoreID string
	Source          string
	MarkerIDs       []string
	HasRoute        bool
}

const userMarkerID = "user"

func storeMarkerID(externalID string) string { return "store:" + externalID }

func storeIDFromMarker(markerID string) (string, bool) {
	const prefix = "store:"
	if len(markerID) <= len(prefix) || markerID[:len(prefix)] != prefix {
		return "", false
	}
	return markerID[len(prefix):], true
}

type nopSurface struct{}

func (nopSurface) AddMarker(ports.Marker) error                    { return nil }
func (nopSurface) MoveMarker(string, domain.Position) error        { return nil }
func (nopSurface) RemoveMarker(string) error                       { return nil }
func (nopSurface) DrawLine(domain.Position, domain.Position) error { return nil }
func (nopSurface) ClearLine() error                                { return nil }
func (nopSurface) FitBounds(domain.Position, domain.Position) error { return nil }
func (nopSurface) OnClick(func(domain.Position))                   {}
func (nopSurface) OnMarkerClick(func(string))                      {}
