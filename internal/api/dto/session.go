package dto

import "time"

type PositionRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type SelectionRequest struct {
	StoreID string `json:"store_id"`
}

type PositionResponse struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type SessionResponse struct {
	ID              string           `json:"id"`
	State           string           `json:"state"`
	Generation      uint64           `json:"generation"`
	Position        PositionResponse `json:"position"`
	Degraded        bool             `json:"degraded"`
	Address         string           `json:"address,omitempty"`
	Source          string           `json:"source,omitempty"`
	SelectedStoreID string           `json:"selected_store_id,omitempty"`
	StoreCount      int              `json:"store_count"`
}

type DeliveryLocationResponse struct {
	Address   string    `json:"address"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	District  string    `json:"district"`
	Timestamp time.Time `json:"timestamp"`
}
