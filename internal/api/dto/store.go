package dto

type StoreResponse struct {
	Rank       int     `json:"rank"`
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DistanceKm float64 `json:"distance_km"`
	ETAMinutes int     `json:"eta_minutes"`
	Phone      string  `json:"phone"`
	Hours      string  `json:"hours"`
}

type ListStoresResponse struct {
	Generation uint64          `json:"generation"`
	Source     string          `json:"source,omitempty"`
	Stores     []StoreResponse `json:"stores"`
}
