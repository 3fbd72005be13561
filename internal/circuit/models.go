package circuit

import (
	"time"

	"backend-tourguide/internal/shared/geo"
)

type Circuit struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPremium   bool      `json:"is_premium"`
	CreatedAt   time.Time `json:"created_at"`
}

// POI is static reference data. Order is nil for unordered circuits.
type POI struct {
	ID        string    `json:"id"`
	CircuitID string    `json:"circuit_id"`
	Label     string    `json:"label"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Order     *int      `json:"order,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (p POI) Location() geo.Point {
	return geo.NewPoint(p.Lat, p.Lng)
}
