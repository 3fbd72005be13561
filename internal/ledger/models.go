package ledger

import (
	"time"

	"backend-tourguide/internal/circuit"
)

// VisitedTrace is append-only. A nil POIID marks a breadcrumb.
type VisitedTrace struct {
	ID        int64     `json:"id"`
	RouteID   string    `json:"route_id"`
	POIID     *string   `json:"poi_id,omitempty"`
	Lat       float64   `json:"latitude"`
	Lng       float64   `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
}

func (t VisitedTrace) IsBreadcrumb() bool {
	return t.POIID == nil || *t.POIID == ""
}

// RemovedTrace is append-only. Active=false retracts earlier removals of the
// same POI (the POI was re-added).
type RemovedTrace struct {
	ID        int64     `json:"id"`
	RouteID   string    `json:"route_id"`
	POIID     string    `json:"poi_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Route struct {
	ID            string         `json:"id"`
	CircuitID     string         `json:"circuit_id"`
	UserID        string         `json:"user_id"`
	IsCompleted   bool           `json:"is_completed"`
	PointsAwarded int            `json:"points_awarded"`
	CreatedAt     time.Time      `json:"created_at"`
	VisitedTraces []VisitedTrace `json:"visited_traces"`
	RemovedTraces []RemovedTrace `json:"removed_traces"`
	POIs          []circuit.POI  `json:"pois"`
	State         State          `json:"state"`
}

type StartRequest struct {
	CircuitID string  `json:"circuitId"`
	UserID    string  `json:"userId,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type TraceRequest struct {
	RouteID   string   `json:"routeId"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	POIs      []string `json:"pois,omitempty"`
	TimeZone  string   `json:"timeZone,omitempty"`
}

type POIRequest struct {
	RouteID string `json:"routeId"`
	POIID   string `json:"poiId"`
}

type TraceResult struct {
	Traces           []VisitedTrace `json:"traces"`
	IsRouteCompleted bool           `json:"isRouteCompleted"`
	PointsAwarded    int            `json:"pointsAwarded"`
}

type RemovalResult struct {
	Trace            RemovedTrace `json:"trace"`
	IsRouteCompleted bool         `json:"isRouteCompleted"`
	PointsAwarded    int          `json:"pointsAwarded"`
}
