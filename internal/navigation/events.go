package navigation

import (
	"time"

	"backend-tourguide/internal/shared/geo"
)

type EventType string

const (
	EventReady           EventType = "session_ready"
	EventZonesChanged    EventType = "zones_changed"
	EventPathChanged     EventType = "path_changed"
	EventProgressChanged EventType = "progress_changed"
	EventDwellProgress   EventType = "dwell_progress"
	EventDwellCancelled  EventType = "dwell_cancelled"
	EventVisited         EventType = "visited"
	EventVisitConfirmed  EventType = "visit_confirmed"
	EventVisitReverted   EventType = "visit_reverted"
	EventPOIRemoved      EventType = "poi_removed"
	EventRemovalReverted EventType = "removal_reverted"
	EventPOIRestored     EventType = "poi_restored"
	EventRestoreReverted EventType = "restore_reverted"
	EventRouteCompleted  EventType = "route_completed"
	EventSignalLost      EventType = "signal_lost"
	EventSignalRestored  EventType = "signal_restored"
)

type Event struct {
	Type    EventType `json:"type"`
	RouteID string    `json:"routeId"`
	At      time.Time `json:"at"`
	Data    any       `json:"data,omitempty"`
}

// Listener is called on the session loop. It must not block for long.
type Listener func(Event)

type DwellProgress struct {
	POIID        string  `json:"poiId"`
	ElapsedSec   float64 `json:"elapsedSec"`
	RemainingSec float64 `json:"remainingSec"`
}

type POIEvent struct {
	POIID         string `json:"poiId"`
	PointsAwarded int    `json:"pointsAwarded,omitempty"`
}

type PathsEvent struct {
	Trajectory Trajectory `json:"trajectory"`
	Before     *Path      `json:"before"`
	Failed     bool       `json:"failed,omitempty"`
}

type CompletedEvent struct {
	PointsAwarded int `json:"pointsAwarded"`
}

type SignalEvent struct {
	Reason    string     `json:"reason,omitempty"`
	LastKnown *geo.Point `json:"lastKnown,omitempty"`
}
