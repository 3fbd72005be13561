package navigation

import "backend-tourguide/internal/shared/geo"

type Snapshot struct {
	RouteID       string                `json:"routeId"`
	Ready         bool                  `json:"ready"`
	Completed     bool                  `json:"completed"`
	SignalLost    bool                  `json:"signalLost"`
	Live          *geo.Point            `json:"live"`
	Zones         ZoneUpdate            `json:"zones"`
	Trajectory    Trajectory            `json:"trajectory"`
	Before        *Path                 `json:"before"`
	Progress      Progress              `json:"progress"`
	Visits        map[string]VisitState `json:"visits"`
	Breadcrumbs   []geo.Point           `json:"breadcrumbs"`
	PointsAwarded int                   `json:"pointsAwarded"`
}

func (n *Navigator) Snapshot() Snapshot {
	crumbs := make([]geo.Point, len(n.breadcrumbs))
	copy(crumbs, n.breadcrumbs)
	return Snapshot{
		RouteID:       n.routeID,
		Ready:         n.ready,
		Completed:     n.completed,
		SignalLost:    n.signalLost,
		Live:          n.live,
		Zones:         ZoneUpdate{Previous: n.tracker.Previous(), Current: n.tracker.Current(), Speed: n.tracker.Speed()},
		Trajectory:    n.trajectory,
		Before:        n.before,
		Progress:      n.progress,
		Visits:        n.detector.States(),
		Breadcrumbs:   crumbs,
		PointsAwarded: n.pointsAwarded,
	}
}
