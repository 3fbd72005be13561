package navigation

import "backend-tourguide/internal/shared/geo"

type PathKind string

const (
	PathCombined PathKind = "combined"
	PathBefore   PathKind = "before"
	PathAfter    PathKind = "after"
)

type Path struct {
	Kind        PathKind    `json:"kind"`
	Geometry    []geo.Point `json:"geometry"`
	DistanceM   float64     `json:"distanceM"`
	DurationSec float64     `json:"durationSec"`
	// POIOrder is the visiting order the path was requested with.
	POIOrder []string `json:"poiOrder,omitempty"`
}

func (p *Path) End() (geo.Point, bool) {
	if p == nil || len(p.Geometry) == 0 {
		return geo.Point{}, false
	}
	return p.Geometry[len(p.Geometry)-1], true
}

// Trajectory keeps the displayed path and the one it replaced.
type Trajectory struct {
	Active   *Path `json:"active"`
	Previous *Path `json:"previous"`
}

func (t *Trajectory) Replace(p *Path) {
	if t.Active != nil {
		t.Previous = t.Active
	}
	t.Active = p
}

func (t *Trajectory) Clear() {
	t.Active = nil
	t.Previous = nil
}
