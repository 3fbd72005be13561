package navigation

import (
	"backend-tourguide/internal/circuit"
	"backend-tourguide/internal/shared/geo"
)

// maxBeforeWaypoints caps the breadcrumb waypoints sent for the before path.
const maxBeforeWaypoints = 25

// RouteSplitter plans the before path (walked so far) and the after path
// (still to walk) whenever the anchor moves, a visit lands or the subject
// leaves the path.
type RouteSplitter struct {
	toleranceM float64
}

func NewRouteSplitter(skipToleranceM float64) RouteSplitter {
	return RouteSplitter{toleranceM: skipToleranceM}
}

// SkipBefore reports whether extending the displayed before path would be
// degenerate: the live position is still next to where it ends.
func (s RouteSplitter) SkipBefore(before *Path, live *geo.Point, liveRadiusM float64) bool {
	end, ok := before.End()
	if !ok || live == nil {
		return false
	}
	return geo.DistanceMeters(*live, end) <= liveRadiusM+s.toleranceM
}

// BeforeRequest routes through the breadcrumbs in chronological order.
func (s RouteSplitter) BeforeRequest(breadcrumbs []geo.Point) (RouteRequest, bool) {
	coords := downsample(dedupe(breadcrumbs), maxBeforeWaypoints)
	if len(coords) < 2 {
		return RouteRequest{}, false
	}
	return RouteRequest{Kind: PathBefore, Coords: coords}, true
}

// AfterRequest routes from the anchor through the remaining POIs. The live
// position is added as a waypoint when it has left the anchor's vicinity.
func (s RouteSplitter) AfterRequest(anchor geo.Point, live *geo.Point, liveRadiusM float64, remaining []circuit.POI, split bool) (RouteRequest, bool) {
	if len(remaining) == 0 {
		return RouteRequest{}, false
	}
	var via *geo.Point
	if live != nil && geo.DistanceMeters(anchor, *live) > liveRadiusM {
		via = live
	}
	kind := PathCombined
	if split {
		kind = PathAfter
	}
	return BuildRequest(kind, anchor, via, remaining), true
}

func dedupe(points []geo.Point) []geo.Point {
	out := make([]geo.Point, 0, len(points))
	for _, p := range points {
		if len(out) > 0 && out[len(out)-1].Equal(p) {
			continue
		}
		out = append(out, geo.NewPoint(p.Lat, p.Lng))
	}
	return out
}

// downsample keeps the first and last point and spreads the rest evenly.
func downsample(points []geo.Point, limit int) []geo.Point {
	if len(points) <= limit || limit < 2 {
		return points
	}
	out := make([]geo.Point, 0, limit)
	step := float64(len(points)-1) / float64(limit-1)
	for i := 0; i < limit; i++ {
		out = append(out, points[int(float64(i)*step+0.5)])
	}
	out[limit-1] = points[len(points)-1]
	return out
}
