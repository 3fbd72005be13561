package navigation

import "backend-tourguide/internal/shared/geo"

type Progress struct {
	Traveled  []geo.Point `json:"traveled"`
	Projected *geo.Point  `json:"projected"`
	OffPathM  float64     `json:"offPathM"`
	Deviated  bool        `json:"deviated"`
}

// SegmentProjector splits the active path at the live position. It does no
// I/O and is cheap enough to run on every fix.
type SegmentProjector struct{}

// Project returns an empty Progress when there is no path to project on.
func (SegmentProjector) Project(path *Path, live geo.Point, radiusM float64) Progress {
	if path == nil {
		return Progress{}
	}
	proj, ok := geo.ProjectOntoPolyline(live, path.Geometry)
	if !ok {
		return Progress{}
	}

	traveled := make([]geo.Point, 0, proj.SegmentIndex+2)
	traveled = append(traveled, path.Geometry[:proj.SegmentIndex+1]...)
	if !proj.Point.Equal(traveled[len(traveled)-1]) {
		traveled = append(traveled, proj.Point)
	}

	projected := proj.Point
	off := geo.DistanceMeters(live, projected)
	return Progress{
		Traveled:  traveled,
		Projected: &projected,
		OffPathM:  off,
		Deviated:  off > radiusM,
	}
}
