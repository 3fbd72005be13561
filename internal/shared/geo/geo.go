package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Point is a single position fix. Equality is positional only.
type Point struct {
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	TimestampMillis int64   `json:"timestamp_ms,omitempty"`
	AccuracyM       float64 `json:"accuracy_m,omitempty"`
}

func NewPoint(lat, lng float64) Point {
	return Point{Lat: lat, Lng: lng}
}

// Equal compares coordinates and ignores timestamp and accuracy.
func (p Point) Equal(o Point) bool {
	return p.Lat == o.Lat && p.Lng == o.Lng
}

func (p Point) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

func FromOrb(op orb.Point) Point {
	return Point{Lat: op.Lat(), Lng: op.Lon()}
}

func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return orbgeo.DistanceHaversine(orb.Point{lng1, lat1}, orb.Point{lng2, lat2}) / 1000
}

// DistanceMeters is the great-circle distance between two points.
func DistanceMeters(a, b Point) float64 {
	return orbgeo.DistanceHaversine(a.Orb(), b.Orb())
}

func PolylineLengthMeters(line []Point) float64 {
	total := 0.0
	for i := 1; i < len(line); i++ {
		total += DistanceMeters(line[i-1], line[i])
	}
	return total
}

// ProjectOntoSegment returns the closest point to p on segment a-b and the
// clamped parameter t. Zero-length segments return a with t=0.
func ProjectOntoSegment(p, a, b Point) (Point, float64) {
	dx := b.Lng - a.Lng
	dy := b.Lat - a.Lat
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return NewPoint(a.Lat, a.Lng), 0
	}

	t := ((p.Lng-a.Lng)*dx + (p.Lat-a.Lat)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return NewPoint(a.Lat+t*dy, a.Lng+t*dx), t
}

type Projection struct {
	Point        Point
	DistSq       float64
	SegmentIndex int
	T            float64
}

// ProjectOntoPolyline scans every segment and keeps the globally closest
// projection. A single-vertex line projects onto that vertex. ok is false for
// an empty line.
func ProjectOntoPolyline(p Point, line []Point) (Projection, bool) {
	switch len(line) {
	case 0:
		return Projection{}, false
	case 1:
		v := NewPoint(line[0].Lat, line[0].Lng)
		return Projection{Point: v, DistSq: planarDistSq(p, v)}, true
	}

	best := Projection{DistSq: math.Inf(1)}
	for i := 0; i+1 < len(line); i++ {
		proj, t := ProjectOntoSegment(p, line[i], line[i+1])
		d := planarDistSq(p, proj)
		if d < best.DistSq {
			best = Projection{Point: proj, DistSq: d, SegmentIndex: i, T: t}
		}
	}
	return best, true
}

// NearestNeighborOrder returns indexes into points in greedy visiting order
// starting from anchor. This is not an optimal tour.
func NearestNeighborOrder(anchor Point, points []Point) []int {
	visited := make([]bool, len(points))
	order := make([]int, 0, len(points))
	cursor := anchor

	for len(order) < len(points) {
		bestIdx := -1
		bestDist := math.Inf(1)
		for i, pt := range points {
			if visited[i] {
				continue
			}
			if d := planarDistSq(cursor, pt); d < bestDist {
				bestIdx = i
				bestDist = d
			}
		}
		if bestIdx < 0 {
			for i := range points {
				if !visited[i] {
					bestIdx = i
					break
				}
			}
		}
		visited[bestIdx] = true
		order = append(order, bestIdx)
		cursor = points[bestIdx]
	}
	return order
}

func planarDistSq(a, b Point) float64 {
	dx := a.Lng - b.Lng
	dy := a.Lat - b.Lat
	return dx*dx + dy*dy
}
