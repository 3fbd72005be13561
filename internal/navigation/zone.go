package navigation

import (
	"fmt"
	"math"
	"time"

	"backend-tourguide/internal/shared/geo"
)

type ZoneKind string

const (
	ZoneAnchor ZoneKind = "anchor"
	ZoneLive   ZoneKind = "live"
)

// Zone is a circular geofence. Zones are values and are rebuilt on every
// update instead of being mutated.
type Zone struct {
	ID      string    `json:"id"`
	Center  geo.Point `json:"center"`
	RadiusM float64   `json:"radiusM"`
	Zoom    int       `json:"zoom"`
	Kind    ZoneKind  `json:"kind"`
	Label   string    `json:"label"`
}

type speedBand struct {
	below   float64
	radiusM float64
	zoom    int
	label   string
}

// speedBands maps mean speed in m/s to zone radius and map zoom.
var speedBands = []speedBand{
	{0.5, 10, 18, "stationary"},
	{2, 15, 17, "walking"},
	{4, 25, 16, "running"},
	{8, 50, 15, "cycling"},
	{math.Inf(1), 100, 14, "vehicle"},
}

const (
	speedWindow    = 5
	minElapsedStep = time.Millisecond
)

func bandFor(speed float64) speedBand {
	for _, b := range speedBands {
		if speed < b.below {
			return b
		}
	}
	return speedBands[len(speedBands)-1]
}

func RadiusForSpeed(speed float64) float64 { return bandFor(speed).radiusM }

func ZoomForSpeed(speed float64) int { return bandFor(speed).zoom }

type ZoneUpdate struct {
	Previous *Zone   `json:"previous"`
	Current  *Zone   `json:"current"`
	Speed    float64 `json:"speedMps"`
	Promoted bool    `json:"promoted"`
}

type ZoneTracker struct {
	epsilonM float64

	prev    *Zone
	current *Zone
	last    *geo.Point
	lastAt  time.Time
	speed   float64
	history []float64
	seq     int
}

func NewZoneTracker(promotionEpsilonM float64) *ZoneTracker {
	return &ZoneTracker{epsilonM: promotionEpsilonM}
}

// Update feeds one fix. The fix timestamp is used for speed when present,
// otherwise now.
func (z *ZoneTracker) Update(p geo.Point, now time.Time) ZoneUpdate {
	at := now
	if p.TimestampMillis > 0 {
		at = time.UnixMilli(p.TimestampMillis)
	}

	if z.last != nil {
		elapsed := at.Sub(z.lastAt)
		if elapsed < minElapsedStep {
			elapsed = minElapsedStep
		}
		z.pushSpeed(geo.DistanceMeters(*z.last, p) / elapsed.Seconds())
	}

	band := bandFor(z.speed)
	z.current = z.zone(ZoneLive, p, band)

	promoted := false
	if z.prev == nil || geo.DistanceMeters(z.current.Center, z.prev.Center) > z.prev.RadiusM+z.epsilonM {
		z.prev = z.zone(ZoneAnchor, p, band)
		promoted = true
	}

	last := p
	z.last = &last
	z.lastAt = at
	return z.snapshot(promoted)
}

// Decay drops the speed to zero and rebuilds both zones at the stationary band.
func (z *ZoneTracker) Decay() ZoneUpdate {
	z.speed = 0
	z.history = z.history[:0]
	band := bandFor(0)
	if z.prev != nil {
		z.prev = z.zone(ZoneAnchor, z.prev.Center, band)
	}
	if z.current != nil {
		z.current = z.zone(ZoneLive, z.current.Center, band)
	}
	return z.snapshot(false)
}

func (z *ZoneTracker) Previous() *Zone { return z.prev }

func (z *ZoneTracker) Current() *Zone { return z.current }

func (z *ZoneTracker) Speed() float64 { return z.speed }

func (z *ZoneTracker) pushSpeed(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	z.history = append(z.history, v)
	if len(z.history) > speedWindow {
		z.history = z.history[len(z.history)-speedWindow:]
	}
	sum := 0.0
	for _, s := range z.history {
		sum += s
	}
	z.speed = sum / float64(len(z.history))
}

func (z *ZoneTracker) zone(kind ZoneKind, center geo.Point, band speedBand) *Zone {
	z.seq++
	label := band.label
	if kind == ZoneAnchor {
		label = "anchor"
	}
	return &Zone{
		ID:      fmt.Sprintf("%s-%d", kind, z.seq),
		Center:  center,
		RadiusM: band.radiusM,
		Zoom:    band.zoom,
		Kind:    kind,
		Label:   label,
	}
}

func (z *ZoneTracker) snapshot(promoted bool) ZoneUpdate {
	return ZoneUpdate{Previous: z.prev, Current: z.current, Speed: z.speed, Promoted: promoted}
}
