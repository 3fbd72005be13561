package navigation

import (
	"context"
	"errors"
	"log"
	"time"

	"backend-tourguide/internal/circuit"
	"backend-tourguide/internal/routing"
	"backend-tourguide/internal/shared/geo"
)

// Router is satisfied by *routing.Client.
type Router interface {
	Route(ctx context.Context, coords []geo.Point) (routing.Route, error)
}

type RequestClass string

const (
	ClassBefore RequestClass = "before"
	ClassAfter  RequestClass = "after"
)

type RouteRequest struct {
	Kind     PathKind
	Coords   []geo.Point
	POIOrder []string
}

// BuildRequest lays out [anchor, live?, ...pois in nearest-neighbor order].
// live is skipped when nil.
func BuildRequest(kind PathKind, anchor geo.Point, live *geo.Point, pois []circuit.POI) RouteRequest {
	locs := make([]geo.Point, len(pois))
	for i, p := range pois {
		locs[i] = p.Location()
	}
	order := geo.NearestNeighborOrder(anchor, locs)

	coords := make([]geo.Point, 0, len(pois)+2)
	coords = append(coords, geo.NewPoint(anchor.Lat, anchor.Lng))
	if live != nil {
		coords = append(coords, geo.NewPoint(live.Lat, live.Lng))
	}
	ids := make([]string, 0, len(order))
	for _, i := range order {
		coords = append(coords, locs[i])
		ids = append(ids, pois[i].ID)
	}
	return RouteRequest{Kind: kind, Coords: coords, POIOrder: ids}
}

// BuildFunc is called when the debounce fires. ok=false means there is
// nothing to route and the class's path should be cleared.
type BuildFunc func() (req RouteRequest, ok bool)

// ResultFunc receives the new path. path is nil when routing failed (err is
// set) or when the build had nothing to route (err is nil).
type ResultFunc func(path *Path, err error)

type classState struct {
	timer    Timer
	inFlight bool
	pending  bool
	seq      uint64
	accepted uint64
	build    BuildFunc
	onResult ResultFunc
}

// RouteOrderingEngine issues routing requests with at most one in flight
// per class. Triggers while a request is outstanding are coalesced into a
// single follow-up request.
type RouteOrderingEngine struct {
	router   Router
	sched    Scheduler
	debounce time.Duration

	classes map[RequestClass]*classState
	nextSeq uint64
}

func NewRouteOrderingEngine(router Router, sched Scheduler, debounce time.Duration) *RouteOrderingEngine {
	return &RouteOrderingEngine{
		router:   router,
		sched:    sched,
		debounce: debounce,
		classes:  map[RequestClass]*classState{},
	}
}

func (e *RouteOrderingEngine) class(c RequestClass) *classState {
	cs, ok := e.classes[c]
	if !ok {
		cs = &classState{}
		e.classes[c] = cs
	}
	return cs
}

// Trigger asks for a recompute. The latest build and onResult win.
func (e *RouteOrderingEngine) Trigger(c RequestClass, build BuildFunc, onResult ResultFunc) {
	cs := e.class(c)
	cs.build = build
	cs.onResult = onResult

	switch {
	case cs.inFlight:
		cs.pending = true
	case cs.timer == nil:
		e.arm(c, cs)
	}
}

func (e *RouteOrderingEngine) arm(c RequestClass, cs *classState) {
	cs.timer = e.sched.AfterFunc(e.debounce, func() {
		cs.timer = nil
		e.dispatch(c, cs)
	})
}

func (e *RouteOrderingEngine) dispatch(c RequestClass, cs *classState) {
	if cs.inFlight {
		cs.pending = true
		return
	}
	req, ok := cs.build()
	if !ok {
		e.nextSeq++
		cs.seq = e.nextSeq
		cs.accepted = cs.seq
		cs.onResult(nil, nil)
		return
	}

	e.nextSeq++
	seq := e.nextSeq
	cs.seq = seq
	cs.inFlight = true

	router := e.router
	e.sched.Go(func(ctx context.Context) func() {
		route, err := router.Route(ctx, req.Coords)
		return func() { e.settle(c, cs, seq, req, route, err) }
	})
}

func (e *RouteOrderingEngine) settle(c RequestClass, cs *classState, seq uint64, req RouteRequest, route routing.Route, err error) {
	if seq != cs.seq {
		return
	}
	cs.inFlight = false
	if seq <= cs.accepted {
		return
	}
	cs.accepted = seq

	if err != nil {
		if !errors.Is(err, routing.ErrNoRoute) {
			log.Printf("navigation: %s route request failed: %v", c, err)
		}
		cs.onResult(nil, err)
	} else {
		distance := route.DistanceM
		if distance == 0 {
			distance = geo.PolylineLengthMeters(route.Geometry)
		}
		cs.onResult(&Path{
			Kind:        req.Kind,
			Geometry:    route.Geometry,
			DistanceM:   distance,
			DurationSec: route.DurationSec,
			POIOrder:    req.POIOrder,
		}, nil)
	}

	if cs.pending {
		cs.pending = false
		if cs.timer == nil {
			e.arm(c, cs)
		}
	}
}

// InFlight reports whether a request of class c is outstanding.
func (e *RouteOrderingEngine) InFlight(c RequestClass) bool {
	cs, ok := e.classes[c]
	return ok && cs.inFlight
}

// Cancel stops pending debounces and makes any outstanding response stale.
func (e *RouteOrderingEngine) Cancel() {
	for _, cs := range e.classes {
		if cs.timer != nil {
			cs.timer.Stop()
			cs.timer = nil
		}
		cs.pending = false
		cs.inFlight = false
		e.nextSeq++
		cs.seq = e.nextSeq
	}
}
