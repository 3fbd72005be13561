package navigation

import (
	"context"
	"errors"
	"log"

	"backend-tourguide/internal/ledger"
	"backend-tourguide/internal/shared/geo"
)

var ErrNotReady = errors.New("navigation session not reconciled")

// Ledger is satisfied by *ledger.Service in-process and *ledger.Client over HTTP.
type Ledger interface {
	Route(ctx context.Context, routeID string) (ledger.Route, error)
	AppendTrace(ctx context.Context, userID string, req ledger.TraceRequest) (ledger.TraceResult, error)
	RemovePOI(ctx context.Context, userID string, req ledger.POIRequest) (ledger.RemovalResult, error)
	RestorePOI(ctx context.Context, userID string, req ledger.POIRequest) (ledger.RemovalResult, error)
}

// Navigator owns all navigation state of one route. Every method must be
// called from the goroutine that runs its Scheduler.
type Navigator struct {
	routeID  string
	userID   string
	settings Settings
	sched    Scheduler
	ledger   Ledger
	listener Listener

	tracker   *ZoneTracker
	engine    *RouteOrderingEngine
	projector SegmentProjector
	detector  *VisitDetector
	splitter  RouteSplitter

	trajectory    Trajectory
	before        *Path
	progress      Progress
	breadcrumbs   []geo.Point
	live          *geo.Point
	pointsAwarded int

	ready      bool
	completed  bool
	signalLost bool
	closed     bool

	idleTimer   Timer
	dwellTimers map[string]Timer
}

func NewNavigator(routeID, userID string, settings Settings, sched Scheduler, router Router, l Ledger, listener Listener) *Navigator {
	return &Navigator{
		routeID:     routeID,
		userID:      userID,
		settings:    settings,
		sched:       sched,
		ledger:      l,
		listener:    listener,
		tracker:     NewZoneTracker(settings.PromotionEpsilonMeters),
		engine:      NewRouteOrderingEngine(router, sched, settings.RecomputeDebounce),
		detector:    NewVisitDetector(settings.ProximityMeters, settings.DwellDuration, nil),
		splitter:    NewRouteSplitter(settings.SkipBeforeToleranceMeters),
		dwellTimers: map[string]Timer{},
	}
}

// Start reconciles against the ledger's copy of the route and requests the
// initial route. Dwell detection stays off until Start has run.
func (n *Navigator) Start(route ledger.Route) {
	if n.closed {
		return
	}
	n.stopDwellTimers()
	n.detector = NewVisitDetector(n.settings.ProximityMeters, n.settings.DwellDuration, route.POIs)
	n.detector.Reconcile(ledger.Reconcile(route.VisitedTraces, route.RemovedTraces))

	n.breadcrumbs = n.breadcrumbs[:0]
	for _, t := range ledger.Breadcrumbs(route.VisitedTraces) {
		n.breadcrumbs = append(n.breadcrumbs, geo.NewPoint(t.Lat, t.Lng))
	}
	n.pointsAwarded = route.PointsAwarded
	n.completed = route.IsCompleted
	n.ready = true
	n.publish(EventReady, n.Snapshot())

	if n.completed {
		return
	}
	if n.live != nil {
		n.observe(*n.live)
	}
	n.split()
}

// HandleFix runs one position through ZoneTracker, SegmentProjector and
// VisitDetector, then triggers recomputes for promotions and deviations.
func (n *Navigator) HandleFix(p geo.Point) {
	if n.closed {
		return
	}
	if n.signalLost {
		n.signalLost = false
		n.publish(EventSignalRestored, nil)
	}
	fix := p
	n.live = &fix

	zones := n.tracker.Update(p, n.sched.Now())
	n.publish(EventZonesChanged, zones)
	n.armIdle()

	if n.completed {
		return
	}
	n.progress = n.projector.Project(n.trajectory.Active, p, zones.Current.RadiusM)
	n.publish(EventProgressChanged, n.progress)

	if !n.ready {
		return
	}
	n.observe(p)
	if n.completed {
		return
	}

	switch {
	case zones.Promoted:
		n.dropBreadcrumb(p, zones.Current.RadiusM)
		n.split()
	case n.progress.Deviated:
		n.split()
	}
}

func (n *Navigator) observe(p geo.Point) {
	transitions, ready := n.detector.Observe(p, n.sched.Now())
	for _, t := range transitions {
		switch t.To {
		case Dwelling:
			n.startDwellTimer(t.POIID)
			n.publish(EventDwellProgress, n.dwellProgress(t.POIID, 0))
		case Unvisited:
			n.stopDwellTimer(t.POIID)
			n.publish(EventDwellCancelled, POIEvent{POIID: t.POIID})
		}
	}
	for _, id := range n.detector.Dwelling() {
		if _, ok := n.dwellTimers[id]; !ok {
			n.startDwellTimer(id)
		}
	}
	for _, id := range ready {
		n.commitVisit(id)
	}
}

// HandleSignalLost freezes proximity and deviation logic until the next fix.
func (n *Navigator) HandleSignalLost(reason string) {
	if n.closed || n.signalLost {
		return
	}
	n.signalLost = true
	n.stopDwellTimers()
	if n.idleTimer != nil {
		n.idleTimer.Stop()
		n.idleTimer = nil
	}
	n.publish(EventSignalLost, SignalEvent{Reason: reason, LastKnown: n.live})
}

func (n *Navigator) RemovePOI(poiID string) error {
	if err := n.writable(); err != nil {
		return err
	}
	return n.run(&removeCommand{poiID: poiID})
}

func (n *Navigator) RestorePOI(poiID string) error {
	if err := n.writable(); err != nil {
		return err
	}
	return n.run(&restoreCommand{poiID: poiID})
}

// Reroute requests both paths again. Routing failures are never retried
// automatically, so this is the way back after one.
func (n *Navigator) Reroute() error {
	if err := n.writable(); err != nil {
		return err
	}
	n.engine.Trigger(ClassBefore, n.buildBefore, n.applyBefore)
	n.engine.Trigger(ClassAfter, n.buildAfter, n.applyAfter)
	return nil
}

// Close tears down every timer. Late I/O results are ignored afterwards.
func (n *Navigator) Close() {
	if n.closed {
		return
	}
	n.closed = true
	n.engine.Cancel()
	n.stopDwellTimers()
	if n.idleTimer != nil {
		n.idleTimer.Stop()
		n.idleTimer = nil
	}
}

func (n *Navigator) writable() error {
	switch {
	case n.closed:
		return ErrSessionClosed
	case !n.ready:
		return ErrNotReady
	case n.completed:
		return ledger.ErrRouteCompleted
	}
	return nil
}

func (n *Navigator) commitVisit(poiID string) {
	if n.live == nil {
		return
	}
	if err := n.run(&visitCommand{poiID: poiID, at: *n.live}); err != nil && !errors.Is(err, ErrInvalidTransition) {
		log.Printf("navigation: visit of %s on route %s not committed: %v", poiID, n.routeID, err)
	}
}

func (n *Navigator) complete() {
	if n.completed {
		return
	}
	n.completed = true
	n.engine.Cancel()
	n.stopDwellTimers()
	n.publish(EventRouteCompleted, CompletedEvent{PointsAwarded: n.pointsAwarded})
}

// split asks for a fresh before/after pair. The before path is left alone
// when extending it would be degenerate.
func (n *Navigator) split() {
	if !n.ready || n.completed || n.closed {
		return
	}
	if !n.splitter.SkipBefore(n.before, n.live, n.liveRadius()) {
		n.engine.Trigger(ClassBefore, n.buildBefore, n.applyBefore)
	}
	n.engine.Trigger(ClassAfter, n.buildAfter, n.applyAfter)
}

func (n *Navigator) buildBefore() (RouteRequest, bool) {
	return n.splitter.BeforeRequest(n.breadcrumbs)
}

func (n *Navigator) applyBefore(p *Path, err error) {
	if err != nil {
		n.clearPaths()
		return
	}
	n.before = p
	n.publish(EventPathChanged, PathsEvent{Trajectory: n.trajectory, Before: n.before})
}

func (n *Navigator) buildAfter() (RouteRequest, bool) {
	anchor, ok := n.anchor()
	if !ok {
		return RouteRequest{}, false
	}
	split := n.before != nil || len(n.breadcrumbs) > 1
	return n.splitter.AfterRequest(anchor, n.live, n.liveRadius(), n.detector.Remaining(), split)
}

func (n *Navigator) applyAfter(p *Path, err error) {
	if err != nil {
		n.clearPaths()
		return
	}
	if p == nil {
		n.trajectory.Clear()
	} else {
		n.trajectory.Replace(p)
	}
	n.reproject()
	n.publish(EventPathChanged, PathsEvent{Trajectory: n.trajectory, Before: n.before})
}

// clearPaths drops every derived path after a routing failure. POIs stay.
func (n *Navigator) clearPaths() {
	n.trajectory.Clear()
	n.before = nil
	n.progress = Progress{}
	n.publish(EventPathChanged, PathsEvent{Failed: true})
	n.publish(EventProgressChanged, n.progress)
}

func (n *Navigator) reproject() {
	if n.live == nil {
		n.progress = Progress{}
		return
	}
	n.progress = n.projector.Project(n.trajectory.Active, *n.live, n.liveRadius())
	n.publish(EventProgressChanged, n.progress)
}

// anchor is the previous zone center, falling back to the last breadcrumb
// and then the live position.
func (n *Navigator) anchor() (geo.Point, bool) {
	if z := n.tracker.Previous(); z != nil {
		return z.Center, true
	}
	if len(n.breadcrumbs) > 0 {
		return n.breadcrumbs[len(n.breadcrumbs)-1], true
	}
	if n.live != nil {
		return *n.live, true
	}
	return geo.Point{}, false
}

func (n *Navigator) liveRadius() float64 {
	if z := n.tracker.Current(); z != nil {
		return z.RadiusM
	}
	return RadiusForSpeed(0)
}

// dropBreadcrumb records the new anchor locally and in the ledger. Anchors
// next to the last breadcrumb are not written again.
func (n *Navigator) dropBreadcrumb(p geo.Point, radiusM float64) {
	if k := len(n.breadcrumbs); k > 0 && geo.DistanceMeters(n.breadcrumbs[k-1], p) <= radiusM {
		return
	}
	n.breadcrumbs = append(n.breadcrumbs, geo.NewPoint(p.Lat, p.Lng))

	l, routeID, userID := n.ledger, n.routeID, n.userID
	n.sched.Go(func(ctx context.Context) func() {
		_, err := l.AppendTrace(ctx, userID, ledger.TraceRequest{RouteID: routeID, Latitude: p.Lat, Longitude: p.Lng})
		if err == nil {
			return nil
		}
		return func() {
			if errors.Is(err, ledger.ErrRouteCompleted) {
				n.complete()
				return
			}
			log.Printf("navigation: breadcrumb write failed for route %s: %v", routeID, err)
		}
	})
}

func (n *Navigator) armIdle() {
	if n.idleTimer != nil {
		n.idleTimer.Stop()
	}
	n.idleTimer = n.sched.AfterFunc(n.settings.IdleDecay, func() {
		n.idleTimer = nil
		if n.closed {
			return
		}
		n.publish(EventZonesChanged, n.tracker.Decay())
	})
}

func (n *Navigator) startDwellTimer(poiID string) {
	n.stopDwellTimer(poiID)
	n.dwellTimers[poiID] = n.sched.AfterFunc(n.settings.DwellTick, func() {
		delete(n.dwellTimers, poiID)
		n.dwellTick(poiID)
	})
}

func (n *Navigator) dwellTick(poiID string) {
	if n.closed || n.completed || n.signalLost {
		return
	}
	st, ready := n.detector.Elapse(poiID, n.sched.Now())
	if st.Status != Dwelling {
		return
	}
	n.publish(EventDwellProgress, n.dwellProgress(poiID, st.Elapsed.Seconds()))
	if ready {
		n.commitVisit(poiID)
		return
	}
	n.startDwellTimer(poiID)
}

func (n *Navigator) dwellProgress(poiID string, elapsed float64) DwellProgress {
	remaining := n.settings.DwellDuration.Seconds() - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return DwellProgress{POIID: poiID, ElapsedSec: elapsed, RemainingSec: remaining}
}

func (n *Navigator) stopDwellTimer(poiID string) {
	if t, ok := n.dwellTimers[poiID]; ok {
		t.Stop()
		delete(n.dwellTimers, poiID)
	}
}

func (n *Navigator) stopDwellTimers() {
	for id := range n.dwellTimers {
		n.stopDwellTimer(id)
	}
}

func (n *Navigator) publish(t EventType, data any) {
	if n.listener == nil {
		return
	}
	n.listener(Event{Type: t, RouteID: n.routeID, At: n.sched.Now(), Data: data})
}
