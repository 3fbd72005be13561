package navigation

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"backend-tourguide/internal/circuit"
	"backend-tourguide/internal/ledger"
	"backend-tourguide/internal/routing"
	"backend-tourguide/internal/shared/geo"
)

var t0 = time.Date(2026, 10, 21, 9, 0, 0, 0, time.UTC)

const earthRadiusM = 6378137.0

func north(p geo.Point, meters float64) geo.Point {
	return geo.NewPoint(p.Lat+meters/earthRadiusM*180/math.Pi, p.Lng)
}

func poiAt(id string, lat, lng float64) circuit.POI {
	return circuit.POI{ID: id, CircuitID: "circuit-1", Label: id, Lat: lat, Lng: lng}
}

type manualTimer struct {
	due     time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// manualScheduler is a fake clock. Timers fire inside Advance and
// background work runs only when the test asks for it.
type manualScheduler struct {
	now    time.Time
	seq    int
	timers []*manualTimer
	jobs   []func(ctx context.Context) func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{now: t0}
}

func (s *manualScheduler) Now() time.Time { return s.now }

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.seq++
	t := &manualTimer{due: s.now.Add(d), seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) Go(work func(ctx context.Context) func()) {
	s.jobs = append(s.jobs, work)
}

func (s *manualScheduler) Advance(d time.Duration) {
	target := s.now.Add(d)
	for {
		t := s.nextDue(target)
		if t == nil {
			break
		}
		if t.due.After(s.now) {
			s.now = t.due
		}
		t.fired = true
		t.fn()
	}
	s.now = target
}

func (s *manualScheduler) nextDue(target time.Time) *manualTimer {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	s.timers = live
	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].due.Equal(s.timers[j].due) {
			return s.timers[i].seq < s.timers[j].seq
		}
		return s.timers[i].due.Before(s.timers[j].due)
	})
	if len(s.timers) == 0 || s.timers[0].due.After(target) {
		return nil
	}
	return s.timers[0]
}

func (s *manualScheduler) activeTimers() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (s *manualScheduler) pendingJobs() int { return len(s.jobs) }

// runJob runs the i-th queued job and applies its result.
func (s *manualScheduler) runJob(i int) {
	job := s.jobs[i]
	s.jobs = append(s.jobs[:i:i], s.jobs[i+1:]...)
	if apply := job(context.Background()); apply != nil {
		apply()
	}
}

// RunJobs drains the queue, including jobs queued by earlier results.
func (s *manualScheduler) RunJobs() int {
	n := 0
	for len(s.jobs) > 0 {
		s.runJob(0)
		n++
	}
	return n
}

type fakeRouter struct {
	mu    sync.Mutex
	calls [][]geo.Point
	err   error
}

func (r *fakeRouter) Route(_ context.Context, coords []geo.Point) (routing.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, coords)
	if r.err != nil {
		return routing.Route{}, r.err
	}
	line := append([]geo.Point(nil), coords...)
	return routing.Route{Geometry: line, DistanceM: geo.PolylineLengthMeters(line), DurationSec: 60}, nil
}

func (r *fakeRouter) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *fakeRouter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeLedger struct {
	mu       sync.Mutex
	route    ledger.Route
	routeErr error

	traces   []ledger.TraceRequest
	removals []ledger.POIRequest
	restores []ledger.POIRequest

	visitErr   error
	removeErr  error
	restoreErr error
	// completeOn marks the route completed when this POI's visit is written.
	completeOn string
}

func (l *fakeLedger) Route(_ context.Context, id string) (ledger.Route, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.routeErr != nil {
		return ledger.Route{}, l.routeErr
	}
	r := l.route
	r.ID = id
	return r, nil
}

func (l *fakeLedger) AppendTrace(_ context.Context, _ string, req ledger.TraceRequest) (ledger.TraceResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(req.POIs) > 0 && l.visitErr != nil {
		return ledger.TraceResult{}, l.visitErr
	}
	l.traces = append(l.traces, req)
	res := ledger.TraceResult{}
	for _, id := range req.POIs {
		res.PointsAwarded += 10
		if id == l.completeOn {
			res.IsRouteCompleted = true
			res.PointsAwarded += 50
		}
	}
	return res, nil
}

func (l *fakeLedger) RemovePOI(_ context.Context, _ string, req ledger.POIRequest) (ledger.RemovalResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.removeErr != nil {
		return ledger.RemovalResult{}, l.removeErr
	}
	l.removals = append(l.removals, req)
	return ledger.RemovalResult{}, nil
}

func (l *fakeLedger) RestorePOI(_ context.Context, _ string, req ledger.POIRequest) (ledger.RemovalResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.restoreErr != nil {
		return ledger.RemovalResult{}, l.restoreErr
	}
	l.restores = append(l.restores, req)
	return ledger.RemovalResult{}, nil
}

func (l *fakeLedger) visits() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, t := range l.traces {
		out = append(out, t.POIs...)
	}
	return out
}

func (l *fakeLedger) breadcrumbCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.traces {
		if len(t.POIs) == 0 {
			n++
		}
	}
	return n
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func testSettings() Settings {
	return Settings{
		ProximityMeters:           15,
		DwellDuration:             30 * time.Second,
		DwellTick:                 time.Second,
		IdleDecay:                 1500 * time.Millisecond,
		RecomputeDebounce:         200 * time.Millisecond,
		PromotionEpsilonMeters:    1,
		SkipBeforeToleranceMeters: 5,
	}
}

type harness struct {
	nav    *Navigator
	sched  *manualScheduler
	router *fakeRouter
	ledger *fakeLedger
	events *recorder
}

func newHarness(pois ...circuit.POI) *harness {
	h := &harness{
		sched:  newManualScheduler(),
		router: &fakeRouter{},
		ledger: &fakeLedger{route: ledger.Route{UserID: "user-1", POIs: pois}},
		events: &recorder{},
	}
	h.nav = NewNavigator("route-1", "user-1", testSettings(), h.sched, h.router, h.ledger, h.events.listen)
	return h
}

// start reconciles the navigator with whatever the fake ledger holds.
func (h *harness) start() {
	route, _ := h.ledger.Route(context.Background(), "route-1")
	h.nav.Start(route)
}

func (h *harness) state(poiID string) VisitState {
	st, _ := h.nav.detector.State(poiID)
	return st
}
