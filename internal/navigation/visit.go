package navigation

import (
	"errors"
	"time"

	"backend-tourguide/internal/circuit"
	"backend-tourguide/internal/ledger"
	"backend-tourguide/internal/shared/geo"
)

type VisitStatus string

const (
	Unvisited VisitStatus = "unvisited"
	Dwelling  VisitStatus = "dwelling"
	Visited   VisitStatus = "visited"
	Removed   VisitStatus = "removed"
)

var (
	ErrUnknownPOI        = errors.New("unknown poi")
	ErrInvalidTransition = errors.New("invalid visit transition")
	ErrAlreadyConfirmed  = errors.New("visit already confirmed")
)

type VisitState struct {
	Status    VisitStatus   `json:"status"`
	StartedAt time.Time     `json:"startedAt"`
	Elapsed   time.Duration `json:"elapsed"`
}

type Transition struct {
	POIID string      `json:"poiId"`
	From  VisitStatus `json:"from"`
	To    VisitStatus `json:"to"`
}

// dwellReached compares floored elapsed seconds with the dwell duration, so
// 29.96s does not count as 30s.
func dwellReached(elapsed, dwell time.Duration) bool {
	return elapsed.Truncate(time.Second) >= dwell
}

// VisitDetector holds the per-POI dwell state machine. It owns no timers;
// callers drive it with fixes and ticks.
type VisitDetector struct {
	proximityM float64
	dwell      time.Duration

	pois      []circuit.POI
	states    map[string]VisitState
	confirmed map[string]bool
}

func NewVisitDetector(proximityM float64, dwell time.Duration, pois []circuit.POI) *VisitDetector {
	d := &VisitDetector{
		proximityM: proximityM,
		dwell:      dwell,
		pois:       pois,
		states:     make(map[string]VisitState, len(pois)),
		confirmed:  map[string]bool{},
	}
	for _, p := range pois {
		d.states[p.ID] = VisitState{Status: Unvisited}
	}
	return d
}

// Observe evaluates every open POI against the live position. ready lists
// the POIs whose dwell is complete.
func (d *VisitDetector) Observe(live geo.Point, now time.Time) (transitions []Transition, ready []string) {
	for _, p := range d.pois {
		st := d.states[p.ID]
		if st.Status == Visited || st.Status == Removed {
			continue
		}
		inside := geo.DistanceMeters(live, p.Location()) <= d.proximityM

		switch {
		case st.Status == Unvisited && inside:
			d.states[p.ID] = VisitState{Status: Dwelling, StartedAt: now}
			transitions = append(transitions, Transition{POIID: p.ID, From: Unvisited, To: Dwelling})
			if dwellReached(0, d.dwell) {
				ready = append(ready, p.ID)
			}
		case st.Status == Dwelling && !inside:
			d.states[p.ID] = VisitState{Status: Unvisited}
			transitions = append(transitions, Transition{POIID: p.ID, From: Dwelling, To: Unvisited})
		case st.Status == Dwelling:
			st.Elapsed = now.Sub(st.StartedAt)
			d.states[p.ID] = st
			if dwellReached(st.Elapsed, d.dwell) {
				ready = append(ready, p.ID)
			}
		}
	}
	return transitions, ready
}

// Elapse refreshes the wall-clock elapsed time of a dwelling POI.
func (d *VisitDetector) Elapse(poiID string, now time.Time) (VisitState, bool) {
	st, ok := d.states[poiID]
	if !ok || st.Status != Dwelling {
		return st, false
	}
	st.Elapsed = now.Sub(st.StartedAt)
	d.states[poiID] = st
	return st, dwellReached(st.Elapsed, d.dwell)
}

// Commit moves a dwelling POI to visited. It refuses POIs the ledger has
// already confirmed so a visit is never written twice.
func (d *VisitDetector) Commit(poiID string) (VisitState, error) {
	st, ok := d.states[poiID]
	if !ok {
		return st, ErrUnknownPOI
	}
	if d.confirmed[poiID] {
		return st, ErrAlreadyConfirmed
	}
	if st.Status != Dwelling {
		return st, ErrInvalidTransition
	}
	d.states[poiID] = VisitState{Status: Visited, StartedAt: st.StartedAt, Elapsed: st.Elapsed}
	return st, nil
}

func (d *VisitDetector) Confirm(poiID string) {
	if _, ok := d.states[poiID]; !ok {
		return
	}
	d.confirmed[poiID] = true
	st := d.states[poiID]
	st.Status = Visited
	d.states[poiID] = st
}

// Revert puts a POI whose visit write failed back into dwelling, starting
// the countdown again at now.
func (d *VisitDetector) Revert(poiID string, now time.Time) {
	if _, ok := d.states[poiID]; !ok || d.confirmed[poiID] {
		return
	}
	d.states[poiID] = VisitState{Status: Dwelling, StartedAt: now}
}

func (d *VisitDetector) Remove(poiID string) (VisitState, error) {
	st, ok := d.states[poiID]
	if !ok {
		return st, ErrUnknownPOI
	}
	if st.Status != Unvisited && st.Status != Dwelling {
		return st, ErrInvalidTransition
	}
	d.states[poiID] = VisitState{Status: Removed}
	return st, nil
}

func (d *VisitDetector) Restore(poiID string) (VisitState, error) {
	st, ok := d.states[poiID]
	if !ok {
		return st, ErrUnknownPOI
	}
	if st.Status != Removed {
		return st, ErrInvalidTransition
	}
	d.states[poiID] = VisitState{Status: Unvisited}
	return st, nil
}

// Set restores a saved state during rollback.
func (d *VisitDetector) Set(poiID string, st VisitState) {
	if _, ok := d.states[poiID]; ok {
		d.states[poiID] = st
	}
}

// Reconcile applies the ledger's view. Dwelling POIs the ledger does not
// know about keep their countdown.
func (d *VisitDetector) Reconcile(state ledger.State) {
	for _, p := range d.pois {
		st := d.states[p.ID]
		switch {
		case state.IsVisited(p.ID):
			d.confirmed[p.ID] = true
			d.states[p.ID] = VisitState{Status: Visited}
		case state.IsRemoved(p.ID):
			delete(d.confirmed, p.ID)
			d.states[p.ID] = VisitState{Status: Removed}
		case st.Status == Visited || st.Status == Removed:
			delete(d.confirmed, p.ID)
			d.states[p.ID] = VisitState{Status: Unvisited}
		}
	}
}

func (d *VisitDetector) State(poiID string) (VisitState, bool) {
	st, ok := d.states[poiID]
	return st, ok
}

func (d *VisitDetector) States() map[string]VisitState {
	out := make(map[string]VisitState, len(d.states))
	for id, st := range d.states {
		out[id] = st
	}
	return out
}

// Remaining returns the POIs still to visit, in circuit order.
func (d *VisitDetector) Remaining() []circuit.POI {
	var out []circuit.POI
	for _, p := range d.pois {
		if st := d.states[p.ID].Status; st != Visited && st != Removed {
			out = append(out, p)
		}
	}
	return out
}

func (d *VisitDetector) Dwelling() []string {
	var out []string
	for _, p := range d.pois {
		if d.states[p.ID].Status == Dwelling {
			out = append(out, p.ID)
		}
	}
	return out
}

func (d *VisitDetector) POIs() []circuit.POI { return d.pois }
