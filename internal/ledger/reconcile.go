package ledger

import (
	"sort"
	"time"
)

// State is the reconciled view of a route's traces.
type State struct {
	Visited []string `json:"visitedPoiIds"`
	Removed []string `json:"removedPoiIds"`
}

func (s State) IsVisited(poiID string) bool { return contains(s.Visited, poiID) }
func (s State) IsRemoved(poiID string) bool { return contains(s.Removed, poiID) }

type eventKind int

const (
	eventVisit eventKind = iota
	eventRemove
	eventRestore
)

type event struct {
	poiID string
	kind  eventKind
	at    time.Time
}

// Reconcile replays visit, removal and restore traces in timestamp order so
// the latest trace for each POI decides its state. A POI is never in both
// sets. On equal timestamps removals are applied after visits.
func Reconcile(visited []VisitedTrace, removed []RemovedTrace) State {
	events := make([]event, 0, len(visited)+len(removed))
	for _, t := range visited {
		if t.IsBreadcrumb() {
			continue
		}
		events = append(events, event{poiID: *t.POIID, kind: eventVisit, at: t.CreatedAt})
	}
	for _, t := range removed {
		kind := eventRemove
		if !t.Active {
			kind = eventRestore
		}
		events = append(events, event{poiID: t.POIID, kind: kind, at: t.CreatedAt})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].at.Before(events[j].at)
	})

	status := map[string]eventKind{}
	var seen []string
	for _, e := range events {
		if _, ok := status[e.poiID]; !ok {
			seen = append(seen, e.poiID)
		}
		status[e.poiID] = e.kind
	}

	state := State{Visited: []string{}, Removed: []string{}}
	for _, id := range seen {
		switch status[id] {
		case eventVisit:
			state.Visited = append(state.Visited, id)
		case eventRemove:
			state.Removed = append(state.Removed, id)
		}
	}
	sort.Strings(state.Visited)
	sort.Strings(state.Removed)
	return state
}

// IsComplete reports whether every non-removed POI has been visited. At least
// one POI must remain, so removing everything never completes a route.
func IsComplete(state State, poiIDs []string) bool {
	remaining := 0
	for _, id := range poiIDs {
		if state.IsRemoved(id) {
			continue
		}
		remaining++
		if !state.IsVisited(id) {
			return false
		}
	}
	return remaining > 0
}

// Breadcrumbs returns the position-only traces in chronological order.
func Breadcrumbs(visited []VisitedTrace) []VisitedTrace {
	var out []VisitedTrace
	for _, t := range visited {
		if t.IsBreadcrumb() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
