package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"backend-tourguide/internal/ledger"
	"backend-tourguide/internal/shared/geo"
)

var ErrSessionNotFound = errors.New("navigation session not found")

// Broadcaster is satisfied by *stream.Hub.
type Broadcaster interface {
	Broadcast(routeID string, payload []byte)
}

// Session pairs a Navigator with the loop that owns it.
type Session struct {
	RouteID string
	UserID  string

	loop *Loop
	nav  *Navigator
}

// Do runs fn on the session loop and returns its error.
func (s *Session) Do(fn func(n *Navigator) error) error {
	var err error
	if lerr := s.loop.Do(func() { err = fn(s.nav) }); lerr != nil {
		return lerr
	}
	return err
}

func (s *Session) Fix(p geo.Point) error {
	return s.Do(func(n *Navigator) error {
		n.HandleFix(p)
		return nil
	})
}

func (s *Session) SignalLost(reason string) error {
	return s.Do(func(n *Navigator) error {
		n.HandleSignalLost(reason)
		return nil
	})
}

func (s *Session) RemovePOI(poiID string) error {
	return s.Do(func(n *Navigator) error { return n.RemovePOI(poiID) })
}

func (s *Session) RestorePOI(poiID string) error {
	return s.Do(func(n *Navigator) error { return n.RestorePOI(poiID) })
}

func (s *Session) Reroute() error {
	return s.Do(func(n *Navigator) error { return n.Reroute() })
}

func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.Do(func(n *Navigator) error {
		snap = n.Snapshot()
		return nil
	})
	return snap, err
}

func (s *Session) Close() {
	_ = s.loop.Do(s.nav.Close)
	s.loop.Close()
}

// Manager keeps at most one live session per route.
type Manager struct {
	settings Settings
	router   Router
	ledger   Ledger
	events   Broadcaster

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(settings Settings, router Router, l Ledger, events Broadcaster) *Manager {
	return &Manager{
		settings: settings,
		router:   router,
		ledger:   l,
		events:   events,
		sessions: map[string]*Session{},
	}
}

// Start opens a session for the route. The route is fetched and checked
// before an existing session for it is touched, so a failed start leaves that
// session running. A replaced session is closed and the new one reconciles
// from the ledger.
func (m *Manager) Start(ctx context.Context, routeID, userID string) (Snapshot, error) {
	m.mu.Lock()
	old := m.sessions[routeID]
	m.mu.Unlock()
	if old != nil && old.UserID != userID {
		return Snapshot{}, ledger.ErrForbidden
	}

	route, err := m.fetch(ctx, routeID, userID)
	if err != nil {
		return Snapshot{}, err
	}

	if old != nil {
		m.mu.Lock()
		if m.sessions[routeID] == old {
			delete(m.sessions, routeID)
		}
		m.mu.Unlock()
		log.Printf("navigation: replacing session for route %s", routeID)
		old.Close()
		// Writes of the old session since the first fetch must be reconciled.
		if route, err = m.fetch(ctx, routeID, userID); err != nil {
			return Snapshot{}, err
		}
	}

	loop := NewLoop()
	s := &Session{
		RouteID: routeID,
		UserID:  userID,
		loop:    loop,
		nav:     NewNavigator(routeID, userID, m.settings, loop, m.router, m.ledger, m.listener(routeID)),
	}

	var snap Snapshot
	if err := s.Do(func(n *Navigator) error {
		n.Start(route)
		snap = n.Snapshot()
		return nil
	}); err != nil {
		s.loop.Close()
		return Snapshot{}, err
	}

	m.mu.Lock()
	prev := m.sessions[routeID]
	m.sessions[routeID] = s
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return snap, nil
}

func (m *Manager) fetch(ctx context.Context, routeID, userID string) (ledger.Route, error) {
	route, err := m.ledger.Route(ctx, routeID)
	if err != nil {
		return ledger.Route{}, err
	}
	if route.UserID != "" && route.UserID != userID {
		return ledger.Route{}, ledger.ErrForbidden
	}
	return route, nil
}

func (m *Manager) Get(routeID, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[routeID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.UserID != userID {
		return nil, ledger.ErrForbidden
	}
	return s, nil
}

func (m *Manager) Stop(routeID, userID string) error {
	s, err := m.Get(routeID, userID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.sessions[routeID] == s {
		delete(m.sessions, routeID)
	}
	m.mu.Unlock()
	s.Close()
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) listener(routeID string) Listener {
	if m.events == nil {
		return nil
	}
	return func(ev Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("navigation: encode %s event: %v", ev.Type, err)
			return
		}
		m.events.Broadcast(routeID, payload)
	}
}
