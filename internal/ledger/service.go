package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	_ "time/tzdata"

	"backend-tourguide/internal/circuit"
	"backend-tourguide/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrRouteNotFound  = errors.New("route not found")
	ErrRouteCompleted = errors.New("route already completed")
	ErrForbidden      = errors.New("route belongs to another user")
	ErrUnknownPOI     = errors.New("poi is not part of the route's circuit")
	ErrInvalidZone    = errors.New("unknown time zone")
)

type CircuitSource interface {
	GetCircuit(ctx context.Context, id string) (circuit.Circuit, error)
	POIs(ctx context.Context, circuitID string) ([]circuit.POI, error)
}

type Awarder interface {
	AwardVisit(ctx context.Context, userID, routeID, poiID string, at time.Time) (int, error)
	AwardCompletion(ctx context.Context, userID, routeID string, premium bool) (int, error)
}

// Service is the append-only trace ledger. Award failures are logged and
// never undo the trace write that triggered them.
type Service struct {
	db       db.Querier
	circuits CircuitSource
	awards   Awarder
	zone     *time.Location
}

func NewService(db db.Querier, circuits CircuitSource, awards Awarder) *Service {
	return &Service{db: db, circuits: circuits, awards: awards, zone: time.UTC}
}

// WithZone sets the zone used for time-of-day and weekend bonuses when a
// trace request does not name one.
func (s *Service) WithZone(loc *time.Location) *Service {
	if loc != nil {
		s.zone = loc
	}
	return s
}

func (s *Service) awardZone(name string) (*time.Location, error) {
	if name == "" {
		return s.zone, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidZone, name)
	}
	return loc, nil
}

func (s *Service) StartRoute(ctx context.Context, req StartRequest) (Route, error) {
	route := Route{
		ID:        uuid.NewString(),
		CircuitID: req.CircuitID,
		UserID:    req.UserID,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO routes (id, circuit_id, user_id)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, route.ID, route.CircuitID, route.UserID)
	if err := row.Scan(&route.CreatedAt); err != nil {
		return Route{}, err
	}

	trace, err := s.insertTrace(ctx, route.ID, nil, req.Latitude, req.Longitude)
	if err != nil {
		return Route{}, err
	}
	route.VisitedTraces = []VisitedTrace{trace}
	route.RemovedTraces = []RemovedTrace{}
	route.State = Reconcile(nil, nil)
	return route, nil
}

// AppendTrace records a breadcrumb when req.POIs is empty, otherwise one visit
// trace per POI followed by the award cascade and the completion check.
func (s *Service) AppendTrace(ctx context.Context, userID string, req TraceRequest) (TraceResult, error) {
	header, err := s.writableHeader(ctx, userID, req.RouteID)
	if err != nil {
		return TraceResult{}, err
	}

	if len(req.POIs) == 0 {
		trace, err := s.insertTrace(ctx, req.RouteID, nil, req.Latitude, req.Longitude)
		if err != nil {
			return TraceResult{}, err
		}
		return TraceResult{Traces: []VisitedTrace{trace}}, nil
	}

	if err := s.checkPOIs(ctx, header.CircuitID, req.POIs...); err != nil {
		return TraceResult{}, err
	}
	zone, err := s.awardZone(req.TimeZone)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{}
	for _, poiID := range req.POIs {
		id := poiID
		trace, err := s.insertTrace(ctx, req.RouteID, &id, req.Latitude, req.Longitude)
		if err != nil {
			return TraceResult{}, err
		}
		result.Traces = append(result.Traces, trace)
	}

	if s.awards != nil {
		for _, trace := range result.Traces {
			pts, err := s.awards.AwardVisit(ctx, header.UserID, header.ID, *trace.POIID, trace.CreatedAt.In(zone))
			if err != nil {
				log.Printf("award: visit %s/%s: %v", header.ID, *trace.POIID, err)
			}
			result.PointsAwarded += pts
		}
	}

	completed, pts := s.checkCompletion(ctx, header)
	result.IsRouteCompleted = completed
	result.PointsAwarded += pts
	s.addPoints(ctx, header.ID, result.PointsAwarded)
	return result, nil
}

// RemovePOI excludes a POI from the route. Removing the last unvisited POI
// completes the route.
func (s *Service) RemovePOI(ctx context.Context, userID string, req POIRequest) (RemovalResult, error) {
	header, err := s.writableHeader(ctx, userID, req.RouteID)
	if err != nil {
		return RemovalResult{}, err
	}
	if err := s.checkPOIs(ctx, header.CircuitID, req.POIID); err != nil {
		return RemovalResult{}, err
	}
	trace, err := s.insertRemoval(ctx, req.RouteID, req.POIID, true)
	if err != nil {
		return RemovalResult{}, err
	}

	completed, pts := s.checkCompletion(ctx, header)
	s.addPoints(ctx, header.ID, pts)
	return RemovalResult{Trace: trace, IsRouteCompleted: completed, PointsAwarded: pts}, nil
}

// RestorePOI re-adds a removed POI by appending a retraction.
func (s *Service) RestorePOI(ctx context.Context, userID string, req POIRequest) (RemovalResult, error) {
	header, err := s.writableHeader(ctx, userID, req.RouteID)
	if err != nil {
		return RemovalResult{}, err
	}
	if err := s.checkPOIs(ctx, header.CircuitID, req.POIID); err != nil {
		return RemovalResult{}, err
	}
	trace, err := s.insertRemoval(ctx, req.RouteID, req.POIID, false)
	if err != nil {
		return RemovalResult{}, err
	}
	return RemovalResult{Trace: trace}, nil
}

// Route loads the aggregate with its traces, circuit POIs and reconciled state.
func (s *Service) Route(ctx context.Context, id string) (Route, error) {
	header, err := s.header(ctx, id)
	if err != nil {
		return Route{}, err
	}
	return s.load(ctx, header)
}

// RouteFor is Route restricted to the route's owner.
func (s *Service) RouteFor(ctx context.Context, id, userID string) (Route, error) {
	header, err := s.header(ctx, id)
	if err != nil {
		return Route{}, err
	}
	if header.UserID != userID {
		return Route{}, ErrForbidden
	}
	return s.load(ctx, header)
}

// Owner returns the user the route belongs to.
func (s *Service) Owner(ctx context.Context, routeID string) (string, error) {
	header, err := s.header(ctx, routeID)
	if err != nil {
		return "", err
	}
	return header.UserID, nil
}

func (s *Service) header(ctx context.Context, id string) (Route, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, circuit_id, user_id, is_completed, points_awarded, created_at
		FROM routes WHERE id=$1
	`, id)
	var r Route
	if err := row.Scan(&r.ID, &r.CircuitID, &r.UserID, &r.IsCompleted, &r.PointsAwarded, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Route{}, ErrRouteNotFound
		}
		return Route{}, err
	}
	return r, nil
}

func (s *Service) writableHeader(ctx context.Context, userID, routeID string) (Route, error) {
	header, err := s.header(ctx, routeID)
	if err != nil {
		return Route{}, err
	}
	if userID != "" && header.UserID != userID {
		return Route{}, ErrForbidden
	}
	if header.IsCompleted {
		return Route{}, ErrRouteCompleted
	}
	return header, nil
}

// checkPOIs rejects ids that do not belong to the circuit. Without a circuit
// source every id is accepted.
func (s *Service) checkPOIs(ctx context.Context, circuitID string, ids ...string) error {
	if s.circuits == nil {
		return nil
	}
	pois, err := s.circuits.POIs(ctx, circuitID)
	if err != nil {
		return fmt.Errorf("circuit pois: %w", err)
	}
	known := make(map[string]struct{}, len(pois))
	for _, p := range pois {
		known[p.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPOI, id)
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context, route Route) (Route, error) {
	visited, err := s.visitedTraces(ctx, route.ID)
	if err != nil {
		return Route{}, err
	}
	removed, err := s.removedTraces(ctx, route.ID)
	if err != nil {
		return Route{}, err
	}
	route.VisitedTraces = visited
	route.RemovedTraces = removed
	route.State = Reconcile(visited, removed)

	if s.circuits != nil {
		pois, err := s.circuits.POIs(ctx, route.CircuitID)
		if err != nil {
			return Route{}, fmt.Errorf("circuit pois: %w", err)
		}
		route.POIs = pois
	}
	return route, nil
}

// checkCompletion records completion at most once. Only the caller whose
// update flips is_completed runs the completion awards.
func (s *Service) checkCompletion(ctx context.Context, header Route) (bool, int) {
	route, err := s.load(ctx, header)
	if err != nil {
		log.Printf("ledger: completion check %s: %v", header.ID, err)
		return false, 0
	}
	ids := make([]string, 0, len(route.POIs))
	for _, p := range route.POIs {
		ids = append(ids, p.ID)
	}
	if !IsComplete(route.State, ids) {
		return false, 0
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE routes SET is_completed=TRUE, completed_at=now()
		WHERE id=$1 AND NOT is_completed
	`, header.ID)
	if err != nil {
		log.Printf("ledger: mark completed %s: %v", header.ID, err)
		return false, 0
	}
	if tag.RowsAffected() != 1 || s.awards == nil {
		return true, 0
	}

	premium := false
	if s.circuits != nil {
		c, err := s.circuits.GetCircuit(ctx, header.CircuitID)
		if err != nil {
			log.Printf("ledger: circuit %s: %v", header.CircuitID, err)
		}
		premium = c.IsPremium
	}
	pts, err := s.awards.AwardCompletion(ctx, header.UserID, header.ID, premium)
	if err != nil {
		log.Printf("award: completion %s: %v", header.ID, err)
	}
	return true, pts
}

func (s *Service) addPoints(ctx context.Context, routeID string, points int) {
	if points <= 0 {
		return
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE routes SET points_awarded = points_awarded + $2 WHERE id=$1
	`, routeID, points); err != nil {
		log.Printf("ledger: add points %s: %v", routeID, err)
	}
}

func (s *Service) insertTrace(ctx context.Context, routeID string, poiID *string, lat, lng float64) (VisitedTrace, error) {
	trace := VisitedTrace{RouteID: routeID, POIID: poiID, Lat: lat, Lng: lng}
	row := s.db.QueryRow(ctx, `
		INSERT INTO visited_traces (route_id, poi_id, location)
		VALUES ($1,$2, ST_SetSRID(ST_MakePoint($3,$4), 4326)::geography)
		RETURNING id, created_at
	`, routeID, poiID, lng, lat)
	if err := row.Scan(&trace.ID, &trace.CreatedAt); err != nil {
		return VisitedTrace{}, err
	}
	return trace, nil
}

func (s *Service) insertRemoval(ctx context.Context, routeID, poiID string, active bool) (RemovedTrace, error) {
	trace := RemovedTrace{RouteID: routeID, POIID: poiID, Active: active}
	row := s.db.QueryRow(ctx, `
		INSERT INTO removed_traces (route_id, poi_id, active)
		VALUES ($1,$2,$3)
		RETURNING id, created_at
	`, routeID, poiID, active)
	if err := row.Scan(&trace.ID, &trace.CreatedAt); err != nil {
		return RemovedTrace{}, err
	}
	return trace, nil
}

func (s *Service) visitedTraces(ctx context.Context, routeID string) ([]VisitedTrace, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, route_id, poi_id, ST_Y(location::geometry), ST_X(location::geometry), created_at
		FROM visited_traces WHERE route_id=$1
		ORDER BY created_at, id
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	traces := []VisitedTrace{}
	for rows.Next() {
		var t VisitedTrace
		if err := rows.Scan(&t.ID, &t.RouteID, &t.POIID, &t.Lat, &t.Lng, &t.CreatedAt); err != nil {
			return nil, err
		}
		traces = append(traces, t)
	}
	return traces, rows.Err()
}

func (s *Service) removedTraces(ctx context.Context, routeID string) ([]RemovedTrace, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, route_id, poi_id, active, created_at
		FROM removed_traces WHERE route_id=$1
		ORDER BY created_at, id
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	traces := []RemovedTrace{}
	for rows.Next() {
		var t RemovedTrace
		if err := rows.Scan(&t.ID, &t.RouteID, &t.POIID, &t.Active, &t.CreatedAt); err != nil {
			return nil, err
		}
		traces = append(traces, t)
	}
	return traces, rows.Err()
}
