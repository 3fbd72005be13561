package circuit

import (
	"context"

	"backend-tourguide/internal/db"

	"github.com/google/uuid"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) CreateCircuit(ctx context.Context, input Circuit) (Circuit, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO circuits (id, name, description, is_premium)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, input.ID, input.Name, input.Description, input.IsPremium)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Circuit{}, err
	}
	return input, nil
}

func (s *Service) GetCircuit(ctx context.Context, id string) (Circuit, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, description, is_premium, created_at
		FROM circuits WHERE id=$1
	`, id)
	var c Circuit
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.IsPremium, &c.CreatedAt); err != nil {
		return Circuit{}, err
	}
	return c, nil
}

func (s *Service) AddPOI(ctx context.Context, input POI) (POI, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO circuit_pois (id, circuit_id, label, location, position)
		VALUES ($1,$2,$3, ST_SetSRID(ST_MakePoint($4,$5), 4326)::geography, $6)
		RETURNING created_at
	`, input.ID, input.CircuitID, input.Label, input.Lng, input.Lat, input.Order)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return POI{}, err
	}
	return input, nil
}

// POIs lists a circuit's points, ordered ones first by position.
func (s *Service) POIs(ctx context.Context, circuitID string) ([]POI, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, circuit_id, label, ST_Y(location::geometry), ST_X(location::geometry), position, created_at
		FROM circuit_pois WHERE circuit_id=$1
		ORDER BY position NULLS LAST, created_at
	`, circuitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pois []POI
	for rows.Next() {
		var p POI
		if err := rows.Scan(&p.ID, &p.CircuitID, &p.Label, &p.Lat, &p.Lng, &p.Order, &p.CreatedAt); err != nil {
			return nil, err
		}
		pois = append(pois, p)
	}
	return pois, rows.Err()
}

// Search returns circuits that have at least one POI within radiusKm.
func (s *Service) Search(ctx context.Context, lat, lng, radiusKm float64) ([]Circuit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT c.id, c.name, c.description, c.is_premium, c.created_at
		FROM circuits c
		JOIN circuit_pois p ON p.circuit_id = c.id
		WHERE ST_DWithin(p.location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3)
		ORDER BY c.created_at DESC
	`, lng, lat, radiusKm*1000)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Circuit
	for rows.Next() {
		var c Circuit
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsPremium, &c.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
