package award

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-tourguide/internal/db"

	"github.com/google/uuid"
)

// Service grants points. Every grant is keyed by (user, activity, threshold,
// ref) so replays never award twice.
type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// AwardVisit grants the base visit points for routeID/poiID, then any visit
// milestones reached and the time-of-day and weekend bonuses. It returns the
// points newly granted by this call.
func (s *Service) AwardVisit(ctx context.Context, userID, routeID, poiID string, at time.Time) (int, error) {
	ref := routeID + ":" + poiID
	granted, err := s.grant(ctx, userID, ActivityVisit, 0, ref, VisitPoints)
	if err != nil {
		return 0, err
	}
	if !granted {
		return 0, nil
	}
	total := VisitPoints

	var errs []error
	count, err := s.count(ctx, userID, ActivityVisit)
	if err != nil {
		errs = append(errs, err)
	} else {
		pts, err := s.milestones(ctx, userID, ActivityVisitMilestone, VisitMilestones, count)
		total += pts
		if err != nil {
			errs = append(errs, err)
		}
	}

	for _, bonus := range visitBonuses(at) {
		ok, err := s.grant(ctx, userID, bonus.activity, 0, ref, bonus.points)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			total += bonus.points
		}
	}
	return total, errors.Join(errs...)
}

// AwardCompletion grants the completion bonus for routeID and any circuit
// completion milestones reached.
func (s *Service) AwardCompletion(ctx context.Context, userID, routeID string, premium bool) (int, error) {
	points := RegularCompletionPoints
	if premium {
		points = PremiumCompletionPoints
	}
	granted, err := s.grant(ctx, userID, ActivityCompletion, 0, routeID, points)
	if err != nil {
		return 0, err
	}
	if !granted {
		return 0, nil
	}

	count, err := s.count(ctx, userID, ActivityCompletion)
	if err != nil {
		return points, err
	}
	pts, err := s.milestones(ctx, userID, ActivityCompletionMilestone, CompletionMilestones, count)
	return points + pts, err
}

// Total returns the user's accumulated points.
func (s *Service) Total(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0)::int FROM point_awards WHERE user_id=$1
	`, userID).Scan(&total)
	return total, err
}

func (s *Service) milestones(ctx context.Context, userID, activity string, table []Milestone, count int) (int, error) {
	total := 0
	var errs []error
	for _, m := range table {
		if count < m.Threshold {
			break
		}
		ok, err := s.grant(ctx, userID, activity, m.Threshold, "", m.Points)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			total += m.Points
		}
	}
	return total, errors.Join(errs...)
}

func (s *Service) grant(ctx context.Context, userID, activity string, threshold int, ref string, points int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO point_awards (id, user_id, activity, threshold, ref, points)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id, activity, threshold, ref) DO NOTHING
	`, uuid.NewString(), userID, activity, threshold, ref, points)
	if err != nil {
		return false, fmt.Errorf("award %s: %w", activity, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Service) count(ctx context.Context, userID, activity string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)::int FROM point_awards WHERE user_id=$1 AND activity=$2
	`, userID, activity).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", activity, err)
	}
	return n, nil
}

type bonus struct {
	activity string
	points   int
}

func visitBonuses(at time.Time) []bonus {
	var out []bonus
	switch h := at.Hour(); {
	case h >= 22 || h < 5:
		out = append(out, bonus{ActivityNightVisit, NightBonusPoints})
	case h < 8:
		out = append(out, bonus{ActivityEarlyBirdVisit, EarlyBirdBonusPoints})
	}
	if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
		out = append(out, bonus{ActivityWeekendVisit, WeekendBonusPoints})
	}
	return out
}
