package navigation

import (
	"context"
	"errors"
	"log"

	"backend-tourguide/internal/ledger"
	"backend-tourguide/internal/shared/geo"
)

type commandResult struct {
	completed bool
	points    int
}

// command is a local state transition that needs a ledger write. apply runs
// optimistically; rollback undoes it when the write fails.
type command interface {
	name() string
	apply(n *Navigator) error
	write(ctx context.Context, l Ledger, routeID, userID string) (commandResult, error)
	rollback(n *Navigator)
	confirm(n *Navigator, res commandResult)
}

func (n *Navigator) run(cmd command) error {
	if err := cmd.apply(n); err != nil {
		return err
	}
	l, routeID, userID := n.ledger, n.routeID, n.userID
	n.sched.Go(func(ctx context.Context) func() {
		res, err := cmd.write(ctx, l, routeID, userID)
		return func() { n.settle(cmd, res, err) }
	})
	return nil
}

func (n *Navigator) settle(cmd command, res commandResult, err error) {
	if n.closed {
		return
	}
	switch {
	case errors.Is(err, ledger.ErrRouteCompleted):
		log.Printf("navigation: route %s completed elsewhere, %s dropped", n.routeID, cmd.name())
		n.complete()
	case err != nil:
		log.Printf("navigation: %s write failed for route %s: %v", cmd.name(), n.routeID, err)
		cmd.rollback(n)
	default:
		n.pointsAwarded += res.points
		cmd.confirm(n, res)
		if res.completed {
			n.complete()
		}
	}
}

type visitCommand struct {
	poiID string
	at    geo.Point
	prev  VisitState
}

func (c *visitCommand) name() string { return "visit" }

func (c *visitCommand) apply(n *Navigator) error {
	prev, err := n.detector.Commit(c.poiID)
	if err != nil {
		return err
	}
	c.prev = prev
	n.stopDwellTimer(c.poiID)
	n.publish(EventVisited, POIEvent{POIID: c.poiID})
	n.split()
	return nil
}

func (c *visitCommand) write(ctx context.Context, l Ledger, routeID, userID string) (commandResult, error) {
	res, err := l.AppendTrace(ctx, userID, ledger.TraceRequest{
		RouteID:   routeID,
		Latitude:  c.at.Lat,
		Longitude: c.at.Lng,
		POIs:      []string{c.poiID},
	})
	return commandResult{completed: res.IsRouteCompleted, points: res.PointsAwarded}, err
}

func (c *visitCommand) rollback(n *Navigator) {
	n.detector.Revert(c.poiID, n.sched.Now())
	n.startDwellTimer(c.poiID)
	n.publish(EventVisitReverted, POIEvent{POIID: c.poiID})
	n.split()
}

func (c *visitCommand) confirm(n *Navigator, res commandResult) {
	n.detector.Confirm(c.poiID)
	n.publish(EventVisitConfirmed, POIEvent{POIID: c.poiID, PointsAwarded: res.points})
}

type removeCommand struct {
	poiID string
	prev  VisitState
}

func (c *removeCommand) name() string { return "removal" }

func (c *removeCommand) apply(n *Navigator) error {
	prev, err := n.detector.Remove(c.poiID)
	if err != nil {
		return err
	}
	c.prev = prev
	n.stopDwellTimer(c.poiID)
	n.publish(EventPOIRemoved, POIEvent{POIID: c.poiID})
	n.split()
	return nil
}

func (c *removeCommand) write(ctx context.Context, l Ledger, routeID, userID string) (commandResult, error) {
	res, err := l.RemovePOI(ctx, userID, ledger.POIRequest{RouteID: routeID, POIID: c.poiID})
	return commandResult{completed: res.IsRouteCompleted, points: res.PointsAwarded}, err
}

func (c *removeCommand) rollback(n *Navigator) {
	n.detector.Set(c.poiID, c.prev)
	if c.prev.Status == Dwelling {
		n.startDwellTimer(c.poiID)
	}
	n.publish(EventRemovalReverted, POIEvent{POIID: c.poiID})
	n.split()
}

func (c *removeCommand) confirm(*Navigator, commandResult) {}

type restoreCommand struct {
	poiID string
	prev  VisitState
}

func (c *restoreCommand) name() string { return "restore" }

func (c *restoreCommand) apply(n *Navigator) error {
	prev, err := n.detector.Restore(c.poiID)
	if err != nil {
		return err
	}
	c.prev = prev
	n.publish(EventPOIRestored, POIEvent{POIID: c.poiID})
	n.split()
	return nil
}

func (c *restoreCommand) write(ctx context.Context, l Ledger, routeID, userID string) (commandResult, error) {
	res, err := l.RestorePOI(ctx, userID, ledger.POIRequest{RouteID: routeID, POIID: c.poiID})
	return commandResult{completed: res.IsRouteCompleted, points: res.PointsAwarded}, err
}

func (c *restoreCommand) rollback(n *Navigator) {
	n.detector.Set(c.poiID, c.prev)
	n.publish(EventRestoreReverted, POIEvent{POIID: c.poiID})
	n.split()
}

func (c *restoreCommand) confirm(*Navigator, commandResult) {}
