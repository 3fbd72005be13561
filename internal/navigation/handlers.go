package navigation

import (
	"errors"

	"backend-tourguide/internal/ledger"
	"backend-tourguide/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

type startRequest struct {
	RouteID string `json:"routeId"`
}

type fixRequest struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	AccuracyM   float64 `json:"accuracyM"`
	TimestampMs int64   `json:"timestampMs"`
}

type signalRequest struct {
	Reason string `json:"reason"`
}

func RegisterRoutes(r fiber.Router, mgr *Manager, authMiddleware fiber.Handler) {
	g := r.Group("/sessions", authMiddleware)

	g.Post("/", func(c *fiber.Ctx) error {
		var req startRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.RouteID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "routeId required")
		}
		snap, err := mgr.Start(c.Context(), req.RouteID, userID(c))
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	g.Get("/:routeID", func(c *fiber.Ctx) error {
		s, err := session(c, mgr)
		if err != nil {
			return err
		}
		snap, err := s.Snapshot()
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.JSON(snap)
	})

	g.Delete("/:routeID", func(c *fiber.Ctx) error {
		if err := mgr.Stop(c.Params("routeID"), userID(c)); err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	g.Post("/:routeID/fixes", func(c *fiber.Ctx) error {
		var req fixRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
			return fiber.NewError(fiber.StatusBadRequest, "coordinates out of range")
		}
		s, err := session(c, mgr)
		if err != nil {
			return err
		}
		p := geo.Point{Lat: req.Latitude, Lng: req.Longitude, AccuracyM: req.AccuracyM, TimestampMillis: req.TimestampMs}
		return respond(c, s.Fix(p))
	})

	g.Post("/:routeID/signal-lost", func(c *fiber.Ctx) error {
		var req signalRequest
		_ = c.BodyParser(&req)
		s, err := session(c, mgr)
		if err != nil {
			return err
		}
		return respond(c, s.SignalLost(req.Reason))
	})

	g.Post("/:routeID/pois/:poiID/remove", func(c *fiber.Ctx) error {
		s, err := session(c, mgr)
		if err != nil {
			return err
		}
		return respond(c, s.RemovePOI(c.Params("poiID")))
	})

	g.Post("/:routeID/pois/:poiID/restore", func(c *fiber.Ctx) error {
		s, err := session(c, mgr)
		if err != nil {
			return err
		}
		return respond(c, s.RestorePOI(c.Params("poiID")))
	})

	g.Post("/:routeID/reroute", func(c *fiber.Ctx) error {
		s, err := session(c, mgr)
		if err != nil {
			return err
		}
		return respond(c, s.Reroute())
	})
}

func session(c *fiber.Ctx, mgr *Manager) (*Session, error) {
	s, err := mgr.Get(c.Params("routeID"), userID(c))
	if err != nil {
		return nil, fiber.NewError(statusFor(err), err.Error())
	}
	return s, nil
}

func respond(c *fiber.Ctx, err error) error {
	if err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ledger.ErrRouteNotFound), errors.Is(err, ErrUnknownPOI):
		return fiber.StatusNotFound
	case errors.Is(err, ledger.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ledger.ErrRouteCompleted), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotReady):
		return fiber.StatusConflict
	case errors.Is(err, ErrSessionClosed):
		return fiber.StatusGone
	default:
		return fiber.StatusInternalServerError
	}
}
