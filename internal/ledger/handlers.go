package ledger

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var req StartRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if uid := userID(c); uid != "" {
			req.UserID = uid
		}
		if req.CircuitID == "" || req.UserID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "circuitId and userId required")
		}
		route, err := svc.StartRoute(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"routeId": route.ID, "route": route})
	})

	r.Post("/trace", authMiddleware, func(c *fiber.Ctx) error {
		var req TraceRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.RouteID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "routeId required")
		}
		result, err := svc.AppendTrace(c.Context(), userID(c), req)
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Post("/remove-poi", authMiddleware, func(c *fiber.Ctx) error {
		req, err := parsePOIRequest(c)
		if err != nil {
			return err
		}
		result, err := svc.RemovePOI(c.Context(), userID(c), req)
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Post("/restore-poi", authMiddleware, func(c *fiber.Ctx) error {
		req, err := parsePOIRequest(c)
		if err != nil {
			return err
		}
		result, err := svc.RestorePOI(c.Context(), userID(c), req)
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		route, err := svc.RouteFor(c.Context(), c.Params("id"), userID(c))
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.JSON(route)
	})
}

func parsePOIRequest(c *fiber.Ctx) (POIRequest, error) {
	var req POIRequest
	if err := c.BodyParser(&req); err != nil {
		return POIRequest{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if req.RouteID == "" || req.POIID == "" {
		return POIRequest{}, fiber.NewError(fiber.StatusBadRequest, "routeId and poiId required")
	}
	return req, nil
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrRouteNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrRouteCompleted):
		return fiber.StatusConflict
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrUnknownPOI), errors.Is(err, ErrInvalidZone):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
