package stream

import (
	"context"
	"errors"
	"log"

	"backend-tourguide/internal/ledger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RouteOwners resolves the user a route belongs to. *ledger.Service
// satisfies it.
type RouteOwners interface {
	Owner(ctx context.Context, routeID string) (string, error)
}

// RegisterRoutes exposes the navigation event stream of a route at
// /ws/:routeID. Only the route's owner may subscribe; each connection receives
// the JSON events broadcast for that route until it closes.
func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler, owners RouteOwners) {
	r.Use("/ws", authMiddleware, func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})

	r.Get("/ws/:routeID", func(c *fiber.Ctx) error {
		owner, err := owners.Owner(c.Context(), c.Params("routeID"))
		switch {
		case errors.Is(err, ledger.ErrRouteNotFound):
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if uid, _ := c.Locals("user_id").(string); uid == "" || uid != owner {
			return fiber.NewError(fiber.StatusForbidden, ledger.ErrForbidden.Error())
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		routeID := c.Params("routeID")
		userID, _ := c.Locals("user_id").(string)
		client := hub.Register(routeID)
		defer hub.Unregister(client)
		log.Printf("stream: %s subscribed to route %s", userID, routeID)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}
