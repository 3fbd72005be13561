package server

import (
	"backend-tourguide/internal/auth"
	"backend-tourguide/internal/award"
	"backend-tourguide/internal/circuit"
	"backend-tourguide/internal/config"
	"backend-tourguide/internal/ledger"
	"backend-tourguide/internal/navigation"
	"backend-tourguide/internal/routing"
	"backend-tourguide/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App        *fiber.App
	Cfg        config.Config
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Stream     *stream.Hub
	Navigation *navigation.Manager
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

// Close ends every navigation session and stops the stream hub.
func (s *Server) Close() {
	if s.Navigation != nil {
		s.Navigation.Shutdown()
	}
	s.Stream.Close()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	circuits := circuit.NewService(s.DB)
	awards := award.NewService(s.DB)
	ledgerSvc := ledger.NewService(s.DB, circuits, awards).WithZone(s.Cfg.AwardLocation())
	router := routing.NewClient(s.Cfg.RoutingURL, s.Cfg.RoutingProfile, s.Cfg.RoutingTimeout(), s.Redis, s.Cfg.RoutingCacheTTL())
	s.Navigation = navigation.NewManager(navigation.SettingsFromConfig(s.Cfg), router, ledgerSvc, s.Stream)

	circuit.RegisterRoutes(s.App.Group("/circuits"), circuits, jwtMiddleware)
	ledger.RegisterRoutes(s.App.Group("/routes"), ledgerSvc, jwtMiddleware)
	award.RegisterRoutes(s.App.Group("/awards"), awards, jwtMiddleware)
	navigation.RegisterRoutes(s.App.Group("/navigation"), s.Navigation, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware, ledgerSvc)
}
