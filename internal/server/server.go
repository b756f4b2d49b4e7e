package server

import (
	"errors"

	"backend-ollana/internal/auth"
	"backend-ollana/internal/catalog"
	"backend-ollana/internal/config"
	"backend-ollana/internal/db"
	"backend-ollana/internal/guard"
	"backend-ollana/internal/history"
	"backend-ollana/internal/logging"
	"backend-ollana/internal/messaging"
	"backend-ollana/internal/outcome"
	"backend-ollana/internal/shared/apierr"
	"backend-ollana/internal/stream"
	"backend-ollana/internal/telemetry"
	"backend-ollana/internal/tracking"
	"backend-ollana/internal/users"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/thejerf/suture/v4"
)

var ErrRedisRequired = errors.New("redis is required for tracking guards")

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.TxQuerier
	Redis  *redis.Client
	Broker *messaging.Broker
	Stream *stream.Hub

	Catalog     *catalog.Service
	Tracking    *tracking.Service
	DeadLetters *telemetry.DeadLetterStore
	Replayer    *telemetry.Replayer

	consumer *telemetry.Consumer
	sink     *telemetry.DeadLetterSink
	outcomes *outcome.Handler
}

func NewServer(cfg config.Config, pg db.TxQuerier, redisClient *redis.Client, broker *messaging.Broker) (*Server, error) {
	if redisClient == nil {
		return nil, ErrRedisRequired
	}
	if broker == nil {
		broker = messaging.NewMemoryBroker(messaging.NewLogger(logging.Component("watermill")))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: apierr.Handler,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pg,
		Redis:  redisClient,
		Broker: broker,
		Stream: stream.NewHub(redisClient, logging.Component("stream")),
	}
	s.wire()
	registerRoutes(s)
	return s, nil
}

func (s *Server) wire() {
	s.Catalog = catalog.NewService(s.DB, s.Cfg.NearbyRadiusM)
	historySvc := history.NewService(s.DB)

	pubLog := logging.Component("publisher")
	recordsPub := messaging.NewBreakerPublisher(s.Broker.Publisher, messaging.DefaultBreakerConfig("telemetry-publisher"), pubLog)
	outcomesPub := messaging.NewBreakerPublisher(s.Broker.Publisher, messaging.DefaultBreakerConfig("outcome-publisher"), pubLog)

	s.DeadLetters = telemetry.NewDeadLetterStore(s.DB)
	s.Replayer = telemetry.NewReplayer(s.DeadLetters, recordsPub, logging.Component("dead-letters"))
	s.consumer = telemetry.NewConsumer(s.DB, s.Cfg.TelemetrySubBatch, logging.Component("telemetry"))
	s.sink = telemetry.NewDeadLetterSink(s.DeadLetters, logging.Component("dead-letters"))
	s.outcomes = outcome.NewHandler(historySvc, outcome.NewStore(s.DB), s.Stream, logging.Component("outcome"))

	s.Tracking = tracking.NewService(tracking.Deps{
		DB:        s.DB,
		Catalog:   s.Catalog,
		Guards:    guard.NewStore(s.Redis, s.Cfg.GuardTTL),
		Users:     users.NewService(s.DB),
		Records:   historySvc,
		Telemetry: telemetry.NewSubmitter(recordsPub, logging.Component("telemetry")),
		Outcomes:  outcome.NewPublisher(outcomesPub),
	}, tracking.Config{
		ArrivalThresholdM: s.Cfg.ArrivalThresholdM,
		NearbyRadiusM:     s.Cfg.NearbyRadiusM,
	}, logging.Component("tracking"))
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	trackingGroup := s.App.Group("/tracking")
	catalog.RegisterRoutes(trackingGroup, s.Catalog, jwtMiddleware)
	tracking.RegisterRoutes(trackingGroup, s.Tracking, jwtMiddleware)

	admin := s.App.Group("/admin", jwtMiddleware, auth.RequireRole(auth.RoleAdmin))
	telemetry.RegisterRoutes(admin, s.DeadLetters, s.Replayer, func(c *fiber.Ctx) error { return c.Next() })

	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware)
}

// Services returns the background workers to run under a supervisor.
func (s *Server) Services() []suture.Service {
	wmLogger := messaging.NewLogger(logging.Component("watermill"))

	return []suture.Service{
		messaging.NewRouterService("message-router", func() (*message.Router, error) {
			return messaging.NewRouter(wmLogger,
				telemetry.Registrar(s.Broker.Subscriber, s.Broker.Publisher, s.consumer, s.sink),
				outcome.Registrar(s.Broker.Subscriber, s.outcomes),
			)
		}),
		s.Stream,
		telemetry.NewMonitor(s.DeadLetters, s.Cfg.DLQMonitorInterval, logging.Component("dead-letter-monitor")),
	}
}
