package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-ollana/internal/config"
	"backend-ollana/internal/db"
	"backend-ollana/internal/logging"
	"backend-ollana/internal/messaging"
	"backend-ollana/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	connectBroker   func(config.Config) (*messaging.Broker, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, *messaging.Broker, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		connectBroker: func(cfg config.Config) (*messaging.Broker, error) {
			return messaging.NewBroker(cfg, messaging.NewLogger(logging.Component("watermill")))
		},
		notify: signal.Notify,
		run:    Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logging.Component("main")

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Error().Err(err).Msg("postgres connection failed")
	}

	rdb := deps.connectRedis(cfg)
	if rdb != nil {
		if err := db.PingRedis(context.Background(), rdb); err != nil {
			log.Error().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed")
		}
	}

	broker, err := deps.connectBroker(cfg)
	if err != nil {
		log.Error().Err(err).Str("broker", cfg.Broker).Msg("broker connection failed")
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, broker, signals, nil); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and the supervised workers, then waits for a
// termination signal.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, broker *messaging.Broker, signals <-chan os.Signal, listen ListenFunc) error {
	log := logging.Component("main")

	var querier db.TxQuerier
	if pg != nil {
		querier = pg
	}
	srv, err := server.NewServer(cfg, querier, rdb, broker)
	if err != nil {
		if pg != nil {
			pg.Close()
		}
		return err
	}

	if listen == nil {
		listen = defaultListen
	}

	sup := messaging.NewSupervisor("ollana", logging.Component("supervisor"))
	for _, svc := range srv.Services() {
		sup.Add(svc)
	}
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	workerErrs := sup.ServeBackground(workerCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	var runErr error
	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}

	stopWorkers()
	select {
	case err := <-workerErrs:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("workers stopped with error")
		}
	case <-shutdownCtx.Done():
		log.Warn().Msg("workers did not stop in time")
	}

	if err := srv.Broker.Close(); err != nil {
		log.Warn().Err(err).Msg("broker close")
	}
	if pg != nil {
		pg.Close()
	}
	_ = rdb.Close()
	return runErr
}
