package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"backend-ollana/internal/config"
	"backend-ollana/internal/messaging"
	"backend-ollana/internal/server"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var errListen = errors.New("listen failed")

func testConfig() config.Config {
	return config.Config{ServerPort: ":0", JWTSecret: "secret", DLQMonitorInterval: time.Hour}
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testBroker() *messaging.Broker {
	return messaging.NewMemoryBroker(watermill.NopLogger{})
}

func TestRunHandlesSignal(t *testing.T) {
	signals := make(chan os.Signal, 1)

	listen := func(_ *fiber.App, _ string) error {
		signals <- syscall.SIGINT
		select {}
	}

	if err := Run(context.Background(), testConfig(), nil, testRedis(t), testBroker(), signals, listen); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRunContextCancel(t *testing.T) {
	signals := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blockingListen := func(_ *fiber.App, _ string) error { select {} }
	if err := Run(ctx, testConfig(), nil, testRedis(t), testBroker(), signals, blockingListen); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRunListenError(t *testing.T) {
	signals := make(chan os.Signal, 1)
	err := Run(context.Background(), testConfig(), nil, testRedis(t), testBroker(), signals, func(_ *fiber.App, _ string) error {
		return errListen
	})
	if !errors.Is(err, errListen) {
		t.Fatalf("expected listen error, got %v", err)
	}
}

func TestRunRequiresRedis(t *testing.T) {
	signals := make(chan os.Signal, 1)
	err := Run(context.Background(), testConfig(), nil, nil, nil, signals, nil)
	if !errors.Is(err, server.ErrRedisRequired) {
		t.Fatalf("expected redis required, got %v", err)
	}
}

func TestRunDefaultListen(t *testing.T) {
	signals := make(chan os.Signal, 1)

	oldListen := defaultListen
	defaultListen = func(_ *fiber.App, _ string) error { return nil }
	defer func() { defaultListen = oldListen }()

	if err := Run(context.Background(), testConfig(), nil, testRedis(t), nil, signals, nil); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRunShutdownError(t *testing.T) {
	signals := make(chan os.Signal, 1)

	oldShutdown := shutdownFn
	shutdownFn = func(_ *fiber.App, _ context.Context) error { return errListen }
	defer func() { shutdownFn = oldShutdown }()

	signals <- syscall.SIGINT
	blockingListen := func(_ *fiber.App, _ string) error { select {} }
	if err := Run(context.Background(), testConfig(), nil, testRedis(t), testBroker(), signals, blockingListen); !errors.Is(err, errListen) {
		t.Fatalf("expected shutdown error, got %v", err)
	}
}

func TestRealMainHandlesErrors(t *testing.T) {
	calledNotify := false
	calledRun := false
	deps := mainDeps{
		loadConfig:      func() config.Config { return testConfig() },
		connectPostgres: func(config.Config) (*pgxpool.Pool, error) { return nil, errListen },
		connectRedis:    func(config.Config) *redis.Client { return nil },
		connectBroker:   func(config.Config) (*messaging.Broker, error) { return nil, errListen },
		notify: func(ch chan<- os.Signal, _ ...os.Signal) {
			calledNotify = true
		},
		run: func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, *messaging.Broker, <-chan os.Signal, ListenFunc) error {
			calledRun = true
			return errListen
		},
	}

	realMain(deps)
	if !calledNotify || !calledRun {
		t.Fatalf("expected notify and run to be called")
	}
}

func TestDefaultDeps(t *testing.T) {
	deps := defaultDeps()
	if deps.loadConfig == nil || deps.connectPostgres == nil || deps.connectRedis == nil ||
		deps.connectBroker == nil || deps.notify == nil || deps.run == nil {
		t.Fatalf("expected default deps to be set")
	}
	b, err := deps.connectBroker(config.Config{Broker: messaging.BrokerMemory})
	if err != nil {
		t.Fatalf("memory broker: %v", err)
	}
	_ = b.Close()
}

func TestMainUsesOverrides(t *testing.T) {
	oldProvider := mainDepsProvider
	oldRunner := mainRunner
	defer func() {
		mainDepsProvider = oldProvider
		mainRunner = oldRunner
	}()

	called := false
	mainDepsProvider = func() mainDeps { return mainDeps{} }
	mainRunner = func(mainDeps) { called = true }

	main()
	if !called {
		t.Fatalf("expected main runner to be called")
	}
}
