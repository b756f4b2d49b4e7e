package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend-ollana/internal/auth"
	"backend-ollana/internal/config"
	"backend-ollana/internal/messaging"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) (*Server, pgxmock.PgxPoolIface) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	broker := messaging.NewMemoryBroker(watermill.NopLogger{})
	t.Cleanup(func() { _ = broker.Close() })

	s, err := NewServer(config.Config{JWTSecret: "secret", ServerPort: ":0", DLQMonitorInterval: time.Hour}, mock, rdb, broker)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s, mock
}

func request(t *testing.T, s *Server, method, path, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	if status, _ := request(t, s, http.MethodGet, "/health", ""); status != http.StatusOK {
		t.Fatalf("expected 200 for health, got %d", status)
	}
	status, body := request(t, s, http.MethodGet, "/metrics", "")
	if status != http.StatusOK || !strings.Contains(body, "go_goroutines") {
		t.Fatalf("unexpected metrics response %d", status)
	}
}

func TestNewServerRequiresRedis(t *testing.T) {
	if _, err := NewServer(config.Config{}, nil, nil, nil); !errors.Is(err, ErrRedisRequired) {
		t.Fatalf("expected redis required, got %v", err)
	}
}

func TestTrackingRoutesRequireToken(t *testing.T) {
	s, _ := newTestServer(t)
	status, body := request(t, s, http.MethodGet, "/tracking/status", "")
	if status != http.StatusUnauthorized || !strings.Contains(body, `"code":"UNAUTHORIZED"`) {
		t.Fatalf("expected 401, got %d %s", status, body)
	}

	token, _ := auth.Sign("secret", "user-1", "", time.Hour)
	status, body = request(t, s, http.MethodGet, "/tracking/status", token)
	if status != http.StatusOK || !strings.Contains(body, `"isTracking":false`) {
		t.Fatalf("status: %d %s", status, body)
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	s, mock := newTestServer(t)

	user, _ := auth.Sign("secret", "user-1", "", time.Hour)
	if status, _ := request(t, s, http.MethodGet, "/admin/dead-letters", user); status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", status)
	}

	mock.ExpectQuery(`FROM telemetry_dead_letters`).WithArgs(false, 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "message_uuid", "user_id", "hiking_record_id", "sample_count", "reason", "payload", "created_at", "replayed_at"}))
	admin, _ := auth.Sign("secret", "ops", auth.RoleAdmin, time.Hour)
	status, body := request(t, s, http.MethodGet, "/admin/dead-letters", admin)
	if status != http.StatusOK || !strings.Contains(body, `"deadLetters":[]`) {
		t.Fatalf("admin list: %d %s", status, body)
	}
}

func TestServicesRunUnderSupervisor(t *testing.T) {
	s, _ := newTestServer(t)
	services := s.Services()
	if len(services) != 3 {
		t.Fatalf("expected 3 services, got %d", len(services))
	}

	sup := messaging.NewSupervisor("test", zerolog.Nop())
	for _, svc := range services {
		sup.Add(svc)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errs := sup.ServeBackground(ctx)

	select {
	case <-s.Stream.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("stream hub did not start")
	}

	cancel()
	select {
	case <-errs:
	case <-time.After(5 * time.Second):
		t.Fatalf("supervisor did not stop")
	}
}
