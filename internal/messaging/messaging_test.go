package messaging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"backend-ollana/internal/config"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/thejerf/suture/v4"
)

type failingPublisher struct {
	calls atomic.Int32
}

func (p *failingPublisher) Publish(string, ...*message.Message) error {
	p.calls.Add(1)
	return errors.New("broker down")
}

func (p *failingPublisher) Close() error { return nil }

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(zerolog.New(&buf)).With(watermill.LogFields{"handler": "telemetry"})
	log.Error("handler failed", errors.New("boom"), watermill.LogFields{"message_uuid": "m-1"})

	out := buf.String()
	for _, want := range []string{`"handler":"telemetry"`, `"message_uuid":"m-1"`, `"error":"boom"`, `"message":"handler failed"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestBreakerPublisherTrips(t *testing.T) {
	next := &failingPublisher{}
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 2
	pub := NewBreakerPublisher(next, cfg, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if err := pub.Publish("topic", message.NewMessage(watermill.NewUUID(), nil)); err == nil || IsOpen(err) {
			t.Fatalf("expected broker error, got %v", err)
		}
	}
	if pub.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", pub.State())
	}

	err := pub.Publish("topic", message.NewMessage(watermill.NewUUID(), nil))
	if !IsOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if next.calls.Load() != 2 {
		t.Fatalf("open breaker must not reach the broker, got %d calls", next.calls.Load())
	}
}

func TestNewBrokerSelectsBackend(t *testing.T) {
	logger := watermill.NopLogger{}
	b, err := NewBroker(config.Config{Broker: BrokerMemory}, logger)
	if err != nil {
		t.Fatalf("memory broker: %v", err)
	}
	defer b.Close()

	if _, err := NewBroker(config.Config{Broker: "kafka"}, logger); err == nil {
		t.Fatalf("expected unknown broker error")
	}
}

func TestRouterServiceDeliversAndStops(t *testing.T) {
	broker := NewMemoryBroker(watermill.NopLogger{})
	defer broker.Close()

	received := make(chan string, 1)
	register := func(r *message.Router) error {
		r.AddConsumerHandler("echo", "topic", broker.Subscriber, func(msg *message.Message) error {
			received <- string(msg.Payload)
			return nil
		})
		return nil
	}

	built := make(chan *message.Router, 1)
	svc := NewRouterService("echo-router", func() (*message.Router, error) {
		r, err := NewRouter(watermill.NopLogger{}, register)
		if err == nil {
			built <- r
		}
		return r, err
	})
	if svc.String() != "echo-router" {
		t.Fatalf("unexpected name %s", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case r := <-built:
		select {
		case <-r.Running():
		case <-time.After(time.Second):
			t.Fatalf("router did not start")
		}
	case <-time.After(time.Second):
		t.Fatalf("router was not built")
	}

	if err := broker.Publisher.Publish("topic", message.NewMessage(watermill.NewUUID(), []byte("hello"))); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-received:
		if got != "hello" {
			t.Fatalf("unexpected payload %s", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("message not delivered")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("service did not stop")
	}
}

func TestRouterServiceBuildError(t *testing.T) {
	svc := NewRouterService("broken", func() (*message.Router, error) {
		return nil, errors.New("no broker")
	})
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatalf("expected build error")
	}
}

func TestEventHookLogs(t *testing.T) {
	var buf bytes.Buffer
	hook := EventHook(zerolog.New(&buf))
	hook(suture.EventBackoff{SupervisorName: "workers"})

	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), "workers") {
		t.Fatalf("unexpected hook output %s", buf.String())
	}
}

func TestValidateTopic(t *testing.T) {
	for _, topic := range []string{"hiking-records", "hiking-records-dlq", "battle-outcomes"} {
		if err := ValidateTopic(topic); err != nil {
			t.Fatalf("expected %q to be valid, got %v", topic, err)
		}
	}
	for _, topic := range []string{"", "hiking-records.dlq", "a b", "events.*", "events>", "a/b"} {
		if err := ValidateTopic(topic); !errors.Is(err, ErrInvalidTopic) {
			t.Fatalf("expected ErrInvalidTopic for %q, got %v", topic, err)
		}
	}
}
