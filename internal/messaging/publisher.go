package messaging

import (
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerPublisher fails fast while the broker keeps rejecting publishes.
type BreakerPublisher struct {
	next message.Publisher
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerPublisher(next message.Publisher, cfg BreakerConfig, log zerolog.Logger) *BreakerPublisher {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("publisher breaker state changed")
		},
	})
	return &BreakerPublisher{next: next, cb: cb}
}

func (p *BreakerPublisher) Publish(topic string, msgs ...*message.Message) error {
	_, err := p.cb.Execute(func() (any, error) {
		return nil, p.next.Publish(topic, msgs...)
	})
	return err
}

func (p *BreakerPublisher) Close() error {
	return p.next.Close()
}

func (p *BreakerPublisher) State() gobreaker.State {
	return p.cb.State()
}

// IsOpen reports whether err came from a tripped breaker rather than the broker.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
