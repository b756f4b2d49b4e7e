// Package messaging builds the durable channel used by the telemetry and outcome workers.
package messaging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"backend-ollana/internal/config"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
)

const (
	BrokerMemory = "memory"
	BrokerNATS   = "nats"
)

// ErrInvalidTopic is returned for topics JetStream cannot use as a stream name.
var ErrInvalidTopic = errors.New("invalid topic")

// ValidateTopic checks a topic against the JetStream stream name rules, since
// AutoProvision names the stream after the topic.
func ValidateTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, ". *>/\\\t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return nil
}

// Broker pairs the publisher and subscriber of one backend.
type Broker struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	closers    []func() error
}

func (b *Broker) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewBroker returns the backend selected by cfg.Broker.
func NewBroker(cfg config.Config, logger watermill.LoggerAdapter) (*Broker, error) {
	switch cfg.Broker {
	case "", BrokerMemory:
		return NewMemoryBroker(logger), nil
	case BrokerNATS:
		return NewNATSBroker(cfg.NATSURL, cfg.NATSQueueGroup, logger)
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

// NewMemoryBroker keeps messages in process. Used by tests and single-node setups.
func NewMemoryBroker(logger watermill.LoggerAdapter) *Broker {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
	return &Broker{
		Publisher:  ch,
		Subscriber: ch,
		closers:    []func() error{ch.Close},
	}
}

// NewNATSBroker connects a JetStream publisher and a durable queue subscriber.
func NewNATSBroker(url, queueGroup string, logger watermill.LoggerAdapter) (*Broker, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: queueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: queueGroup,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.DeliverAll(),
				natsgo.AckExplicit(),
			},
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}

	return &Broker{
		Publisher:  pub,
		Subscriber: sub,
		closers:    []func() error{sub.Close, pub.Close},
	}, nil
}
