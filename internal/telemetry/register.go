package telemetry

import (
	"fmt"

	"backend-ollana/internal/messaging"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// Registrar adds the ingest handler and the dead-letter sink to a router.
// The ingest handler has no retry: a failed batch goes to TopicDeadLetters
// whole, with the failure reason in its metadata.
func Registrar(sub message.Subscriber, pub message.Publisher, consumer *Consumer, sink *DeadLetterSink) messaging.Registrar {
	return func(r *message.Router) error {
		for _, topic := range []string{TopicRecords, TopicDeadLetters} {
			if err := messaging.ValidateTopic(topic); err != nil {
				return err
			}
		}

		poison, err := middleware.PoisonQueue(pub, TopicDeadLetters)
		if err != nil {
			return fmt.Errorf("poison queue: %w", err)
		}

		ingest := r.AddConsumerHandler("telemetry-ingest", TopicRecords, sub, consumer.Handle)
		ingest.AddMiddleware(poison)

		r.AddConsumerHandler("telemetry-dead-letters", TopicDeadLetters, sub, sink.Handle)
		return nil
	}
}
