package telemetry

import (
	"context"
	"fmt"

	"backend-ollana/internal/metrics"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// Submitter hands batches to the durable channel. Submit returns once the
// broker accepted the message; rows are written later by the Consumer.
type Submitter struct {
	pub message.Publisher
	log zerolog.Logger
}

func NewSubmitter(pub message.Publisher, log zerolog.Logger) *Submitter {
	return &Submitter{pub: pub, log: log}
}

func (s *Submitter) Submit(ctx context.Context, b Batch) error {
	msg, err := NewMessage(b)
	if err != nil {
		metrics.TelemetryBatches.WithLabelValues("submit", "error").Inc()
		return err
	}
	msg.SetContext(ctx)

	if err := s.pub.Publish(TopicRecords, msg); err != nil {
		metrics.TelemetryBatches.WithLabelValues("submit", "error").Inc()
		return fmt.Errorf("publish batch for record %d: %w", b.HikingRecordID, err)
	}

	metrics.TelemetryBatches.WithLabelValues("submit", "ok").Inc()
	s.log.Debug().
		Str("message_uuid", msg.UUID).
		Str("user_id", b.UserID).
		Int64("hiking_record_id", b.HikingRecordID).
		Int("samples", len(b.Samples)).
		Msg("telemetry batch submitted")
	return nil
}
