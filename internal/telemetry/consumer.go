package telemetry

import (
	"context"
	"errors"
	"fmt"

	"backend-ollana/internal/db"
	"backend-ollana/internal/metrics"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const DefaultSubBatchSize = 100

var ErrUnresolved = errors.New("batch references unknown entity")

var liveRecordColumns = []string{
	"user_id", "mountain_id", "path_id", "hiking_record_id", "seq",
	"total_time", "total_distance", "latitude", "longitude", "heart_rate",
}

// Consumer writes batches into hiking_live_records. It never retries: a
// returned error sends the original message to the dead-letter topic.
type Consumer struct {
	db       db.TxQuerier
	subBatch int
	log      zerolog.Logger
}

func NewConsumer(q db.TxQuerier, subBatch int, log zerolog.Logger) *Consumer {
	if subBatch <= 0 {
		subBatch = DefaultSubBatchSize
	}
	return &Consumer{db: q, subBatch: subBatch, log: log}
}

func (c *Consumer) Handle(msg *message.Message) error {
	ctx := msg.Context()
	b, err := Decode(msg.Payload)
	if err != nil {
		metrics.TelemetryBatches.WithLabelValues("ingest", "error").Inc()
		return err
	}

	log := c.log.With().
		Str("message_uuid", msg.UUID).
		Str("user_id", b.UserID).
		Int64("hiking_record_id", b.HikingRecordID).
		Logger()

	if err := c.resolve(ctx, b); err != nil {
		metrics.TelemetryBatches.WithLabelValues("ingest", "error").Inc()
		log.Error().Err(err).Msg("telemetry batch unresolved")
		return err
	}

	for _, w := range subBatches(len(b.Samples), c.subBatch) {
		if err := c.write(ctx, b, w[0], w[1]); err != nil {
			metrics.TelemetryBatches.WithLabelValues("ingest", "error").Inc()
			log.Error().Err(err).Int("from", w[0]).Int("to", w[1]).Msg("telemetry sub-batch failed")
			return fmt.Errorf("write samples %d-%d: %w", w[0], w[1], err)
		}
	}

	metrics.TelemetryBatches.WithLabelValues("ingest", "ok").Inc()
	log.Debug().Int("samples", len(b.Samples)).Msg("telemetry batch stored")
	return nil
}

func (c *Consumer) resolve(ctx context.Context, b Batch) error {
	var user, mountain, path, record bool
	err := c.db.QueryRow(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM users WHERE id=$1),
			EXISTS(SELECT 1 FROM mountains WHERE id=$2),
			EXISTS(SELECT 1 FROM paths WHERE id=$3 AND mountain_id=$2),
			EXISTS(SELECT 1 FROM hiking_records WHERE id=$4 AND user_id=$1)
	`, b.UserID, b.MountainID, b.PathID, b.HikingRecordID).Scan(&user, &mountain, &path, &record)
	if err != nil {
		return fmt.Errorf("resolve batch: %w", err)
	}

	switch {
	case !user:
		return fmt.Errorf("%w: user %s", ErrUnresolved, b.UserID)
	case !mountain:
		return fmt.Errorf("%w: mountain %d", ErrUnresolved, b.MountainID)
	case !path:
		return fmt.Errorf("%w: path %d", ErrUnresolved, b.PathID)
	case !record:
		return fmt.Errorf("%w: hiking record %d", ErrUnresolved, b.HikingRecordID)
	}
	return nil
}

func (c *Consumer) write(ctx context.Context, b Batch, from, to int) error {
	rows := make([][]any, 0, to-from)
	for i := from; i < to; i++ {
		s := b.Samples[i]
		rows = append(rows, []any{
			b.UserID, b.MountainID, b.PathID, b.HikingRecordID, i,
			s.Time, s.Distance, s.Lat, s.Lng, s.HeartRate,
		})
	}

	return db.WithTx(ctx, c.db, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"hiking_live_records"}, liveRecordColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return err
		}
		metrics.TelemetryRowsWritten.Add(float64(n))
		return nil
	})
}
