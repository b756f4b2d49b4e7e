package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"backend-ollana/internal/db"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

var (
	ErrDeadLetterNotFound = errors.New("dead letter not found")
	ErrAlreadyReplayed    = errors.New("dead letter already replayed")
)

type DeadLetter struct {
	ID             int64      `json:"id"`
	MessageUUID    string     `json:"messageUuid"`
	UserID         string     `json:"userId"`
	HikingRecordID int64      `json:"hikingRecordId"`
	SampleCount    int        `json:"sampleCount"`
	Reason         string     `json:"reason"`
	Payload        []byte     `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReplayedAt     *time.Time `json:"replayedAt,omitempty"`
}

// DeadLetterStore keeps poisoned batches in telemetry_dead_letters.
type DeadLetterStore struct {
	db db.Querier
}

func NewDeadLetterStore(q db.Querier) *DeadLetterStore {
	return &DeadLetterStore{db: q}
}

// Save is idempotent on the message uuid so a redelivered poison message is stored once.
func (s *DeadLetterStore) Save(ctx context.Context, dl DeadLetter) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO telemetry_dead_letters (message_uuid, user_id, hiking_record_id, sample_count, reason, payload)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (message_uuid) DO NOTHING
	`, dl.MessageUUID, dl.UserID, dl.HikingRecordID, dl.SampleCount, dl.Reason, dl.Payload)
	if err != nil {
		return fmt.Errorf("save dead letter %s: %w", dl.MessageUUID, err)
	}
	return nil
}

const deadLetterColumns = `id, message_uuid, user_id, hiking_record_id, sample_count, reason, payload, created_at, replayed_at`

func (s *DeadLetterStore) Get(ctx context.Context, id int64) (DeadLetter, error) {
	var dl DeadLetter
	err := s.db.QueryRow(ctx, `SELECT `+deadLetterColumns+` FROM telemetry_dead_letters WHERE id=$1`, id).
		Scan(&dl.ID, &dl.MessageUUID, &dl.UserID, &dl.HikingRecordID, &dl.SampleCount, &dl.Reason, &dl.Payload, &dl.CreatedAt, &dl.ReplayedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeadLetter{}, fmt.Errorf("%w: %d", ErrDeadLetterNotFound, id)
	}
	return dl, err
}

// List returns dead letters newest first, optionally only those not yet replayed.
func (s *DeadLetterStore) List(ctx context.Context, pendingOnly bool, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+deadLetterColumns+`
		FROM telemetry_dead_letters
		WHERE ($1 = false OR replayed_at IS NULL)
		ORDER BY id DESC
		LIMIT $2
	`, pendingOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DeadLetter{}
	for rows.Next() {
		var dl DeadLetter
		if err := rows.Scan(&dl.ID, &dl.MessageUUID, &dl.UserID, &dl.HikingRecordID, &dl.SampleCount, &dl.Reason, &dl.Payload, &dl.CreatedAt, &dl.ReplayedAt); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

func (s *DeadLetterStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM telemetry_dead_letters WHERE replayed_at IS NULL`).Scan(&n)
	return n, err
}

// MarkReplayed stamps replayed_at once. A second call reports ErrAlreadyReplayed.
func (s *DeadLetterStore) MarkReplayed(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE telemetry_dead_letters SET replayed_at = now() WHERE id=$1 AND replayed_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrAlreadyReplayed, id)
	}
	return nil
}

// DeadLetterSink consumes the dead-letter topic into the store.
type DeadLetterSink struct {
	store *DeadLetterStore
	log   zerolog.Logger
}

func NewDeadLetterSink(store *DeadLetterStore, log zerolog.Logger) *DeadLetterSink {
	return &DeadLetterSink{store: store, log: log}
}

func (s *DeadLetterSink) Handle(msg *message.Message) error {
	dl := DeadLetter{
		MessageUUID: msg.UUID,
		UserID:      msg.Metadata.Get(metaUserID),
		Reason:      msg.Metadata.Get(middleware.ReasonForPoisonedKey),
		Payload:     msg.Payload,
	}
	dl.HikingRecordID, _ = strconv.ParseInt(msg.Metadata.Get(metaRecordID), 10, 64)
	dl.SampleCount, _ = strconv.Atoi(msg.Metadata.Get(metaSampleCount))

	if err := s.store.Save(msg.Context(), dl); err != nil {
		return err
	}
	s.log.Warn().
		Str("message_uuid", dl.MessageUUID).
		Str("user_id", dl.UserID).
		Int64("hiking_record_id", dl.HikingRecordID).
		Int("samples", dl.SampleCount).
		Str("reason", dl.Reason).
		Msg("telemetry batch dead-lettered")
	return nil
}

// Replayer puts a stored dead letter back on the records topic.
type Replayer struct {
	store *DeadLetterStore
	pub   message.Publisher
	log   zerolog.Logger
}

func NewReplayer(store *DeadLetterStore, pub message.Publisher, log zerolog.Logger) *Replayer {
	return &Replayer{store: store, pub: pub, log: log}
}

func (r *Replayer) Replay(ctx context.Context, id int64) (DeadLetter, error) {
	dl, err := r.store.Get(ctx, id)
	if err != nil {
		return DeadLetter{}, err
	}
	if dl.ReplayedAt != nil {
		return DeadLetter{}, fmt.Errorf("%w: %d", ErrAlreadyReplayed, id)
	}

	// A fresh uuid keeps broker-side deduplication from dropping the replay.
	msg := message.NewMessage(uuid.NewString(), dl.Payload)
	msg.Metadata.Set(metaUserID, dl.UserID)
	msg.Metadata.Set(metaRecordID, strconv.FormatInt(dl.HikingRecordID, 10))
	msg.Metadata.Set(metaSampleCount, strconv.Itoa(dl.SampleCount))
	msg.Metadata.Set(metaReplayOf, dl.MessageUUID)
	msg.SetContext(ctx)

	if err := r.pub.Publish(TopicRecords, msg); err != nil {
		return DeadLetter{}, fmt.Errorf("replay dead letter %d: %w", id, err)
	}
	if err := r.store.MarkReplayed(ctx, id); err != nil {
		return DeadLetter{}, err
	}

	now := time.Now()
	dl.ReplayedAt = &now
	r.log.Info().Int64("dead_letter_id", id).Str("message_uuid", msg.UUID).Msg("dead letter replayed")
	return dl, nil
}
