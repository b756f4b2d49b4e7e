package outcome

import (
	"context"

	"backend-ollana/internal/history"
	"backend-ollana/internal/messaging"
	"backend-ollana/internal/metrics"
	"backend-ollana/internal/stream"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type recordReader interface {
	Record(ctx context.Context, id int64) (history.HikingRecord, error)
}

type notifier interface {
	Notify(ctx context.Context, userID string, n stream.Notification) error
}

// Handler consumes outcome events. Every failure is logged and the message is
// acknowledged; a battle that cannot be resolved is dropped.
type Handler struct {
	records  recordReader
	store    *Store
	notifier notifier
	log      zerolog.Logger
}

func NewHandler(records recordReader, store *Store, n notifier, log zerolog.Logger) *Handler {
	return &Handler{records: records, store: store, notifier: n, log: log}
}

func (h *Handler) Handle(msg *message.Message) error {
	ctx := msg.Context()

	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		h.drop(msg.UUID, "", err, "undecodable outcome event")
		return nil
	}

	rec, err := h.records.Record(ctx, ev.OpponentRecordID)
	if err != nil {
		h.drop(msg.UUID, ev.UserID, err, "opponent record unavailable")
		return nil
	}

	opponent := ev.OpponentID
	if opponent == "" {
		opponent = rec.UserID
	}
	saved, err := h.store.Insert(ctx, BattleOutcome{
		UserID:     ev.UserID,
		OpponentID: opponent,
		MountainID: ev.MountainID,
		PathID:     ev.PathID,
		Result:     Decide(ev.FinalTime, rec.ElapsedTime),
		TimeDiff:   ev.FinalTime - rec.ElapsedTime,
	})
	if err != nil {
		h.drop(msg.UUID, ev.UserID, err, "battle outcome not stored")
		return nil
	}
	metrics.BattleOutcomes.WithLabelValues(string(saved.Result)).Inc()

	h.log.Info().
		Str("user_id", saved.UserID).
		Str("opponent_id", saved.OpponentID).
		Str("result", string(saved.Result)).
		Int("time_diff", saved.TimeDiff).
		Msg("battle outcome recorded")

	if h.notifier != nil {
		if err := h.notifier.Notify(ctx, saved.UserID, stream.Notification{Type: "battle_outcome", Data: saved}); err != nil {
			h.log.Warn().Err(err).Str("user_id", saved.UserID).Msg("outcome notification failed")
		}
	}
	return nil
}

func (h *Handler) drop(uuid, userID string, err error, reason string) {
	metrics.BattleOutcomes.WithLabelValues("dropped").Inc()
	h.log.Error().Err(err).Str("message_uuid", uuid).Str("user_id", userID).Msg(reason)
}

func Registrar(sub message.Subscriber, h *Handler) messaging.Registrar {
	return func(r *message.Router) error {
		if err := messaging.ValidateTopic(TopicOutcomes); err != nil {
			return err
		}
		r.AddConsumerHandler("battle-outcomes", TopicOutcomes, sub, h.Handle)
		return nil
	}
}
