// Package outcome resolves competitive sessions after the primary write has
// committed. Nothing here can undo or delay a finish.
package outcome

import (
	"context"
	"fmt"
	"time"

	"backend-ollana/internal/db"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const TopicOutcomes = "battle-outcomes"

type Result string

const (
	Win  Result = "W"
	Loss Result = "L"
	Draw Result = "D"
)

// Decide compares elapsed times in seconds; the faster climb wins.
func Decide(finalTime, opponentTime int) Result {
	switch {
	case finalTime < opponentTime:
		return Win
	case finalTime > opponentTime:
		return Loss
	default:
		return Draw
	}
}

// Event asks for one battle to be resolved.
type Event struct {
	UserID           string `json:"userId"`
	OpponentID       string `json:"opponentId"`
	MountainID       int64  `json:"mountainId"`
	PathID           int64  `json:"pathId"`
	OpponentRecordID int64  `json:"opponentRecordId"`
	FinalTime        int    `json:"finalTime"`
}

type BattleOutcome struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"userId"`
	OpponentID string    `json:"opponentId"`
	MountainID int64     `json:"mountainId"`
	PathID     int64     `json:"pathId"`
	Result     Result    `json:"result"`
	TimeDiff   int       `json:"timeDiff"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Publisher struct {
	pub message.Publisher
}

func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("user_id", ev.UserID)
	msg.SetContext(ctx)
	if err := p.pub.Publish(TopicOutcomes, msg); err != nil {
		return fmt.Errorf("publish outcome for %s: %w", ev.UserID, err)
	}
	return nil
}

// Store writes battle_outcomes rows. Rows are never updated.
type Store struct {
	db db.Querier
}

func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

func (s *Store) Insert(ctx context.Context, o BattleOutcome) (BattleOutcome, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO battle_outcomes (user_id, opponent_id, mountain_id, path_id, result, time_diff)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at
	`, o.UserID, o.OpponentID, o.MountainID, o.PathID, string(o.Result), o.TimeDiff).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return BattleOutcome{}, fmt.Errorf("insert battle outcome: %w", err)
	}
	return o, nil
}
