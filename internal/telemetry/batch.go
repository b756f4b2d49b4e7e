// Package telemetry moves a finished session's live samples from the request
// path into hiking_live_records through the durable channel.
package telemetry

import (
	"fmt"
	"strconv"

	"backend-ollana/internal/history"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	TopicRecords     = "hiking-records"
	TopicDeadLetters = "hiking-records-dlq"

	metaUserID      = "user_id"
	metaRecordID    = "hiking_record_id"
	metaSampleCount = "sample_count"
	metaReplayOf    = "replay_of"
)

// Batch is the unit handed to the pipeline: every sample of one saved record.
type Batch struct {
	UserID         string               `json:"userId"`
	MountainID     int64                `json:"mountainId"`
	PathID         int64                `json:"pathId"`
	HikingRecordID int64                `json:"hikingRecordId"`
	Samples        []history.LiveSample `json:"samples"`
}

func Encode(b Batch) ([]byte, error) {
	return json.Marshal(b)
}

func Decode(payload []byte) (Batch, error) {
	var b Batch
	if err := json.Unmarshal(payload, &b); err != nil {
		return Batch{}, fmt.Errorf("decode batch: %w", err)
	}
	return b, nil
}

// NewMessage wraps an encoded batch with metadata that stays readable when the
// payload is not.
func NewMessage(b Batch) (*message.Message, error) {
	payload, err := Encode(b)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(metaUserID, b.UserID)
	msg.Metadata.Set(metaRecordID, strconv.FormatInt(b.HikingRecordID, 10))
	msg.Metadata.Set(metaSampleCount, strconv.Itoa(len(b.Samples)))
	return msg, nil
}

// subBatches splits n rows into [start,end) windows of at most size rows.
func subBatches(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
