package tracking

import (
	"backend-ollana/internal/catalog"
	"backend-ollana/internal/history"
	"backend-ollana/internal/users"
)

// Mode selects who the session races against.
type Mode string

const (
	ModeMe     Mode = "ME"
	ModeFriend Mode = "FRIEND"
	ModeNone   Mode = "NONE"
)

type StartRequest struct {
	MountainID int64   `json:"mountainId" validate:"gt=0"`
	PathID     int64   `json:"pathId" validate:"gt=0"`
	Mode       Mode    `json:"mode" validate:"required,oneof=ME FRIEND NONE"`
	OpponentID string  `json:"opponentId" validate:"required_if=Mode FRIEND,excluded_unless=Mode FRIEND"`
	RecordID   *int64  `json:"recordId,omitempty" validate:"omitempty,gt=0"`
	Lat        float64 `json:"latitude" validate:"latitude"`
	Lng        float64 `json:"longitude" validate:"longitude"`
}

// Opponent is what the client shows while racing: the rival and, when a
// record was picked, that record with its samples.
type Opponent struct {
	User    users.User            `json:"user"`
	Record  *history.HikingRecord `json:"record,omitempty"`
	Samples []history.LiveSample  `json:"records,omitempty"`
}

type StartResponse struct {
	IsNearby bool             `json:"isNearby"`
	Mountain catalog.Mountain `json:"mountain"`
	Path     catalog.Path     `json:"path"`
	Opponent *Opponent        `json:"opponent,omitempty"`
}

type FinishRequest struct {
	MountainID    int64                `json:"mountainId" validate:"gt=0"`
	PathID        int64                `json:"pathId" validate:"gt=0"`
	Mode          Mode                 `json:"mode" validate:"required,oneof=ME FRIEND NONE"`
	OpponentID    string               `json:"opponentId" validate:"required_if=Mode FRIEND,excluded_unless=Mode FRIEND"`
	RecordID      *int64               `json:"recordId,omitempty" validate:"omitempty,gt=0"`
	Save          bool                 `json:"isSave"`
	FinalLat      float64              `json:"finalLatitude" validate:"latitude"`
	FinalLng      float64              `json:"finalLongitude" validate:"longitude"`
	FinalTime     int                  `json:"finalTime" validate:"gte=0"`
	FinalDistance float64              `json:"finalDistance" validate:"gte=0"`
	Records       []history.LiveSample `json:"records" validate:"dive"`
}

type FinishResponse struct {
	Badge        string   `json:"badge"`
	AvgHeartRate *float64 `json:"averageHeartRate,omitempty"`
	MaxHeartRate *int     `json:"maxHeartRate,omitempty"`
	TimeDiff     *int     `json:"timeDiff,omitempty"`
	RecordID     *int64   `json:"recordId,omitempty"`
}

// competitive sessions produce a battle outcome.
func (r FinishRequest) competitive() bool {
	return r.Mode == ModeFriend || r.RecordID != nil
}

// opponentOf is the owner of the records a finish may race against.
func (r FinishRequest) opponentOf(userID string) string {
	if r.Mode == ModeFriend {
		return r.OpponentID
	}
	return userID
}
