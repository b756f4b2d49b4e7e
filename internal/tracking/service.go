// Package tracking runs the live session lifecycle: start acquires the
// per-user guard, finish validates the claim, persists the ascent and hands
// the rest to the asynchronous stages.
package tracking

import (
	"context"
	"errors"
	"fmt"

	"backend-ollana/internal/catalog"
	"backend-ollana/internal/db"
	"backend-ollana/internal/guard"
	"backend-ollana/internal/history"
	"backend-ollana/internal/metrics"
	"backend-ollana/internal/outcome"
	"backend-ollana/internal/shared/geo"
	"backend-ollana/internal/telemetry"
	"backend-ollana/internal/users"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	DefaultArrivalThresholdM = 300.0
	DefaultNearbyRadiusM     = 15000.0
)

var (
	ErrAlreadyTracking        = guard.ErrAlreadyTracking
	ErrInvalidTracking        = errors.New("no matching tracking session")
	ErrCannotSaveBeforeSummit = errors.New("cannot save before reaching the summit")
	ErrOpponentPrivate        = errors.New("opponent has not agreed to share records")
	ErrRecordMismatch         = errors.New("record does not belong to this opponent and path")
)

type catalogReader interface {
	MountainPath(ctx context.Context, mountainID, pathID int64) (catalog.Mountain, catalog.Path, error)
	WithinRadius(ctx context.Context, mountainID int64, lat, lng, radiusM float64) (bool, error)
}

type guardStore interface {
	TryAcquire(ctx context.Context, userID string, mountainID, pathID int64) (guard.Guard, error)
	Validate(ctx context.Context, userID string, mountainID, pathID int64) (bool, error)
	Release(ctx context.Context, userID string) error
	Active(ctx context.Context, userID string) (guard.Guard, bool, error)
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (users.User, error)
	SearchFriends(ctx context.Context, nickname string, mountainID, pathID int64, requesterID string) ([]users.Friend, error)
	ApplyRewards(ctx context.Context, q db.Querier, userID string, distance float64, difficulty catalog.Difficulty) (users.Progress, error)
}

type recordStore interface {
	UpsertFootprint(ctx context.Context, q db.Querier, userID string, mountainID int64) (int64, error)
	InsertRecord(ctx context.Context, q db.Querier, rec history.HikingRecord) (history.HikingRecord, error)
	Record(ctx context.Context, id int64) (history.HikingRecord, error)
	LatestRecord(ctx context.Context, userID string, mountainID, pathID int64) (history.HikingRecord, error)
	Records(ctx context.Context, userID string, mountainID, pathID int64) ([]history.HikingRecord, error)
	LiveSamples(ctx context.Context, recordID int64) ([]history.LiveSample, error)
}

type batchSubmitter interface {
	Submit(ctx context.Context, b telemetry.Batch) error
}

type outcomePublisher interface {
	Publish(ctx context.Context, ev outcome.Event) error
}

type Config struct {
	ArrivalThresholdM float64
	NearbyRadiusM     float64
}

// Deps are the collaborators of a Service.
type Deps struct {
	DB        db.TxQuerier
	Catalog   catalogReader
	Guards    guardStore
	Users     userDirectory
	Records   recordStore
	Telemetry batchSubmitter
	Outcomes  outcomePublisher
}

type Service struct {
	Deps
	cfg Config
	log zerolog.Logger
}

func NewService(deps Deps, cfg Config, log zerolog.Logger) *Service {
	if cfg.ArrivalThresholdM <= 0 {
		cfg.ArrivalThresholdM = DefaultArrivalThresholdM
	}
	if cfg.NearbyRadiusM <= 0 {
		cfg.NearbyRadiusM = DefaultNearbyRadiusM
	}
	return &Service{Deps: deps, cfg: cfg, log: log}
}

func (s *Service) Start(ctx context.Context, userID string, req StartRequest) (StartResponse, error) {
	resp, err := s.start(ctx, userID, req)
	switch {
	case err == nil:
		metrics.TrackingStarts.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrAlreadyTracking):
		metrics.TrackingStarts.WithLabelValues("already_tracking").Inc()
	default:
		metrics.TrackingStarts.WithLabelValues("error").Inc()
	}
	return resp, err
}

func (s *Service) start(ctx context.Context, userID string, req StartRequest) (StartResponse, error) {
	if _, active, err := s.Guards.Active(ctx, userID); err != nil {
		return StartResponse{}, err
	} else if active {
		return StartResponse{}, ErrAlreadyTracking
	}

	mountain, path, err := s.Catalog.MountainPath(ctx, req.MountainID, req.PathID)
	if err != nil {
		return StartResponse{}, err
	}

	nearby, err := s.Catalog.WithinRadius(ctx, mountain.ID, req.Lat, req.Lng, s.cfg.NearbyRadiusM)
	if err != nil {
		return StartResponse{}, fmt.Errorf("proximity check: %w", err)
	}

	opponent, err := s.resolveOpponent(ctx, userID, req)
	if err != nil {
		return StartResponse{}, err
	}

	if _, err := s.Guards.TryAcquire(ctx, userID, mountain.ID, path.ID); err != nil {
		return StartResponse{}, err
	}

	s.log.Info().
		Str("user_id", userID).
		Int64("mountain_id", mountain.ID).
		Int64("path_id", path.ID).
		Str("mode", string(req.Mode)).
		Bool("nearby", nearby).
		Msg("tracking started")

	return StartResponse{IsNearby: nearby, Mountain: mountain, Path: path, Opponent: opponent}, nil
}

func (s *Service) resolveOpponent(ctx context.Context, userID string, req StartRequest) (*Opponent, error) {
	var opponentID string
	switch {
	case req.Mode == ModeMe:
		opponentID = userID
	case req.Mode == ModeFriend && req.OpponentID != "":
		opponentID = req.OpponentID
	default:
		return nil, nil
	}

	user, err := s.Users.FindByID(ctx, opponentID)
	if err != nil {
		return nil, err
	}
	if opponentID != userID && !user.IsAgree {
		return nil, ErrOpponentPrivate
	}
	opp := &Opponent{User: user}
	if req.RecordID == nil {
		return opp, nil
	}

	rec, err := s.Records.Record(ctx, *req.RecordID)
	if err != nil {
		return nil, err
	}
	if err := checkRecord(rec, opponentID, req.MountainID, req.PathID); err != nil {
		return nil, err
	}
	samples, err := s.Records.LiveSamples(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	opp.Record = &rec
	opp.Samples = samples
	return opp, nil
}

func (s *Service) Finish(ctx context.Context, userID string, req FinishRequest) (FinishResponse, error) {
	resp, err := s.finish(ctx, userID, req)
	switch {
	case err == nil && req.Save:
		metrics.TrackingFinishes.WithLabelValues("saved").Inc()
	case err == nil:
		metrics.TrackingFinishes.WithLabelValues("discarded").Inc()
	case errors.Is(err, ErrInvalidTracking):
		metrics.TrackingFinishes.WithLabelValues("invalid").Inc()
	case errors.Is(err, ErrCannotSaveBeforeSummit):
		metrics.TrackingFinishes.WithLabelValues("before_summit").Inc()
	default:
		metrics.TrackingFinishes.WithLabelValues("error").Inc()
	}
	return resp, err
}

func (s *Service) finish(ctx context.Context, userID string, req FinishRequest) (FinishResponse, error) {
	ok, err := s.Guards.Validate(ctx, userID, req.MountainID, req.PathID)
	if err != nil {
		return FinishResponse{}, err
	}
	if !ok {
		return FinishResponse{}, ErrInvalidTracking
	}

	mountain, path, err := s.Catalog.MountainPath(ctx, req.MountainID, req.PathID)
	if err != nil {
		return FinishResponse{}, err
	}

	final := geo.Point{Lat: req.FinalLat, Lng: req.FinalLng}
	distance := geo.DistanceMeters(final, summitOf(mountain, path))
	if req.Save && distance > s.cfg.ArrivalThresholdM {
		s.log.Info().
			Str("user_id", userID).
			Float64("distance_m", distance).
			Msg("save rejected before summit")
		return FinishResponse{}, ErrCannotSaveBeforeSummit
	}

	log := s.log.With().Str("user_id", userID).Int64("mountain_id", mountain.ID).Int64("path_id", path.ID).Logger()

	var opponentRec *history.HikingRecord
	if req.competitive() {
		if opponentRec, err = s.opponentRecord(ctx, log, userID, req); err != nil {
			return FinishResponse{}, err
		}
	}

	resp := FinishResponse{Badge: mountain.Badge}
	if req.Save {
		rec, err := s.persist(ctx, userID, mountain, path, req)
		if err != nil {
			return FinishResponse{}, err
		}
		resp.RecordID = &rec.ID
		avg, max := rec.AvgHeartRate, rec.MaxHeartRate
		resp.AvgHeartRate, resp.MaxHeartRate = &avg, &max

		err = s.Telemetry.Submit(ctx, telemetry.Batch{
			UserID:         userID,
			MountainID:     mountain.ID,
			PathID:         path.ID,
			HikingRecordID: rec.ID,
			Samples:        req.Records,
		})
		if err != nil {
			log.Error().Err(err).Int64("hiking_record_id", rec.ID).Int("samples", len(req.Records)).Msg("telemetry batch not submitted")
		}
	}

	if opponentRec != nil {
		resp.TimeDiff = s.publishBattle(ctx, log, userID, req, *opponentRec)
	}

	if err := s.Guards.Release(ctx, userID); err != nil {
		log.Warn().Err(err).Msg("guard release failed, left to expire")
	}
	log.Info().Bool("saved", req.Save).Int("final_time", req.FinalTime).Msg("tracking finished")
	return resp, nil
}

// persist writes footprint, record and rewards in one transaction.
func (s *Service) persist(ctx context.Context, userID string, mountain catalog.Mountain, path catalog.Path, req FinishRequest) (history.HikingRecord, error) {
	avg, max := history.HeartRateStats(req.Records)
	var rec history.HikingRecord
	err := db.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		footprint, err := s.Records.UpsertFootprint(ctx, tx, userID, mountain.ID)
		if err != nil {
			return fmt.Errorf("footprint: %w", err)
		}
		rec, err = s.Records.InsertRecord(ctx, tx, history.HikingRecord{
			FootprintID:  footprint,
			UserID:       userID,
			MountainID:   mountain.ID,
			PathID:       path.ID,
			ElapsedTime:  req.FinalTime,
			AvgHeartRate: avg,
			MaxHeartRate: max,
		})
		if err != nil {
			return fmt.Errorf("hiking record: %w", err)
		}
		if _, err := s.Users.ApplyRewards(ctx, tx, userID, req.FinalDistance, mountain.Difficulty); err != nil {
			return fmt.Errorf("rewards: %w", err)
		}
		return nil
	})
	return rec, err
}

// opponentRecord finds the record a competitive finish races against. A
// record of another user or path is rejected before anything is written; a
// record that cannot be loaded only means there is no outcome.
func (s *Service) opponentRecord(ctx context.Context, log zerolog.Logger, userID string, req FinishRequest) (*history.HikingRecord, error) {
	var (
		rec history.HikingRecord
		err error
	)
	opponentID := req.opponentOf(userID)
	switch {
	case req.RecordID != nil:
		rec, err = s.Records.Record(ctx, *req.RecordID)
	case req.OpponentID != "":
		rec, err = s.Records.LatestRecord(ctx, opponentID, req.MountainID, req.PathID)
	default:
		return nil, nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("opponent record unavailable, no outcome")
		return nil, nil
	}
	if err := checkRecord(rec, opponentID, req.MountainID, req.PathID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// publishBattle hands the outcome task off and returns the time difference
// when the client chose the record. Publish failures are logged.
func (s *Service) publishBattle(ctx context.Context, log zerolog.Logger, userID string, req FinishRequest, rec history.HikingRecord) *int {
	err := s.Outcomes.Publish(ctx, outcome.Event{
		UserID:           userID,
		OpponentID:       req.opponentOf(userID),
		MountainID:       req.MountainID,
		PathID:           req.PathID,
		OpponentRecordID: rec.ID,
		FinalTime:        req.FinalTime,
	})
	if err != nil {
		log.Error().Err(err).Int64("opponent_record_id", rec.ID).Msg("outcome task not published")
	}

	if req.RecordID == nil {
		return nil
	}
	diff := req.FinalTime - rec.ElapsedTime
	return &diff
}

func checkRecord(rec history.HikingRecord, ownerID string, mountainID, pathID int64) error {
	if rec.UserID != ownerID || rec.MountainID != mountainID || rec.PathID != pathID {
		return fmt.Errorf("%w: %d", ErrRecordMismatch, rec.ID)
	}
	return nil
}

// summitOf is the last route coordinate, or the mountain itself for paths
// stored without a route.
func summitOf(m catalog.Mountain, p catalog.Path) geo.Point {
	if pt, ok := p.Summit(); ok {
		return pt
	}
	return geo.Point{Lat: m.Lat, Lng: m.Lng}
}

func (s *Service) LatestRecord(ctx context.Context, userID string, mountainID, pathID int64) (history.HikingRecord, error) {
	return s.Records.LatestRecord(ctx, userID, mountainID, pathID)
}

func (s *Service) Friends(ctx context.Context, userID string, mountainID, pathID int64, nickname string) ([]users.Friend, error) {
	return s.Users.SearchFriends(ctx, nickname, mountainID, pathID, userID)
}

// OpponentRecords lists the records a user can race on a path: their own, or
// those of an opponent who agreed to share.
func (s *Service) OpponentRecords(ctx context.Context, userID string, mountainID, pathID int64, opponentID string) ([]history.HikingRecord, error) {
	if opponentID == "" || opponentID == userID {
		return s.Records.Records(ctx, userID, mountainID, pathID)
	}
	opp, err := s.Users.FindByID(ctx, opponentID)
	if err != nil {
		return nil, err
	}
	if !opp.IsAgree {
		return nil, ErrOpponentPrivate
	}
	return s.Records.Records(ctx, opponentID, mountainID, pathID)
}

func (s *Service) Status(ctx context.Context, userID string) (guard.Guard, bool, error) {
	return s.Guards.Active(ctx, userID)
}
