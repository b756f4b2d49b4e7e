package history

import (
	"context"
	"errors"
	"fmt"

	"backend-ollana/internal/db"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("record not found")

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// UpsertFootprint returns the footprint id for (user, mountain), creating it on first ascent.
func (s *Service) UpsertFootprint(ctx context.Context, q db.Querier, userID string, mountainID int64) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO footprints (user_id, mountain_id)
		VALUES ($1,$2)
		ON CONFLICT (user_id, mountain_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id
	`, userID, mountainID).Scan(&id)
	return id, err
}

// InsertRecord writes a new hiking record. Records are never updated afterwards.
func (s *Service) InsertRecord(ctx context.Context, q db.Querier, rec HikingRecord) (HikingRecord, error) {
	err := q.QueryRow(ctx, `
		INSERT INTO hiking_records (footprint_id, user_id, mountain_id, path_id, elapsed_time, avg_heart_rate, max_heart_rate)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at
	`, rec.FootprintID, rec.UserID, rec.MountainID, rec.PathID, rec.ElapsedTime, rec.AvgHeartRate, rec.MaxHeartRate).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return HikingRecord{}, err
	}
	return rec, nil
}

const recordColumns = `id, footprint_id, user_id, mountain_id, path_id, elapsed_time, avg_heart_rate, max_heart_rate, created_at`

func (s *Service) Record(ctx context.Context, id int64) (HikingRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM hiking_records WHERE id=$1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return HikingRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return rec, err
}

func (s *Service) LatestRecord(ctx context.Context, userID string, mountainID, pathID int64) (HikingRecord, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM hiking_records
		WHERE user_id=$1 AND mountain_id=$2 AND path_id=$3
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, mountainID, pathID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return HikingRecord{}, fmt.Errorf("%w: latest for %s", ErrNotFound, userID)
	}
	return rec, err
}

// Records lists a user's records on one path, newest first.
func (s *Service) Records(ctx context.Context, userID string, mountainID, pathID int64) ([]HikingRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM hiking_records
		WHERE user_id=$1 AND mountain_id=$2 AND path_id=$3
		ORDER BY created_at DESC
	`, userID, mountainID, pathID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []HikingRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LiveSamples returns the stored samples of a record in submission order.
func (s *Service) LiveSamples(ctx context.Context, recordID int64) ([]LiveSample, error) {
	rows, err := s.db.Query(ctx, `
		SELECT total_time, total_distance, latitude, longitude, heart_rate
		FROM hiking_live_records
		WHERE hiking_record_id=$1
		ORDER BY seq
	`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LiveSample{}
	for rows.Next() {
		var ls LiveSample
		if err := rows.Scan(&ls.Time, &ls.Distance, &ls.Lat, &ls.Lng, &ls.HeartRate); err != nil {
			return nil, err
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (HikingRecord, error) {
	var r HikingRecord
	err := row.Scan(&r.ID, &r.FootprintID, &r.UserID, &r.MountainID, &r.PathID, &r.ElapsedTime, &r.AvgHeartRate, &r.MaxHeartRate, &r.CreatedAt)
	return r, err
}
