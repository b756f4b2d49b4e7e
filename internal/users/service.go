package users

import (
	"context"
	"errors"
	"fmt"

	"backend-ollana/internal/catalog"
	"backend-ollana/internal/db"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("user not found")

// ExperienceFor returns the experience granted for finishing a mountain of the given difficulty.
func ExperienceFor(d catalog.Difficulty) int {
	switch d {
	case catalog.DifficultyMedium:
		return 40
	case catalog.DifficultyHigh:
		return 60
	default:
		return 20
	}
}

// GradeFor returns the highest grade whose threshold exp reaches.
func GradeFor(exp int) Grade {
	g := GradeSeed
	for _, t := range gradeThresholds {
		if exp < t.exp {
			break
		}
		g = t.grade
	}
	return g
}

// AddExp applies delta and wraps at MaxExp.
func (p Progress) AddExp(delta int) Progress {
	p.Exp += delta
	if p.Exp >= MaxExp {
		p.GradeCount++
		p.Exp -= MaxExp
	}
	p.Grade = GradeFor(p.Exp)
	return p
}

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, nickname, COALESCE(profile_image,''), total_distance, exp, grade, grade_count, is_agree
		FROM users WHERE id=$1
	`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return u, err
}

func (s *Service) FindByNickname(ctx context.Context, nickname string) (User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, nickname, COALESCE(profile_image,''), total_distance, exp, grade, grade_count, is_agree
		FROM users WHERE nickname=$1
	`, nickname)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: %s", ErrNotFound, nickname)
	}
	return u, err
}

// SearchFriends lists users matching nickname other than the requester. IsPossible
// is set when the user agreed to be compared and has a record on the mountain/path.
func (s *Service) SearchFriends(ctx context.Context, nickname string, mountainID, pathID int64, requesterID string) ([]Friend, error) {
	rows, err := s.db.Query(ctx, `
		SELECT u.id, u.nickname,
		       u.is_agree AND EXISTS (
		           SELECT 1 FROM hiking_records hr
		           WHERE hr.user_id = u.id AND hr.mountain_id = $2 AND hr.path_id = $3
		       )
		FROM users u
		WHERE u.nickname ILIKE '%' || $1 || '%' AND u.id <> $4
		ORDER BY u.nickname
	`, nickname, mountainID, pathID, requesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	friends := []Friend{}
	for rows.Next() {
		var f Friend
		if err := rows.Scan(&f.UserID, &f.Nickname, &f.IsPossible); err != nil {
			return nil, err
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// ApplyRewards adds distance and difficulty-based experience. q is normally the
// transaction that inserted the hiking record.
func (s *Service) ApplyRewards(ctx context.Context, q db.Querier, userID string, distance float64, difficulty catalog.Difficulty) (Progress, error) {
	if q == nil {
		q = s.db
	}

	var p Progress
	var grade string
	err := q.QueryRow(ctx, `
		SELECT exp, grade, grade_count FROM users WHERE id=$1 FOR UPDATE
	`, userID).Scan(&p.Exp, &grade, &p.GradeCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Progress{}, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	if err != nil {
		return Progress{}, err
	}
	p.Grade = Grade(grade)
	p = p.AddExp(ExperienceFor(difficulty))

	_, err = q.Exec(ctx, `
		UPDATE users
		SET total_distance = total_distance + $2, exp = $3, grade = $4, grade_count = $5
		WHERE id = $1
	`, userID, distance, p.Exp, string(p.Grade), p.GradeCount)
	if err != nil {
		return Progress{}, err
	}
	return p, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var grade string
	err := row.Scan(&u.ID, &u.Nickname, &u.ProfileImage, &u.TotalDistance, &u.Exp, &grade, &u.GradeCount, &u.IsAgree)
	u.Grade = Grade(grade)
	return u, err
}
