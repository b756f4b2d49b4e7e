// Package guard keeps the one-active-session-per-user marker in Redis.
//
// A guard is stored under "tracking:{userID}" with value "{mountainID}:{pathID}"
// and expires on its own after the configured TTL.
package guard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

var (
	ErrAlreadyTracking = errors.New("already tracking")
	ErrMalformedGuard  = errors.New("malformed guard value")
)

type Guard struct {
	UserID     string    `json:"userId"`
	MountainID int64     `json:"mountainId"`
	PathID     int64     `json:"pathId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type Store struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{redis: client, ttl: ttl, now: time.Now}
}

// TryAcquire sets the guard only when none exists for the user.
func (s *Store) TryAcquire(ctx context.Context, userID string, mountainID, pathID int64) (Guard, error) {
	ok, err := s.redis.SetNX(ctx, key(userID), value(mountainID, pathID), s.ttl).Result()
	if err != nil {
		return Guard{}, fmt.Errorf("acquire guard: %w", err)
	}
	if !ok {
		return Guard{}, ErrAlreadyTracking
	}
	return Guard{
		UserID:     userID,
		MountainID: mountainID,
		PathID:     pathID,
		ExpiresAt:  s.now().Add(s.ttl),
	}, nil
}

// Validate reports whether the user's guard exists and matches the tuple.
func (s *Store) Validate(ctx context.Context, userID string, mountainID, pathID int64) (bool, error) {
	got, err := s.redis.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read guard: %w", err)
	}
	return got == value(mountainID, pathID), nil
}

// Release removes the guard. Releasing an absent guard is not an error.
func (s *Store) Release(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("release guard: %w", err)
	}
	return nil
}

func (s *Store) Active(ctx context.Context, userID string) (Guard, bool, error) {
	k := key(userID)
	got, err := s.redis.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return Guard{}, false, nil
	}
	if err != nil {
		return Guard{}, false, fmt.Errorf("read guard: %w", err)
	}

	mountainID, pathID, err := parseValue(got)
	if err != nil {
		return Guard{}, false, err
	}

	g := Guard{UserID: userID, MountainID: mountainID, PathID: pathID}
	if ttl, err := s.redis.TTL(ctx, k).Result(); err == nil && ttl > 0 {
		g.ExpiresAt = s.now().Add(ttl)
	}
	return g, true, nil
}

func key(userID string) string {
	return "tracking:" + userID
}

func value(mountainID, pathID int64) string {
	return fmt.Sprintf("%d:%d", mountainID, pathID)
}

func parseValue(v string) (int64, int64, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedGuard, v)
	}
	mountainID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedGuard, v)
	}
	pathID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedGuard, v)
	}
	return mountainID, pathID, nil
}
