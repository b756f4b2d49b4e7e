package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"backend-ollana/internal/catalog"
	"backend-ollana/internal/db"
	"backend-ollana/internal/guard"
	"backend-ollana/internal/history"
	"backend-ollana/internal/outcome"
	"backend-ollana/internal/shared/geo"
	"backend-ollana/internal/telemetry"
	"backend-ollana/internal/users"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Path P1 of mountain M1 ends at (37.60,127.10).
var (
	m1 = catalog.Mountain{ID: 1, Name: "M1", Lat: 37.55, Lng: 127.05, Difficulty: catalog.DifficultyMedium, Badge: "m1-badge.png"}
	p1 = catalog.Path{ID: 1, MountainID: 1, Name: "P1", Route: geo.Polyline{{Lat: 37.50, Lng: 127.00}, {Lat: 37.55, Lng: 127.05}, {Lat: 37.60, Lng: 127.10}}}
	p2 = catalog.Path{ID: 2, MountainID: 1, Name: "P2", Route: geo.Polyline{{Lat: 37.50, Lng: 127.00}, {Lat: 37.58, Lng: 127.02}}}
	m2 = catalog.Mountain{ID: 2, Name: "M2", Lat: 35.0, Lng: 128.0, Difficulty: catalog.DifficultyLow}
	p3 = catalog.Path{ID: 3, MountainID: 2, Name: "P3"}
)

type fakeCatalog struct{}

func (fakeCatalog) MountainPath(_ context.Context, mountainID, pathID int64) (catalog.Mountain, catalog.Path, error) {
	mountains := map[int64]catalog.Mountain{1: m1, 2: m2}
	paths := map[int64]catalog.Path{1: p1, 2: p2, 3: p3}
	m, ok := mountains[mountainID]
	if !ok {
		return catalog.Mountain{}, catalog.Path{}, fmt.Errorf("%w: mountain %d", catalog.ErrNotFound, mountainID)
	}
	p, ok := paths[pathID]
	if !ok {
		return catalog.Mountain{}, catalog.Path{}, fmt.Errorf("%w: path %d", catalog.ErrNotFound, pathID)
	}
	if p.MountainID != m.ID {
		return catalog.Mountain{}, catalog.Path{}, catalog.ErrPathMismatch
	}
	return m, p, nil
}

func (fakeCatalog) WithinRadius(_ context.Context, mountainID int64, lat, lng, radiusM float64) (bool, error) {
	m := map[int64]catalog.Mountain{1: m1, 2: m2}[mountainID]
	return geo.HaversineMeters(m.Lat, m.Lng, lat, lng) <= radiusM, nil
}

type fakeUsers struct {
	mu      sync.Mutex
	users   map[string]users.User
	rewards []string
	err     error
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (users.User, error) {
	u, ok := f.users[id]
	if !ok {
		return users.User{}, fmt.Errorf("%w: %s", users.ErrNotFound, id)
	}
	return u, nil
}

func (f *fakeUsers) SearchFriends(_ context.Context, nickname string, _, _ int64, requesterID string) ([]users.Friend, error) {
	var out []users.Friend
	for _, u := range f.users {
		if u.ID != requesterID && u.Nickname == nickname {
			out = append(out, users.Friend{UserID: u.ID, Nickname: u.Nickname, IsPossible: u.IsAgree})
		}
	}
	return out, nil
}

func (f *fakeUsers) ApplyRewards(_ context.Context, q db.Querier, userID string, _ float64, d catalog.Difficulty) (users.Progress, error) {
	if q == nil {
		return users.Progress{}, errors.New("rewards outside transaction")
	}
	if f.err != nil {
		return users.Progress{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewards = append(f.rewards, userID)
	return users.Progress{}.AddExp(users.ExperienceFor(d)), nil
}

type fakeRecords struct {
	mu       sync.Mutex
	records  map[int64]history.HikingRecord
	samples  map[int64][]history.LiveSample
	inserted []history.HikingRecord
	nextID   int64
	err      error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: map[int64]history.HikingRecord{}, samples: map[int64][]history.LiveSample{}, nextID: 100}
}

func (f *fakeRecords) UpsertFootprint(context.Context, db.Querier, string, int64) (int64, error) {
	return 7, nil
}

func (f *fakeRecords) InsertRecord(_ context.Context, _ db.Querier, rec history.HikingRecord) (history.HikingRecord, error) {
	if f.err != nil {
		return history.HikingRecord{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = f.nextID
	f.inserted = append(f.inserted, rec)
	return rec, nil
}

func (f *fakeRecords) Record(_ context.Context, id int64) (history.HikingRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return history.HikingRecord{}, fmt.Errorf("%w: %d", history.ErrNotFound, id)
	}
	return rec, nil
}

func (f *fakeRecords) LatestRecord(_ context.Context, userID string, mountainID, pathID int64) (history.HikingRecord, error) {
	var latest *history.HikingRecord
	for _, rec := range f.records {
		if rec.UserID == userID && rec.MountainID == mountainID && rec.PathID == pathID {
			if latest == nil || rec.ID > latest.ID {
				r := rec
				latest = &r
			}
		}
	}
	if latest == nil {
		return history.HikingRecord{}, history.ErrNotFound
	}
	return *latest, nil
}

func (f *fakeRecords) Records(_ context.Context, userID string, mountainID, pathID int64) ([]history.HikingRecord, error) {
	out := []history.HikingRecord{}
	for _, rec := range f.records {
		if rec.UserID == userID && rec.MountainID == mountainID && rec.PathID == pathID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRecords) LiveSamples(_ context.Context, recordID int64) ([]history.LiveSample, error) {
	return f.samples[recordID], nil
}

type fakeSubmitter struct {
	mu      sync.Mutex
	batches []telemetry.Batch
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, b telemetry.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	return f.err
}

type fakeOutcomes struct {
	mu     sync.Mutex
	events []outcome.Event
}

func (f *fakeOutcomes) Publish(_ context.Context, ev outcome.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type fixture struct {
	svc       *Service
	mock      pgxmock.PgxPoolIface
	redis     *miniredis.Miniredis
	guards    *guard.Store
	users     *fakeUsers
	records   *fakeRecords
	telemetry *fakeSubmitter
	outcomes  *fakeOutcomes
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	f := &fixture{
		mock:   mock,
		redis:  mr,
		guards: guard.NewStore(rdb, guard.DefaultTTL),
		users: &fakeUsers{users: map[string]users.User{
			"user-1": {ID: "user-1", Nickname: "alice", IsAgree: true},
			"user-2": {ID: "user-2", Nickname: "bob", IsAgree: true},
			"user-3": {ID: "user-3", Nickname: "carol"},
		}},
		records:   newFakeRecords(),
		telemetry: &fakeSubmitter{},
		outcomes:  &fakeOutcomes{},
	}
	f.svc = NewService(Deps{
		DB:        mock,
		Catalog:   fakeCatalog{},
		Guards:    f.guards,
		Users:     f.users,
		Records:   f.records,
		Telemetry: f.telemetry,
		Outcomes:  f.outcomes,
	}, Config{}, zerolog.Nop())
	return f
}

func (f *fixture) start(t *testing.T, userID string, mountainID, pathID int64) {
	t.Helper()
	_, err := f.svc.Start(context.Background(), userID, StartRequest{
		MountainID: mountainID, PathID: pathID, Mode: ModeNone, Lat: 37.50, Lng: 127.00,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
}
