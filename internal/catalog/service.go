package catalog

import (
	"context"
	"errors"
	"fmt"

	"backend-ollana/internal/db"
	"backend-ollana/internal/shared/geo"

	"github.com/jackc/pgx/v5"
)

const (
	DefaultNearestRadiusM = 15000.0
	suggestLimit          = 10
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNoNearbyMountain = errors.New("no nearby mountain")
	ErrPathMismatch     = errors.New("path does not belong to mountain")
)

type Service struct {
	db             db.Querier
	nearestRadiusM float64
}

func NewService(db db.Querier, nearestRadiusM float64) *Service {
	if nearestRadiusM <= 0 {
		nearestRadiusM = DefaultNearestRadiusM
	}
	return &Service{db: db, nearestRadiusM: nearestRadiusM}
}

const mountainColumns = `id, name, COALESCE(location,''), COALESCE(height,0),
		       ST_Y(geom::geometry), ST_X(geom::geometry), difficulty, COALESCE(badge,'')`

const pathColumns = `id, mountain_id, name, COALESCE(length_m,0), COALESCE(duration,''), difficulty,
		       COALESCE(ST_AsText(route),'LINESTRING()'),
		       COALESCE(ST_Y(center_point),0), COALESCE(ST_X(center_point),0)`

func (s *Service) Mountain(ctx context.Context, id int64) (Mountain, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+mountainColumns+`
		FROM mountains WHERE id=$1
	`, id)
	m, err := scanMountain(row)
	if err != nil {
		return Mountain{}, notFound(err, "mountain %d", id)
	}
	return m, nil
}

func (s *Service) Path(ctx context.Context, id int64) (Path, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+pathColumns+`
		FROM paths WHERE id=$1
	`, id)
	p, err := scanPath(row)
	if err != nil {
		return Path{}, notFound(err, "path %d", id)
	}
	return p, nil
}

// MountainPath resolves a mountain and one of its paths.
func (s *Service) MountainPath(ctx context.Context, mountainID, pathID int64) (Mountain, Path, error) {
	m, err := s.Mountain(ctx, mountainID)
	if err != nil {
		return Mountain{}, Path{}, err
	}
	p, err := s.Path(ctx, pathID)
	if err != nil {
		return Mountain{}, Path{}, err
	}
	if p.MountainID != m.ID {
		return Mountain{}, Path{}, fmt.Errorf("%w: path %d, mountain %d", ErrPathMismatch, pathID, mountainID)
	}
	return m, p, nil
}

func (s *Service) PathsByMountain(ctx context.Context, mountainID int64) ([]Path, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+pathColumns+`
		FROM paths WHERE mountain_id=$1
		ORDER BY id
	`, mountainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths := []Path{}
	for rows.Next() {
		p, err := scanPath(rows)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Nearest returns the closest mountain within the configured search radius.
func (s *Service) Nearest(ctx context.Context, lat, lng float64) (Mountain, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+mountainColumns+`
		FROM mountains
		WHERE ST_DWithin(geom, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3)
		ORDER BY ST_Distance(geom, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography)
		LIMIT 1
	`, lng, lat, s.nearestRadiusM)
	m, err := scanMountain(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Mountain{}, ErrNoNearbyMountain
	}
	if err != nil {
		return Mountain{}, err
	}
	return m, nil
}

func (s *Service) NearestWithPaths(ctx context.Context, lat, lng float64) (MountainWithPaths, error) {
	m, err := s.Nearest(ctx, lat, lng)
	if err != nil {
		return MountainWithPaths{}, err
	}
	paths, err := s.PathsByMountain(ctx, m.ID)
	if err != nil {
		return MountainWithPaths{}, err
	}
	return MountainWithPaths{Mountain: m, Paths: paths}, nil
}

// WithinRadius reports whether the mountain lies within radiusM meters of the point.
func (s *Service) WithinRadius(ctx context.Context, mountainID int64, lat, lng, radiusM float64) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM mountains
			WHERE id = $1
			  AND ST_DWithin(geom, ST_SetSRID(ST_MakePoint($2,$3), 4326)::geography, $4)
		)
	`, mountainID, lng, lat, radiusM).Scan(&ok)
	return ok, err
}

func (s *Service) Suggest(ctx context.Context, name string) ([]Suggestion, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name FROM mountains
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2
	`, name, suggestLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Suggestion{}
	for rows.Next() {
		var sg Suggestion
		if err := rows.Scan(&sg.ID, &sg.Name); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// Search returns every mountain matching name together with its paths.
func (s *Service) Search(ctx context.Context, name string) ([]MountainWithPaths, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+mountainColumns+`
		FROM mountains
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY name
	`, name)
	if err != nil {
		return nil, err
	}
	var mountains []Mountain
	for rows.Next() {
		m, err := scanMountain(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		mountains = append(mountains, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]MountainWithPaths, 0, len(mountains))
	for _, m := range mountains {
		paths, err := s.PathsByMountain(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, MountainWithPaths{Mountain: m, Paths: paths})
	}
	return out, nil
}

func (s *Service) MountainWithPaths(ctx context.Context, id int64) (MountainWithPaths, error) {
	m, err := s.Mountain(ctx, id)
	if err != nil {
		return MountainWithPaths{}, err
	}
	paths, err := s.PathsByMountain(ctx, id)
	if err != nil {
		return MountainWithPaths{}, err
	}
	return MountainWithPaths{Mountain: m, Paths: paths}, nil
}

func scanMountain(row pgx.Row) (Mountain, error) {
	var m Mountain
	var difficulty string
	err := row.Scan(&m.ID, &m.Name, &m.Location, &m.Height, &m.Lat, &m.Lng, &difficulty, &m.Badge)
	m.Difficulty = Difficulty(difficulty)
	return m, err
}

func scanPath(row pgx.Row) (Path, error) {
	var p Path
	var difficulty, wkt string
	var centerLat, centerLng float64
	if err := row.Scan(&p.ID, &p.MountainID, &p.Name, &p.LengthM, &p.Duration, &difficulty, &wkt, &centerLat, &centerLng); err != nil {
		return Path{}, err
	}
	route, err := geo.ParseLineString(wkt)
	if err != nil {
		return Path{}, fmt.Errorf("path %d route: %w", p.ID, err)
	}
	p.Difficulty = Difficulty(difficulty)
	p.Route = route
	p.Center = geo.Point{Lat: centerLat, Lng: centerLng}
	if centerLat == 0 && centerLng == 0 {
		if c, ok := route.Centroid(); ok {
			p.Center = c
		}
	}
	return p, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
	}
	return err
}
