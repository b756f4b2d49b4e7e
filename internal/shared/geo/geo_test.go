package geo

import (
	"errors"
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := HaversineKm(-6.2, 106.816, -6.9175, 107.6191)
	if d < 100 || d > 140 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestHaversineMetersMatchesKm(t *testing.T) {
	km := HaversineKm(-6.2, 106.816, -6.9175, 107.6191)
	m := HaversineMeters(-6.2, 106.816, -6.9175, 107.6191)
	if math.Abs(m-km*1000) > 1e-6 {
		t.Fatalf("meters %v and km %v disagree", m, km)
	}
	if HaversineMeters(1, 1, 1, 1) != 0 {
		t.Fatalf("expected zero distance for identical points")
	}
}

func TestHaversineMetersShortHop(t *testing.T) {
	// 0.001 degrees of latitude is ~111 m
	d := HaversineMeters(37.0, 127.0, 37.001, 127.0)
	if d < 105 || d > 117 {
		t.Fatalf("unexpected short distance: %v", d)
	}
}

func TestPolylineOps(t *testing.T) {
	line := Polyline{
		{Lat: 37.0, Lng: 127.0},
		{Lat: 37.001, Lng: 127.0},
		{Lat: 37.002, Lng: 127.0},
	}

	term, ok := line.Terminal()
	if !ok || term.Lat != 37.002 {
		t.Fatalf("unexpected terminal %+v", term)
	}

	c, ok := line.Centroid()
	if !ok || math.Abs(c.Lat-37.001) > 1e-9 || c.Lng != 127.0 {
		t.Fatalf("unexpected centroid %+v", c)
	}

	nearest, dist, ok := line.NearestPoint(Point{Lat: 37.0011, Lng: 127.0})
	if !ok || nearest.Lat != 37.001 || dist > 20 {
		t.Fatalf("unexpected nearest %+v (%v m)", nearest, dist)
	}

	length := line.LengthMeters()
	if length < 210 || length > 235 {
		t.Fatalf("unexpected length %v", length)
	}
}

func TestEmptyPolyline(t *testing.T) {
	var line Polyline
	if _, ok := line.Terminal(); ok {
		t.Fatalf("expected no terminal")
	}
	if _, ok := line.Centroid(); ok {
		t.Fatalf("expected no centroid")
	}
	if _, _, ok := line.NearestPoint(Point{}); ok {
		t.Fatalf("expected no nearest point")
	}
	if line.LengthMeters() != 0 {
		t.Fatalf("expected zero length")
	}
}

func TestParseLineString(t *testing.T) {
	line, err := ParseLineString("LINESTRING(127.01 37.5, 127.02 37.51,127.03 37.52)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(line) != 3 {
		t.Fatalf("expected 3 points, got %d", len(line))
	}
	if line[0].Lng != 127.01 || line[0].Lat != 37.5 {
		t.Fatalf("coordinates must be lng lat, got %+v", line[0])
	}
	term, _ := line.Terminal()
	if term.Lat != 37.52 {
		t.Fatalf("unexpected terminal %+v", term)
	}

	round, err := ParseLineString(line.LineStringWKT())
	if err != nil || len(round) != 3 || round[2] != line[2] {
		t.Fatalf("wkt round trip failed: %v %+v", err, round)
	}
}

func TestParseLineStringInvalid(t *testing.T) {
	for _, in := range []string{"POINT(1 2)", "LINESTRING 1 2", "LINESTRING(1)", "LINESTRING(a b)"} {
		if _, err := ParseLineString(in); !errors.Is(err, ErrInvalidLineString) {
			t.Fatalf("expected invalid linestring for %q, got %v", in, err)
		}
	}
}

func TestParseLineStringEmpty(t *testing.T) {
	for _, in := range []string{"LINESTRING EMPTY", "LineString Empty", "LINESTRING()"} {
		line, err := ParseLineString(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if len(line) != 0 {
			t.Fatalf("%q: expected empty polyline, got %v", in, line)
		}
		if _, ok := line.Terminal(); ok {
			t.Fatalf("%q: empty polyline has no terminal", in)
		}
	}
}
