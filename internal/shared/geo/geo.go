package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	earthRadiusKm = 6371.0
	earthRadiusM  = 6371000.0
)

var ErrInvalidLineString = errors.New("invalid linestring")

type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// HaversineKm returns the great-circle distance between two coordinates in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return haversine(lat1, lng1, lat2, lng2, earthRadiusKm)
}

// HaversineMeters returns the great-circle distance between two coordinates in meters.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	return haversine(lat1, lng1, lat2, lng2, earthRadiusM)
}

func haversine(lat1, lng1, lat2, lng2, radius float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * radius * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// DistanceMeters is HaversineMeters between two points.
func DistanceMeters(a, b Point) float64 {
	return HaversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Polyline is an ordered route. The last point is the summit.
type Polyline []Point

func (p Polyline) Terminal() (Point, bool) {
	if len(p) == 0 {
		return Point{}, false
	}
	return p[len(p)-1], true
}

func (p Polyline) Centroid() (Point, bool) {
	if len(p) == 0 {
		return Point{}, false
	}
	var lat, lng float64
	for _, pt := range p {
		lat += pt.Lat
		lng += pt.Lng
	}
	n := float64(len(p))
	return Point{Lat: lat / n, Lng: lng / n}, true
}

// NearestPoint returns the vertex closest to target and its distance in meters.
func (p Polyline) NearestPoint(target Point) (Point, float64, bool) {
	if len(p) == 0 {
		return Point{}, 0, false
	}
	best := p[0]
	bestDist := DistanceMeters(best, target)
	for _, pt := range p[1:] {
		if d := DistanceMeters(pt, target); d < bestDist {
			best, bestDist = pt, d
		}
	}
	return best, bestDist, true
}

func (p Polyline) LengthMeters() float64 {
	var total float64
	for i := 1; i < len(p); i++ {
		total += DistanceMeters(p[i-1], p[i])
	}
	return total
}

// ParseLineString reads a WKT LINESTRING as produced by PostGIS ST_AsText.
// Coordinates are "lng lat" pairs. "LINESTRING EMPTY" yields an empty polyline.
func ParseLineString(wkt string) (Polyline, error) {
	s := strings.TrimSpace(wkt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "LINESTRING") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLineString, wkt)
	}
	if strings.TrimSpace(upper[len("LINESTRING"):]) == "EMPTY" {
		return Polyline{}, nil
	}
	open := strings.Index(s, "(")
	closing := strings.LastIndex(s, ")")
	if open < 0 || closing <= open {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLineString, wkt)
	}

	body := strings.TrimSpace(s[open+1 : closing])
	if body == "" {
		return Polyline{}, nil
	}

	pairs := strings.Split(body, ",")
	line := make(Polyline, 0, len(pairs))
	for _, pair := range pairs {
		fields := strings.Fields(pair)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: coordinate %q", ErrInvalidLineString, pair)
		}
		lng, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLineString, err)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLineString, err)
		}
		line = append(line, Point{Lat: lat, Lng: lng})
	}
	return line, nil
}

// LineStringWKT renders a polyline back to WKT.
func (p Polyline) LineStringWKT() string {
	var b strings.Builder
	b.WriteString("LINESTRING(")
	for i, pt := range p {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(pt.Lng, 'f', -1, 64))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(pt.Lat, 'f', -1, 64))
	}
	b.WriteByte(')')
	return b.String()
}
