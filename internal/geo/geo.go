package geo

import (
	"math"

	"github.com/twpayne/go-polyline"
)

// EarthRadiusMeters is the mean radius used by Distance.
const EarthRadiusMeters = 6371000.0

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Distance returns the haversine great-circle distance in meters.
func Distance(a, b Coordinate) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	phi1 := toRad(a.Lat)
	phi2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Segments returns the length of every consecutive segment of path and their sum.
func Segments(path []Coordinate) ([]float64, float64) {
	if len(path) < 2 {
		return nil, 0
	}
	segs := make([]float64, len(path)-1)
	total := 0.0
	for i := 0; i < len(path)-1; i++ {
		d := Distance(path[i], path[i+1])
		segs[i] = d
		total += d
	}
	return segs, total
}

// Compact drops points identical (lat and lng) to their predecessor.
func Compact(path []Coordinate) []Coordinate {
	out := make([]Coordinate, 0, len(path))
	for i, p := range path {
		if i > 0 && p == path[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Lerp interpolates latitude and longitude linearly between a and b.
func Lerp(a, b Coordinate, frac float64) Coordinate {
	return Coordinate{
		Lat: a.Lat + (b.Lat-a.Lat)*frac,
		Lng: a.Lng + (b.Lng-a.Lng)*frac,
	}
}

// Heading is the planar angle of the a->b vector, atan2(dLat, dLng), in degrees.
// 0 points east, 90 north.
func Heading(a, b Coordinate) float64 {
	return math.Atan2(b.Lat-a.Lat, b.Lng-a.Lng) * 180 / math.Pi
}

// EncodePolyline encodes path with the Google polyline algorithm (precision 5).
func EncodePolyline(path []Coordinate) string {
	coords := make([][]float64, len(path))
	for i, p := range path {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}
