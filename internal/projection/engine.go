package projection

import (
	"fmt"
	"time"

	"tunitrip/internal/geo"
	"tunitrip/internal/trips"
)

const (
	// TransporterCycle replaces the multi-day duration of freight trips so
	// their markers visibly move.
	TransporterCycle = 4 * time.Hour

	// offsetStep staggers trips sharing a route so their markers do not overlap.
	offsetStep = 30 * time.Second

	// Synthetic destination for transporters whose destination (usually
	// abroad) has no station.
	transporterLatOffset = 2.5
	transporterLngOffset = 1.0
)

// Marker is the simulated position of one trip.
type Marker struct {
	TripID       string         `json:"tripId"`
	Type         trips.Kind     `json:"type"`
	OperatorName string         `json:"operatorName"`
	FromCity     string         `json:"fromCity"`
	ToCity       string         `json:"toCity"`
	Origin       string         `json:"origin,omitempty"`
	Position     geo.Coordinate `json:"position"`
	Heading      float64        `json:"heading"`
	Progress     float64        `json:"progress"`
	Detail       string         `json:"detail,omitempty"`
}

// CityLookup resolves a city name to a coordinate.
type CityLookup func(city string) (geo.Coordinate, bool)

// ResolveEndpoints finds the start and end coordinates of t. Bound
// stations win over the first station of the trip's city.
func ResolveEndpoints(t trips.Trip, dir *trips.Directory) (start, end geo.Coordinate, ok bool) {
	switch d := t.Details.(type) {
	case *trips.Louage:
		start, ok = stationOrCity(dir, d.Station, d.StationID, t.FromCity)
		if !ok {
			return start, end, false
		}
		end, ok = dir.CityCoordinate(t.ToCity)
		return start, end, ok
	case *trips.Bus:
		start, ok = stationOrCity(dir, d.DepartureStation, d.DepartureStationID, t.FromCity)
		if !ok {
			return start, end, false
		}
		end, ok = stationOrCity(dir, d.ArrivalStation, d.ArrivalStationID, t.ToCity)
		return start, end, ok
	case *trips.Transporter:
		start, ok = dir.CityCoordinate(t.FromCity)
		if !ok {
			return start, end, false
		}
		if c, found := dir.CityCoordinate(t.ToCity); found {
			return start, c, true
		}
		end = geo.Coordinate{Lat: start.Lat + transporterLatOffset, Lng: start.Lng + transporterLngOffset}
		return start, end, true
	default:
		return start, end, false
	}
}

func stationOrCity(dir *trips.Directory, bound *trips.Station, id, city string) (geo.Coordinate, bool) {
	if bound != nil {
		return bound.Coordinate, true
	}
	if s, ok := dir.ByID(id); ok {
		return s.Coordinate, true
	}
	return dir.CityCoordinate(city)
}

// BuildPath returns start, the resolvable transporter waypoints in route
// order, and end, with consecutive duplicates collapsed.
func BuildPath(t trips.Trip, start, end geo.Coordinate, lookup CityLookup) []geo.Coordinate {
	path := []geo.Coordinate{start}
	if tr, ok := t.Details.(*trips.Transporter); ok && lookup != nil {
		for _, city := range tr.Route {
			if c, found := lookup(city); found {
				path = append(path, c)
			}
		}
	}
	path = append(path, end)
	return geo.Compact(path)
}

// PathFor resolves and builds the projection path of t. ok is false when
// the trip cannot be projected.
func PathFor(t trips.Trip, dir *trips.Directory) ([]geo.Coordinate, bool) {
	start, end, ok := ResolveEndpoints(t, dir)
	if !ok {
		return nil, false
	}
	path := BuildPath(t, start, end, dir.CityCoordinate)
	if len(path) < 2 {
		return nil, false
	}
	return path, true
}

// CycleDuration is the period over which t's marker travels its path.
func CycleDuration(t trips.Trip) (time.Duration, bool) {
	switch t.Details.(type) {
	case *trips.Louage, *trips.Bus:
		return t.ArrivalTime.Sub(t.DepartureTime), true
	case *trips.Transporter:
		return TransporterCycle, true
	default:
		return 0, false
	}
}

// ComputeProgress maps now onto t's cycle. The result is in [0,1); ok is
// false when the cycle duration is not positive.
func ComputeProgress(t trips.Trip, now time.Time) (float64, bool) {
	total, ok := CycleDuration(t)
	if !ok {
		return 0, false
	}
	totalMs := total.Milliseconds()
	if totalMs <= 0 {
		return 0, false
	}
	sinceMidnight := now.Sub(midnight(now)).Milliseconds()
	elapsed := (sinceMidnight + tripOffset(t.ID).Milliseconds()) % totalMs
	if elapsed < 0 {
		elapsed += totalMs
	}
	return float64(elapsed) / float64(totalMs), true
}

// tripOffset derives a stable stagger from the second character of id.
func tripOffset(id string) time.Duration {
	r := []rune(id)
	if len(r) < 2 {
		return 0
	}
	return time.Duration(r[1]) * offsetStep
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// LocateOnPath walks totalDistance*progress meters along path and returns
// the interpolated position and the heading of the segment it lies on.
// It falls back to the last point with heading 0 when no segment
// qualifies or the path has no length.
func LocateOnPath(path []geo.Coordinate, segments []float64, totalDistance, progress float64) (geo.Coordinate, float64) {
	if len(path) == 0 {
		return geo.Coordinate{}, 0
	}
	last := path[len(path)-1]
	if totalDistance == 0 {
		return last, 0
	}
	target := totalDistance * progress
	covered := 0.0
	for i, length := range segments {
		if i+1 >= len(path) {
			break
		}
		if covered+length >= target {
			frac := 0.0
			if length > 0 {
				frac = (target - covered) / length
			}
			a, b := path[i], path[i+1]
			return geo.Lerp(a, b, frac), geo.Heading(a, b)
		}
		covered += length
	}
	return last, 0
}

// ComputeSnapshot projects every eligible trip at now. Trips that cannot
// be resolved, have a degenerate cycle or a zero-length path are left
// out. At most one marker is produced per trip id.
func ComputeSnapshot(all []trips.Trip, dir *trips.Directory, now time.Time) []Marker {
	markers := make([]Marker, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, t := range all {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		m, ok := project(t, dir, now)
		if !ok {
			continue
		}
		seen[t.ID] = struct{}{}
		markers = append(markers, m)
	}
	return markers
}

func project(t trips.Trip, dir *trips.Directory, now time.Time) (Marker, bool) {
	t = dir.Attach(t)
	path, ok := PathFor(t, dir)
	if !ok {
		return Marker{}, false
	}
	progress, ok := ComputeProgress(t, now)
	if !ok {
		return Marker{}, false
	}
	segments, total := geo.Segments(path)
	if total == 0 {
		return Marker{}, false
	}
	pos, heading := LocateOnPath(path, segments, total, progress)
	m := Marker{
		TripID:       t.ID,
		Type:         t.Type,
		OperatorName: t.OperatorName,
		FromCity:     t.FromCity,
		ToCity:       t.ToCity,
		Position:     pos,
		Heading:      heading,
		Progress:     progress,
	}
	switch d := t.Details.(type) {
	case *trips.Louage:
		m.Origin = d.StationLabel()
		m.Detail = seatsDetail(d.AvailableSeats)
	case *trips.Bus:
		m.Origin = d.DepartureLabel()
		m.Detail = seatsDetail(d.AvailableSeats)
	case *trips.Transporter:
		m.Detail = d.AvailableSpace
	default:
		return Marker{}, false
	}
	return m, true
}

func seatsDetail(n int) string {
	if n == 1 {
		return "1 seat available"
	}
	return fmt.Sprintf("%d seats available", n)
}
