package api

import (
	"net/http"
	"net/url"
	"time"

	"tunitrip/internal/catalog"
	"tunitrip/internal/locations"
	"tunitrip/internal/projection"
	"tunitrip/internal/search"
	"tunitrip/internal/trips"

	"github.com/julienschmidt/httprouter"
)

func (s *Server) ref() *locations.Reference {
	if s.locations != nil {
		return s.locations
	}
	return locations.Default()
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q, err := search.FromValues(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.Location = s.loc
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	if s.metrics != nil {
		s.metrics.SearchObserved(string(q.Type))
	}
	found := search.Search(snap.Trips, s.ref(), q)
	if r.URL.Query().Get("sort") == "departure" {
		found = search.SortByDeparture(found)
	}
	writeJSON(w, http.StatusOK, found)
}

// liveQuery parses the optional live map filter. Without a type the map
// shows every trip.
func (s *Server) liveQuery(v url.Values) (*search.Query, error) {
	if v.Get("type") == "" {
		return nil, nil
	}
	q, err := search.FromValues(v)
	if err != nil {
		return nil, err
	}
	q.Location = s.loc
	return &q, nil
}

// filterMarkers keeps the markers of trips matching q.
func (s *Server) filterMarkers(markers []projection.Marker, snap *catalog.Snapshot, q *search.Query) []projection.Marker {
	if q == nil {
		return markers
	}
	var matched []trips.Trip
	if snap != nil {
		matched = search.Search(snap.Trips, s.ref(), *q)
	}
	keep := make(map[string]struct{}, len(matched))
	for _, t := range matched {
		keep[t.ID] = struct{}{}
	}
	out := make([]projection.Marker, 0, len(keep))
	for _, m := range markers {
		if _, ok := keep[m.TripID]; ok {
			out = append(out, m)
		}
	}
	return out
}

type liveResponse struct {
	At      time.Time           `json:"at"`
	Markers []projection.Marker `json:"markers"`
}

// currentMarkers projects the catalog at request time.
func (s *Server) currentMarkers(w http.ResponseWriter, r *http.Request) (time.Time, []projection.Marker, bool) {
	q, err := s.liveQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, nil, false
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return time.Time{}, nil, false
	}
	now := s.now().In(s.loc)
	markers := projection.ComputeSnapshot(snap.Trips, snap.Stations, now)
	return now, s.filterMarkers(markers, snap, q), true
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	at, markers, ok := s.currentMarkers(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, liveResponse{At: at, Markers: markers})
}
