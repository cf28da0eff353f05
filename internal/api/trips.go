package api

import (
	"net/http"

	"tunitrip/internal/geo"
	"tunitrip/internal/projection"
	"tunitrip/internal/trips"

	"github.com/julienschmidt/httprouter"
)

func (s *Server) handleListTrips(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	out := snap.Trips
	if out == nil {
		out = []trips.Trip{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var t trips.Trip
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if t.OperatorID == "" {
		writeError(w, http.StatusBadRequest, "operatorId is required")
		return
	}
	if err := trips.Validate(t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.store.CreateTrip(r.Context(), t)
	if err != nil {
		writeStoreError(w, err, "Error creating trip")
		return
	}
	s.refresh(r.Context())
	writeJSON(w, http.StatusCreated, s.attach(created))
}

func (s *Server) handleUpdateTrip(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var t trips.Trip
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t.ID = ps.ByName("id")
	if err := trips.Validate(t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.store.UpdateTrip(r.Context(), t)
	if err != nil {
		writeStoreError(w, err, "Error updating trip")
		return
	}
	s.refresh(r.Context())
	writeJSON(w, http.StatusOK, s.attach(updated))
}

func (s *Server) handleDeleteTrip(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.store.DeleteTrip(r.Context(), ps.ByName("id")); err != nil {
		writeStoreError(w, err, "Error deleting trip")
		return
	}
	s.refresh(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// attach resolves station references of a freshly written trip.
func (s *Server) attach(t trips.Trip) trips.Trip {
	if snap := s.catalog.Snapshot(); snap != nil {
		return snap.Stations.Attach(t)
	}
	return t
}

type pathResponse struct {
	TripID         string           `json:"tripId"`
	Points         []geo.Coordinate `json:"points"`
	Polyline       string           `json:"polyline"`
	DistanceMeters float64          `json:"distanceMeters"`
}

// handleTripPath returns the path the live marker of a trip follows.
func (s *Server) handleTripPath(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	id := ps.ByName("id")
	t, found := snap.Trip(id)
	if !found {
		writeError(w, http.StatusNotFound, "Trip not found")
		return
	}
	path, ok := projection.PathFor(t, snap.Stations)
	if !ok {
		writeError(w, http.StatusNotFound, "Trip has no resolvable route")
		return
	}
	_, total := geo.Segments(path)
	writeJSON(w, http.StatusOK, pathResponse{
		TripID:         id,
		Points:         path,
		Polyline:       geo.EncodePolyline(path),
		DistanceMeters: total,
	})
}
