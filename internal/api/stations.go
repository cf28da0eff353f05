package api

import (
	"net/http"

	"tunitrip/internal/locations"
	"tunitrip/internal/trips"

	"github.com/julienschmidt/httprouter"
)

func (s *Server) handleListStations(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	out := snap.Stations.All()
	if out == nil {
		out = []trips.Station{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateStation(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var st trips.Station
	if err := decodeJSON(w, r, &st); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := trips.ValidateStation(st); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.store.CreateStation(r.Context(), st)
	if err != nil {
		writeStoreError(w, err, "Error creating station")
		return
	}
	s.refresh(r.Context())
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateStation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var st trips.Station
	if err := decodeJSON(w, r, &st); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st.ID = ps.ByName("id")
	if err := trips.ValidateStation(st); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.store.UpdateStation(r.Context(), st)
	if err != nil {
		writeStoreError(w, err, "Error updating station")
		return
	}
	s.refresh(r.Context())
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteStation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.store.DeleteStation(r.Context(), ps.ByName("id")); err != nil {
		writeStoreError(w, err, "Error deleting station")
		return
	}
	s.refresh(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLocations(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	ref := s.locations
	if ref == nil {
		ref = locations.Default()
	}
	writeJSON(w, http.StatusOK, ref)
}
