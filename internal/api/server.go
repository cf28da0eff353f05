// Package api serves the marketplace HTTP interface: trip and station
// management, search, accounts and the live map.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"tunitrip/internal/catalog"
	"tunitrip/internal/db"
	"tunitrip/internal/locations"
	"tunitrip/internal/trips"

	"github.com/julienschmidt/httprouter"
)

// Store is the persistence the handlers write through.
type Store interface {
	CreateTrip(ctx context.Context, t trips.Trip) (trips.Trip, error)
	UpdateTrip(ctx context.Context, t trips.Trip) (trips.Trip, error)
	DeleteTrip(ctx context.Context, id string) error

	CreateStation(ctx context.Context, st trips.Station) (trips.Station, error)
	UpdateStation(ctx context.Context, st trips.Station) (trips.Station, error)
	DeleteStation(ctx context.Context, id string) error

	CreateUser(ctx context.Context, nu db.NewUser) (db.User, error)
	Authenticate(ctx context.Context, username, password string) (db.User, error)
	ListUsers(ctx context.Context) ([]db.User, error)
	UpdateUserRole(ctx context.Context, id string, role db.Role) (db.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Catalog serves reads and is refreshed after every write.
type Catalog interface {
	Snapshot() *catalog.Snapshot
	Refresh(ctx context.Context) error
}

type Metrics interface {
	SearchObserved(kind string)
	WSClientsAdd(delta int)
}

type Options struct {
	// Location is the zone of local midnight and departure filters.
	Location       *time.Location
	RateLimitRPS   float64
	RateLimitBurst int
	Metrics        Metrics
}

type Server struct {
	store     Store
	catalog   Catalog
	locations *locations.Reference
	hub       *Hub
	limiter   *rateLimiter
	loc       *time.Location
	metrics   Metrics
	now       func() time.Time
}

func New(store Store, cat Catalog, ref *locations.Reference, opts Options) *Server {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		store:     store,
		catalog:   cat,
		locations: ref,
		loc:       loc,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
	s.hub = newHub(s)
	if opts.RateLimitRPS > 0 {
		s.limiter = newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}
	return s
}

// Hub is the projection sink feeding live clients.
func (s *Server) Hub() *Hub { return s.hub }

// Close releases the rate limiter and disconnects live clients.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.hub.Close()
}

func (s *Server) routes() *httprouter.Router {
	r := httprouter.New()

	r.GET("/healthz", s.handleHealth)

	r.GET("/api/trips", s.handleListTrips)
	r.POST("/api/trips", s.handleCreateTrip)
	r.PUT("/api/trips/:id", s.handleUpdateTrip)
	r.DELETE("/api/trips/:id", s.handleDeleteTrip)
	r.GET("/api/trips/:id/path", s.handleTripPath)

	r.GET("/api/stations", s.handleListStations)
	r.POST("/api/stations", s.handleCreateStation)
	r.PUT("/api/stations/:id", s.handleUpdateStation)
	r.DELETE("/api/stations/:id", s.handleDeleteStation)

	r.GET("/api/locations", s.handleLocations)
	r.GET("/api/search", s.handleSearch)

	r.GET("/api/live", s.handleLive)
	r.GET("/api/live/ws", s.hub.ServeWS)
	r.GET("/api/live/vehicle-positions.pb", s.handleFeed)

	r.GET("/api/users", s.handleListUsers)
	r.PUT("/api/users/:id", s.handleUpdateUserRole)
	r.DELETE("/api/users/:id", s.handleDeleteUser)

	r.POST("/api/auth/signup", s.handleSignup)
	r.POST("/api/auth/login", s.handleLogin)

	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// Handler assembles the router and middleware. The websocket route skips
// compression since the upgrade needs the raw connection.
func (s *Server) Handler() http.Handler {
	router := s.routes()
	compressed := gzipMiddleware(router)
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/live/ws" {
			router.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
	if s.limiter != nil {
		h = s.limiter.middleware(h)
	}
	return logMiddleware(corsMiddleware(h))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	snap := s.catalog.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, catalog.ErrNotLoaded.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"trips":    len(snap.Trips),
		"stations": snap.Stations.Len(),
		"loadedAt": snap.LoadedAt,
		"clients":  s.hub.Len(),
	})
}

// snapshot returns the current catalog snapshot or answers 503.
func (s *Server) snapshot(w http.ResponseWriter) (*catalog.Snapshot, bool) {
	snap := s.catalog.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, catalog.ErrNotLoaded.Error())
		return nil, false
	}
	return snap, true
}

// refresh reloads the catalog after a committed write. A failed reload
// leaves the previous snapshot until the next periodic refresh.
func (s *Server) refresh(ctx context.Context) {
	if err := s.catalog.Refresh(ctx); err != nil {
		log.Printf("catalog refresh after write: %v", err)
	}
}
