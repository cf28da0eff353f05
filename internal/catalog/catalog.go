package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tunitrip/internal/trips"
)

var ErrNotLoaded = errors.New("catalog not loaded")

// Source is the upstream the catalog pulls from.
type Source interface {
	ListTrips(ctx context.Context) ([]trips.Trip, error)
	ListStations(ctx context.Context) ([]trips.Station, error)
}

// Metrics receives refresh outcomes. May be nil.
type Metrics interface {
	RefreshObserved(ok bool, tripCount int)
}

// Snapshot is an immutable view of trips and stations taken at LoadedAt.
// Callers must not modify the slices it exposes.
type Snapshot struct {
	Trips    []trips.Trip
	Stations *trips.Directory
	LoadedAt time.Time

	byID map[string]int
}

// NewSnapshot indexes stations and resolves every trip's station
// references against them.
func NewSnapshot(all []trips.Trip, stations []trips.Station, at time.Time) *Snapshot {
	dir := trips.NewDirectory(stations)
	s := &Snapshot{
		Trips:    make([]trips.Trip, len(all)),
		Stations: dir,
		LoadedAt: at,
		byID:     make(map[string]int, len(all)),
	}
	for i, t := range all {
		s.Trips[i] = dir.Attach(t)
		if _, dup := s.byID[t.ID]; !dup {
			s.byID[t.ID] = i
		}
	}
	return s
}

// Trip looks up a trip by id.
func (s *Snapshot) Trip(id string) (trips.Trip, bool) {
	if s == nil {
		return trips.Trip{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return trips.Trip{}, false
	}
	return s.Trips[i], true
}

// Catalog holds the current snapshot. Readers get whole snapshots; a
// refresh swaps the pointer so no computation sees a partial update.
type Catalog struct {
	src     Source
	metrics Metrics

	refreshMu sync.Mutex
	current   atomic.Pointer[Snapshot]
}

func New(src Source, m Metrics) *Catalog {
	return &Catalog{src: src, metrics: m}
}

// Snapshot returns the current snapshot, nil before the first load.
func (c *Catalog) Snapshot() *Snapshot {
	return c.current.Load()
}

// Refresh pulls trips and stations and publishes a new snapshot. On
// failure the previous snapshot stays current.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	ts, err := c.src.ListTrips(ctx)
	if err != nil {
		c.observe(false, 0)
		return fmt.Errorf("refresh trips: %w", err)
	}
	stations, err := c.src.ListStations(ctx)
	if err != nil {
		c.observe(false, 0)
		return fmt.Errorf("refresh stations: %w", err)
	}
	c.current.Store(NewSnapshot(ts, stations, time.Now()))
	c.observe(true, len(ts))
	return nil
}

func (c *Catalog) observe(ok bool, n int) {
	if c.metrics != nil {
		c.metrics.RefreshObserved(ok, n)
	}
}

// Run refreshes every interval until ctx is done.
func (c *Catalog) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				log.Printf("catalog refresh error: %v", err)
			}
		}
	}
}
