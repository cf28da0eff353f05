package api

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	"tunitrip/internal/db"
	"tunitrip/internal/trips"
)

// fakeStore is an in-memory Store that also feeds the catalog.
type fakeStore struct {
	mu        sync.Mutex
	trips     []trips.Trip
	stations  []trips.Station
	users     []db.User
	passwords map[string]string
	seq       int
}

func (f *fakeStore) ListTrips(context.Context) ([]trips.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.trips), nil
}

func (f *fakeStore) ListStations(context.Context) ([]trips.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.stations), nil
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return prefix + strconv.Itoa(f.seq)
}

func (f *fakeStore) user(id string) (int, bool) {
	i := slices.IndexFunc(f.users, func(u db.User) bool { return u.ID == id })
	return i, i >= 0
}

func (f *fakeStore) CreateTrip(_ context.Context, t trips.Trip) (trips.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.user(t.OperatorID)
	if !ok {
		return trips.Trip{}, fmt.Errorf("operator %s: %w", t.OperatorID, db.ErrNotFound)
	}
	t.ID = f.nextID("trip-")
	t.OperatorName = f.users[i].DisplayName
	switch d := t.Details.(type) {
	case *trips.Louage:
		c := *d
		c.AvailableSeats, c.IsFull = c.TotalSeats, false
		t.Details = &c
	case *trips.Bus:
		c := *d
		c.AvailableSeats = c.TotalSeats
		t.Details = &c
	}
	f.trips = append(f.trips, t)
	return t, nil
}

func (f *fakeStore) UpdateTrip(_ context.Context, t trips.Trip) (trips.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.IndexFunc(f.trips, func(x trips.Trip) bool { return x.ID == t.ID })
	if i < 0 {
		return trips.Trip{}, fmt.Errorf("trip %s: %w", t.ID, db.ErrNotFound)
	}
	if f.trips[i].Type != t.Type {
		return trips.Trip{}, fmt.Errorf("trip %s: %w", t.ID, db.ErrConflict)
	}
	t.OperatorID, t.OperatorName = f.trips[i].OperatorID, f.trips[i].OperatorName
	f.trips[i] = t
	return t, nil
}

func (f *fakeStore) DeleteTrip(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.trips)
	f.trips = slices.DeleteFunc(f.trips, func(t trips.Trip) bool { return t.ID == id })
	if len(f.trips) == n {
		return fmt.Errorf("trip %s: %w", id, db.ErrNotFound)
	}
	return nil
}

func (f *fakeStore) CreateStation(_ context.Context, st trips.Station) (trips.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st.ID == "" {
		st.ID = f.nextID("station-")
	}
	if slices.ContainsFunc(f.stations, func(x trips.Station) bool { return x.ID == st.ID }) {
		return trips.Station{}, fmt.Errorf("station %s: %w", st.ID, db.ErrConflict)
	}
	f.stations = append(f.stations, st)
	return st, nil
}

func (f *fakeStore) UpdateStation(_ context.Context, st trips.Station) (trips.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.IndexFunc(f.stations, func(x trips.Station) bool { return x.ID == st.ID })
	if i < 0 {
		return trips.Station{}, fmt.Errorf("station %s: %w", st.ID, db.ErrNotFound)
	}
	f.stations[i] = st
	return st, nil
}

func (f *fakeStore) DeleteStation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.stations)
	f.stations = slices.DeleteFunc(f.stations, func(s trips.Station) bool { return s.ID == id })
	if len(f.stations) == n {
		return fmt.Errorf("station %s: %w", id, db.ErrNotFound)
	}
	return nil
}

func (f *fakeStore) CreateUser(_ context.Context, nu db.NewUser) (db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slices.ContainsFunc(f.users, func(u db.User) bool { return u.Username == nu.Username }) {
		return db.User{}, fmt.Errorf("username %s: %w", nu.Username, db.ErrConflict)
	}
	u := db.User{ID: nu.ID, Username: nu.Username, DisplayName: nu.DisplayName, Role: nu.Role}
	if u.ID == "" {
		u.ID = f.nextID("user-")
	}
	f.users = append(f.users, u)
	if f.passwords == nil {
		f.passwords = map[string]string{}
	}
	f.passwords[u.Username] = nu.Password
	return u, nil
}

func (f *fakeStore) Authenticate(_ context.Context, username, password string) (db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username && f.passwords[username] == password {
			return u, nil
		}
	}
	return db.User{}, db.ErrInvalidCredentials
}

func (f *fakeStore) ListUsers(context.Context) ([]db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.users)
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeStore) UpdateUserRole(_ context.Context, id string, role db.Role) (db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.user(id)
	if !ok {
		return db.User{}, fmt.Errorf("user %s: %w", id, db.ErrNotFound)
	}
	f.users[i].Role = role
	return f.users[i], nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.user(id)
	if !ok {
		return fmt.Errorf("user %s: %w", id, db.ErrNotFound)
	}
	if f.users[i].Username == db.PrimaryAdmin {
		return fmt.Errorf("cannot delete the primary admin account: %w", db.ErrForbidden)
	}
	f.users = slices.Delete(f.users, i, i+1)
	f.trips = slices.DeleteFunc(f.trips, func(t trips.Trip) bool { return t.OperatorID == id })
	return nil
}
