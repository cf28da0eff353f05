package db

import (
	"context"
	"database/sql"
	"fmt"

	"tunitrip/internal/trips"

	"github.com/google/uuid"
)

// ListStations returns the directory in insertion order, which decides
// the station used for a city shared by several entries.
func (s *Store) ListStations(ctx context.Context) ([]trips.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, city, lat, lng FROM stations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()
	var out []trips.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanStation(row rowScanner) (trips.Station, error) {
	var st trips.Station
	if err := row.Scan(&st.ID, &st.Name, &st.City, &st.Lat, &st.Lng); err != nil {
		return trips.Station{}, fmt.Errorf("scan station: %w", err)
	}
	return st, nil
}

// CreateStation inserts st, generating an id when it has none.
func (s *Store) CreateStation(ctx context.Context, st trips.Station) (trips.Station, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stations (id, name, city, lat, lng) VALUES ($1, $2, $3, $4, $5)`,
		st.ID, st.Name, st.City, st.Lat, st.Lng)
	if isUniqueViolation(err) {
		return trips.Station{}, fmt.Errorf("station %s: %w", st.ID, ErrConflict)
	}
	if err != nil {
		return trips.Station{}, fmt.Errorf("insert station: %w", err)
	}
	return st, nil
}

func (s *Store) UpdateStation(ctx context.Context, st trips.Station) (trips.Station, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stations SET name = $2, city = $3, lat = $4, lng = $5 WHERE id = $1`,
		st.ID, st.Name, st.City, st.Lat, st.Lng)
	if err != nil {
		return trips.Station{}, fmt.Errorf("update station: %w", err)
	}
	if err := affected(res); err != nil {
		return trips.Station{}, fmt.Errorf("station %s: %w", st.ID, err)
	}
	return st, nil
}

// Trips bound to a deleted station keep its name as their custom station
// name, so they still have something to display.
var detachStationSQL = []string{
	`UPDATE louage_trips l SET custom_station_name = COALESCE(l.custom_station_name, s.name)
FROM stations s WHERE s.id = $1 AND l.station_id = s.id`,
	`UPDATE bus_trips b SET custom_departure_station_name = COALESCE(b.custom_departure_station_name, s.name)
FROM stations s WHERE s.id = $1 AND b.departure_station_id = s.id`,
	`UPDATE bus_trips b SET custom_arrival_station_name = COALESCE(b.custom_arrival_station_name, s.name)
FROM stations s WHERE s.id = $1 AND b.arrival_station_id = s.id`,
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DeleteStation removes a station. Trips bound to it fall back to the
// copied name and to city lookups.
func (s *Store) DeleteStation(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return deleteStation(ctx, tx, id)
	})
}

func deleteStation(ctx context.Context, q execer, id string) error {
	for _, stmt := range detachStationSQL {
		if _, err := q.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("detach station %s: %w", id, err)
		}
	}
	res, err := q.ExecContext(ctx, `DELETE FROM stations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete station: %w", err)
	}
	if err := affected(res); err != nil {
		return fmt.Errorf("station %s: %w", id, err)
	}
	return nil
}
