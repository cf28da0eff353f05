package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tunitrip/internal/trips"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const tripSelect = `
SELECT t.id, t.type, t.operator_id, t.operator_name, t.from_city, t.to_city,
       t.departure_time, t.arrival_time,
       l.trip_id IS NOT NULL,
       COALESCE(l.station_id, ''), COALESCE(l.custom_station_name, ''),
       COALESCE(l.price, 0), COALESCE(l.total_seats, 0), COALESCE(l.available_seats, 0),
       COALESCE(l.is_full, false), COALESCE(l.vehicle_number, ''), COALESCE(l.contact_info, ''),
       b.trip_id IS NOT NULL,
       COALESCE(b.departure_station_id, ''), COALESCE(b.arrival_station_id, ''),
       COALESCE(b.custom_departure_station_name, ''), COALESCE(b.custom_arrival_station_name, ''),
       COALESCE(b.price, 0), COALESCE(b.total_seats, 0), COALESCE(b.available_seats, 0),
       x.trip_id IS NOT NULL,
       COALESCE(x.contact_info, ''), COALESCE(x.vehicle_type, ''),
       COALESCE(x.available_space, ''), COALESCE(x.eta, ''), COALESCE(x.route, '{}')
FROM trips t
LEFT JOIN louage_trips l ON l.trip_id = t.id
LEFT JOIN bus_trips b ON b.trip_id = t.id
LEFT JOIN transporter_trips x ON x.trip_id = t.id`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTrip decodes one tripSelect row. A trip whose detail row is missing
// keeps nil Details, the same as an unknown type.
func scanTrip(m *pgtype.Map, row rowScanner) (trips.Trip, error) {
	var (
		t                           trips.Trip
		kind                        string
		hasLouage, hasBus, hasTrans bool
		l                           trips.Louage
		b                           trips.Bus
		x                           trips.Transporter
	)
	err := row.Scan(
		&t.ID, &kind, &t.OperatorID, &t.OperatorName, &t.FromCity, &t.ToCity,
		&t.DepartureTime, &t.ArrivalTime,
		&hasLouage,
		&l.StationID, &l.CustomStationName,
		&l.Price, &l.TotalSeats, &l.AvailableSeats,
		&l.IsFull, &l.VehicleNumber, &l.ContactInfo,
		&hasBus,
		&b.DepartureStationID, &b.ArrivalStationID,
		&b.CustomDepartureStationName, &b.CustomArrivalStationName,
		&b.Price, &b.TotalSeats, &b.AvailableSeats,
		&hasTrans,
		&x.ContactInfo, &x.VehicleType,
		&x.AvailableSpace, &x.ETA, m.SQLScanner(&x.Route),
	)
	if err != nil {
		return trips.Trip{}, err
	}
	t.Type = trips.Kind(kind)
	switch {
	case t.Type == trips.KindLouage && hasLouage:
		t.Details = &l
	case t.Type == trips.KindBus && hasBus:
		t.Details = &b
	case t.Type == trips.KindTransporter && hasTrans:
		t.Details = &x
	}
	return t, nil
}

// ListTrips returns every stored trip ordered by departure time.
func (s *Store) ListTrips(ctx context.Context) ([]trips.Trip, error) {
	rows, err := s.db.QueryContext(ctx, tripSelect+` ORDER BY t.departure_time, t.id`)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	m := pgtype.NewMap()
	var out []trips.Trip
	for rows.Next() {
		t, err := scanTrip(m, rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTrip(ctx context.Context, id string) (trips.Trip, error) {
	return getTrip(ctx, s.db, id)
}

func getTrip(ctx context.Context, q querier, id string) (trips.Trip, error) {
	row := q.QueryRowContext(ctx, tripSelect+` WHERE t.id = $1`, id)
	t, err := scanTrip(pgtype.NewMap(), row)
	if errors.Is(err, sql.ErrNoRows) {
		return trips.Trip{}, fmt.Errorf("trip %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return trips.Trip{}, fmt.Errorf("get trip %s: %w", id, err)
	}
	return t, nil
}

// CreateTrip stores a new trip for its operator. The operator name is
// taken from the operator's account, and the seat counters start with
// every seat free.
func (s *Store) CreateTrip(ctx context.Context, t trips.Trip) (trips.Trip, error) {
	if t.Details == nil {
		return trips.Trip{}, fmt.Errorf("create trip: %w", trips.ErrUnknownKind)
	}
	t.ID = uuid.NewString()
	switch d := t.Details.(type) {
	case *trips.Louage:
		c := *d
		c.Station = nil
		c.AvailableSeats = c.TotalSeats
		c.IsFull = false
		t.Details = &c
	case *trips.Bus:
		c := *d
		c.DepartureStation, c.ArrivalStation = nil, nil
		c.AvailableSeats = c.TotalSeats
		t.Details = &c
	case *trips.Transporter:
		c := *d
		t.Details = &c
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var name string
		err := tx.QueryRowContext(ctx, `SELECT display_name FROM users WHERE id = $1`, t.OperatorID).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("operator %s: %w", t.OperatorID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lookup operator: %w", err)
		}
		t.OperatorName = name

		_, err = tx.ExecContext(ctx, `
INSERT INTO trips (id, type, operator_id, operator_name, from_city, to_city, departure_time, arrival_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.ID, string(t.Type), t.OperatorID, t.OperatorName, t.FromCity, t.ToCity, t.DepartureTime, t.ArrivalTime)
		if err != nil {
			return fmt.Errorf("insert trip: %w", err)
		}
		return insertDetails(ctx, tx, t.ID, t.Details)
	})
	if err != nil {
		return trips.Trip{}, err
	}
	return t, nil
}

func insertDetails(ctx context.Context, tx *sql.Tx, id string, d trips.Details) error {
	var err error
	switch d := d.(type) {
	case *trips.Louage:
		_, err = tx.ExecContext(ctx, `
INSERT INTO louage_trips (trip_id, station_id, custom_station_name, price, total_seats, available_seats, is_full, vehicle_number, contact_info)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, nullString(d.StationID), nullString(d.CustomStationName), d.Price, d.TotalSeats, d.AvailableSeats,
			d.IsFull, nullString(d.VehicleNumber), nullString(d.ContactInfo))
	case *trips.Bus:
		_, err = tx.ExecContext(ctx, `
INSERT INTO bus_trips (trip_id, departure_station_id, arrival_station_id, custom_departure_station_name, custom_arrival_station_name, price, total_seats, available_seats)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, nullString(d.DepartureStationID), nullString(d.ArrivalStationID),
			nullString(d.CustomDepartureStationName), nullString(d.CustomArrivalStationName),
			d.Price, d.TotalSeats, d.AvailableSeats)
	case *trips.Transporter:
		_, err = tx.ExecContext(ctx, `
INSERT INTO transporter_trips (trip_id, contact_info, vehicle_type, available_space, eta, route)
VALUES ($1, $2, $3, $4, $5, $6)`,
			id, d.ContactInfo, d.VehicleType, d.AvailableSpace, d.ETA, routeArray(d.Route))
	default:
		return trips.ErrUnknownKind
	}
	return detailsErr(err)
}

// UpdateTrip replaces the editable fields of an existing trip. The
// operator and the trip type cannot change.
func (s *Store) UpdateTrip(ctx context.Context, t trips.Trip) (trips.Trip, error) {
	if t.Details == nil {
		return trips.Trip{}, fmt.Errorf("update trip: %w", trips.ErrUnknownKind)
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var kind string
		err := tx.QueryRowContext(ctx, `SELECT type FROM trips WHERE id = $1 FOR UPDATE`, t.ID).Scan(&kind)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("trip %s: %w", t.ID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock trip: %w", err)
		}
		if trips.Kind(kind) != t.Type {
			return fmt.Errorf("trip %s is a %s trip: %w", t.ID, kind, ErrConflict)
		}

		_, err = tx.ExecContext(ctx, `
UPDATE trips SET from_city = $2, to_city = $3, departure_time = $4, arrival_time = $5
WHERE id = $1`, t.ID, t.FromCity, t.ToCity, t.DepartureTime, t.ArrivalTime)
		if err != nil {
			return fmt.Errorf("update trip: %w", err)
		}
		return updateDetails(ctx, tx, t.ID, t.Details)
	})
	if err != nil {
		return trips.Trip{}, err
	}
	return s.GetTrip(ctx, t.ID)
}

func updateDetails(ctx context.Context, tx *sql.Tx, id string, d trips.Details) error {
	var err error
	switch d := d.(type) {
	case *trips.Louage:
		_, err = tx.ExecContext(ctx, `
UPDATE louage_trips SET station_id = $2, custom_station_name = $3, price = $4, total_seats = $5,
  available_seats = $6, is_full = $7, vehicle_number = $8, contact_info = $9
WHERE trip_id = $1`,
			id, nullString(d.StationID), nullString(d.CustomStationName), d.Price, d.TotalSeats,
			d.AvailableSeats, d.IsFull, nullString(d.VehicleNumber), nullString(d.ContactInfo))
	case *trips.Bus:
		_, err = tx.ExecContext(ctx, `
UPDATE bus_trips SET departure_station_id = $2, arrival_station_id = $3, custom_departure_station_name = $4,
  custom_arrival_station_name = $5, price = $6, total_seats = $7, available_seats = $8
WHERE trip_id = $1`,
			id, nullString(d.DepartureStationID), nullString(d.ArrivalStationID),
			nullString(d.CustomDepartureStationName), nullString(d.CustomArrivalStationName),
			d.Price, d.TotalSeats, d.AvailableSeats)
	case *trips.Transporter:
		_, err = tx.ExecContext(ctx, `
UPDATE transporter_trips SET contact_info = $2, vehicle_type = $3, available_space = $4, eta = $5, route = $6
WHERE trip_id = $1`,
			id, d.ContactInfo, d.VehicleType, d.AvailableSpace, d.ETA, routeArray(d.Route))
	default:
		return trips.ErrUnknownKind
	}
	return detailsErr(err)
}

// DeleteTrip removes a trip together with its detail row.
func (s *Store) DeleteTrip(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"louage_trips", "bus_trips", "transporter_trips"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE trip_id = $1`, id); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete trip: %w", err)
		}
		if err := affected(res); err != nil {
			return fmt.Errorf("trip %s: %w", id, err)
		}
		return nil
	})
}

func detailsErr(err error) error {
	switch {
	case err == nil:
		return nil
	case isForeignKeyViolation(err):
		return fmt.Errorf("station reference: %w", ErrNotFound)
	default:
		return fmt.Errorf("write trip details: %w", err)
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func routeArray(route []string) []string {
	if route == nil {
		return []string{}
	}
	return route
}
