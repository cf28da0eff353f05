package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"tunitrip/internal/config"
	"tunitrip/internal/db"
	"tunitrip/internal/geo"
	"tunitrip/internal/trips"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	Stations []seedStation `yaml:"stations"`
	Users    []seedUser    `yaml:"users"`
	Trips    []seedTrip    `yaml:"trips"`
}

type seedStation struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	City string  `yaml:"city"`
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
}

type seedUser struct {
	ID          string `yaml:"id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	DisplayName string `yaml:"displayName"`
	Role        string `yaml:"role"`
}

type seedTrip struct {
	Type       string        `yaml:"type"`
	OperatorID string        `yaml:"operatorId"`
	FromCity   string        `yaml:"fromCity"`
	ToCity     string        `yaml:"toCity"`
	DepartIn   time.Duration `yaml:"departIn"`
	DepartAt   string        `yaml:"departAt"`
	Duration   time.Duration `yaml:"duration"`

	StationID          string  `yaml:"stationId"`
	DepartureStationID string  `yaml:"departureStationId"`
	ArrivalStationID   string  `yaml:"arrivalStationId"`
	Price              float64 `yaml:"price"`
	TotalSeats         int     `yaml:"totalSeats"`
	AvailableSeats     int     `yaml:"availableSeats"`
	IsFull             bool    `yaml:"isFull"`
	VehicleNumber      string  `yaml:"vehicleNumber"`
	ContactInfo        string  `yaml:"contactInfo"`

	VehicleType    string   `yaml:"vehicleType"`
	AvailableSpace string   `yaml:"availableSpace"`
	ETA            string   `yaml:"eta"`
	Route          []string `yaml:"route"`
}

func parseSeed(data []byte) (*seedFile, error) {
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &sf, nil
}

// departure resolves the trip's start relative to now. departAt is a
// wall-clock time on now's date in now's location.
func (st seedTrip) departure(now time.Time) (time.Time, error) {
	if st.DepartAt == "" {
		return now.Add(st.DepartIn), nil
	}
	clock, err := time.Parse("15:04", st.DepartAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("departAt %q: %w", st.DepartAt, err)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, now.Location()), nil
}

// buildTrip turns a seed entry into a trip with the seat counters it
// should end up with.
func buildTrip(st seedTrip, now time.Time) (trips.Trip, error) {
	dep, err := st.departure(now)
	if err != nil {
		return trips.Trip{}, err
	}
	if st.Duration <= 0 {
		return trips.Trip{}, fmt.Errorf("trip %s→%s: duration must be positive", st.FromCity, st.ToCity)
	}

	var d trips.Details
	switch trips.Kind(st.Type) {
	case trips.KindLouage:
		d = &trips.Louage{
			StationID:      st.StationID,
			Price:          st.Price,
			TotalSeats:     st.TotalSeats,
			AvailableSeats: st.AvailableSeats,
			IsFull:         st.IsFull,
			VehicleNumber:  st.VehicleNumber,
			ContactInfo:    st.ContactInfo,
		}
	case trips.KindBus:
		d = &trips.Bus{
			DepartureStationID: st.DepartureStationID,
			ArrivalStationID:   st.ArrivalStationID,
			Price:              st.Price,
			TotalSeats:         st.TotalSeats,
			AvailableSeats:     st.AvailableSeats,
		}
	case trips.KindTransporter:
		d = &trips.Transporter{
			ContactInfo:    st.ContactInfo,
			VehicleType:    st.VehicleType,
			AvailableSpace: st.AvailableSpace,
			ETA:            st.ETA,
			Route:          st.Route,
		}
	default:
		return trips.Trip{}, fmt.Errorf("trip type %q: %w", st.Type, trips.ErrUnknownKind)
	}

	t := trips.New(d)
	t.OperatorID = st.OperatorID
	t.FromCity = st.FromCity
	t.ToCity = st.ToCity
	t.DepartureTime = dep
	t.ArrivalTime = dep.Add(st.Duration)
	return t, nil
}

func main() {
	force := flag.Bool("force", false, "insert trips even when some already exist")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dsn := cfg.DatabaseURL
	if cfg.DBName != "" {
		dsn, err = db.WithDBName(dsn, cfg.DBName)
		if err != nil {
			log.Fatalf("compose DSN: %v", err)
		}
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	if err := db.ApplySchema(ctx, sqlDB); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	sf, err := parseSeed(seedYAML)
	if err != nil {
		log.Fatalf("%v", err)
	}
	store := db.NewStore(sqlDB)
	if err := seed(ctx, store, sf, time.Now().In(cfg.Location), *force); err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Println("seed complete")
}

func seed(ctx context.Context, store *db.Store, sf *seedFile, now time.Time, force bool) error {
	var added int
	for _, s := range sf.Stations {
		_, err := store.CreateStation(ctx, trips.Station{
			ID: s.ID, Name: s.Name, City: s.City,
			Coordinate: geo.Coordinate{Lat: s.Lat, Lng: s.Lng},
		})
		if errors.Is(err, db.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("station %s: %w", s.ID, err)
		}
		added++
	}
	log.Printf("stations: %d added, %d already present", added, len(sf.Stations)-added)

	added = 0
	for _, u := range sf.Users {
		role, ok := db.ParseRole(u.Role)
		if !ok {
			return fmt.Errorf("user %s: unknown role %q", u.Username, u.Role)
		}
		_, err := store.CreateUser(ctx, db.NewUser{
			ID: u.ID, Username: u.Username, Password: u.Password,
			DisplayName: u.DisplayName, Role: role,
		})
		if errors.Is(err, db.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("user %s: %w", u.Username, err)
		}
		added++
	}
	log.Printf("users: %d added, %d already present", added, len(sf.Users)-added)

	existing, err := store.ListTrips(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 && !force {
		log.Printf("trips: %d already present, skipping (use -force to add more)", len(existing))
		return nil
	}
	for i, st := range sf.Trips {
		want, err := buildTrip(st, now)
		if err != nil {
			return fmt.Errorf("trip %d: %w", i, err)
		}
		created, err := store.CreateTrip(ctx, want)
		if err != nil {
			return fmt.Errorf("trip %d: %w", i, err)
		}
		// New trips start with every seat free.
		want.ID = created.ID
		if _, err := store.UpdateTrip(ctx, want); err != nil {
			return fmt.Errorf("trip %d seats: %w", i, err)
		}
	}
	log.Printf("trips: %d added", len(sf.Trips))
	return nil
}
