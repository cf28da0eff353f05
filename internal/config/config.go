package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL          string
	DBName               string
	HTTPAddr             string
	TickInterval         time.Duration
	TripsRefreshInterval time.Duration
	NATSURL              string
	NATSSubjectPrefix    string
	LogNATSSubjects      bool
	MetricsAddr          string
	RateLimitRPS         float64
	RateLimitBurst       int
	LocationsFile        string
	Location             *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.DBName = strings.TrimSpace(os.Getenv("DB_NAME"))

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		// DB_NAME replaces the path later, so any base database will do.
		if db == "" && cfg.DBName != "" {
			db = "postgres"
		}
		if db == "" {
			return nil, errors.New("PGDATABASE, DB_NAME or DATABASE_URL must be set")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":3000")

	ms, err := getenvInt("TICK_INTERVAL_MS", 2000, 1)
	if err != nil {
		return nil, err
	}
	cfg.TickInterval = time.Duration(ms) * time.Millisecond

	// 0 disables periodic reloads; writes through the API still refresh.
	sec, err := getenvInt("TRIPS_REFRESH_INTERVAL_SEC", 60, 0)
	if err != nil {
		return nil, err
	}
	cfg.TripsRefreshInterval = time.Duration(sec) * time.Second

	// Empty NATS_URL disables publishing.
	cfg.NATSURL = strings.TrimSpace(os.Getenv("NATS_URL"))
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "live")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %q", v)
		}
		cfg.RateLimitRPS = f
	} else {
		cfg.RateLimitRPS = 50
	}
	burst, err := getenvInt("RATE_LIMIT_BURST", 2*int(cfg.RateLimitRPS), 0)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitBurst = max(burst, 1)

	cfg.LocationsFile = os.Getenv("LOCATIONS_FILE")

	// Time zone used for progress (local midnight) and departure filters
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def, minVal int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < minVal {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
