package db

import (
	"fmt"
	"net/url"
	"strings"
)

// WithDBName returns the DSN with its database replaced. URL DSNs
// (postgres:// or postgresql://, or host paths without a scheme) get a
// new path; keyword/value DSNs get a dbname entry.
func WithDBName(dsn, database string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("empty DSN")
	}
	if database == "" {
		return dsn, nil
	}
	if !strings.Contains(dsn, "://") && strings.Contains(dsn, "=") {
		return withKeywordDBName(dsn, database), nil
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	return u.String(), nil
}

func withKeywordDBName(dsn, database string) string {
	fields := strings.Fields(dsn)
	out := fields[:0]
	for _, f := range fields {
		if !strings.HasPrefix(f, "dbname=") {
			out = append(out, f)
		}
	}
	return strings.Join(append(out, "dbname="+database), " ")
}
