package db

import (
	"errors"
	"net/url"
	"strings"
)

// WithDBName returns dsn pointing at another database of the same cluster.
// A DSN without scheme is read as postgres://.
func WithDBName(dsn, database string) (string, error) {
	if dsn == "" {
		return "", errors.New("empty DSN")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	u.RawPath = ""
	return u.String(), nil
}
