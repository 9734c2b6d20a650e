package store

import (
	"strings"
	"time"
)

// Opts holds configuration shared by the storage backends.
type Opts struct {
	DSN       string
	Dir       string
	KeyPrefix string
	TTL       time.Duration
	Now       func() time.Time
	// ReadThrough makes every Get consult the backend. Required when several
	// processes share one backend.
	ReadThrough bool
}

// Option configures a store.
type Option func(*Opts)

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithDir sets the directory of the JSON file backend.
func WithDir(dir string) Option {
	return func(o *Opts) { o.Dir = dir }
}

// WithKeyPrefix overrides the Redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *Opts) { o.KeyPrefix = prefix }
}

// WithTTL sets an expiration on Redis records. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// WithClock replaces time.Now when computing the persistence unit.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// WithReadThrough disables serving Get from the in-memory copy, so records
// written by other instances are always seen.
func WithReadThrough() Option {
	return func(o *Opts) { o.ReadThrough = true }
}

// DetectDSNType returns "postgres" for Postgres URLs or keyword DSNs and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	d := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user=") {
		return "postgres"
	}
	return "sqlite3"
}
