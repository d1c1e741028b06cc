// Package ledger records pipeline runs in a SQL database so that past
// verification reports can be listed per file id.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Dialect identifies the ledger backend
type Dialect string

// Supported dialects
const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// ErrUnsupportedURL is returned for ledger URLs with an unknown scheme
var ErrUnsupportedURL = errors.New("unsupported ledger URL")

// Store persists run reports
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// Open connects to the ledger at url and applies pending migrations.
// Accepted forms are sqlite://<path>, mysql://<dsn> and postgres://...
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	dialect, dsn, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch dialect {
	case DialectSQLite:
		db, err = openSQLite(ctx, dsn)
	case DialectMySQL:
		db, err = openMySQL(ctx, dsn)
	case DialectPostgres:
		db, err = openPostgres(ctx, dsn)
	}
	if err != nil {
		return nil, err
	}

	s := NewStore(db, dialect, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open connection without migrating it
func NewStore(db *sql.DB, dialect Dialect, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, dialect: dialect, logger: logger.With(zap.String("ledger", string(dialect)))}
}

// ParseURL splits a ledger URL into dialect and driver DSN
func ParseURL(url string) (Dialect, string, error) {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q (expected scheme://...)", ErrUnsupportedURL, url)
	}

	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3", "file":
		if rest == "" {
			return "", "", fmt.Errorf("%w: empty SQLite path", ErrUnsupportedURL)
		}
		return DialectSQLite, rest, nil
	case "mysql":
		return DialectMySQL, rest, nil
	case "postgres", "postgresql":
		// pgx understands the URL form directly
		return DialectPostgres, url, nil
	default:
		return "", "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, scheme)
	}
}

// Dialect returns the backend of the store
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
