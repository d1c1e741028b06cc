package ledger

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations
var migrations embed.FS

func (s *Store) provider() (*goose.Provider, error) {
	var dialect goose.Dialect
	switch s.dialect {
	case DialectSQLite:
		dialect = goose.DialectSQLite3
	case DialectMySQL:
		dialect = goose.DialectMySQL
	case DialectPostgres:
		dialect = goose.DialectPostgres
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", s.dialect)
	}

	fsys, err := fs.Sub(migrations, "migrations/"+string(s.dialect))
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(dialect, s.db, fsys)
}

// Migrate runs all pending migrations
func (s *Store) Migrate(ctx context.Context) error {
	p, err := s.provider()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Debug("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration))
	}
	return nil
}

// Version returns the current migration version
func (s *Store) Version(ctx context.Context) (int64, error) {
	p, err := s.provider()
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}
