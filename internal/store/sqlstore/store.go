// Package sqlstore persists pipeline results to SQLite or Postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/climate-risk/internal/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations
var migrationsFS embed.FS

// Store is a result sink over database/sql.
type Store struct {
	db      *sql.DB
	driver  string
	builder sq.StatementBuilderType
}

// Open connects to the database. SQLite connections get WAL mode and a busy
// timeout and are limited to one open connection.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("Open: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("Open: opening %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping %s: %w", driver, err)
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("driver", driver).Msg("Database connection established")
	return New(db, driver), nil
}

// New wraps an existing connection.
func New(db *sql.DB, driver string) *Store {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &Store{
		db:      db,
		driver:  driver,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
	}
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded migrations for the store's driver.
// Returns the resulting schema version.
func (s *Store) Migrate(ctx context.Context) (uint, error) {
	log := logger.FromContext(ctx)

	src, err := iofs.New(migrationsFS, "migrations/"+s.driver)
	if err != nil {
		return 0, fmt.Errorf("Migrate: migration source: %w", err)
	}

	var driver database.Driver
	switch s.driver {
	case DriverSQLite:
		driver, err = sqlite.WithInstance(s.db, &sqlite.Config{})
	case DriverPostgres:
		driver, err = migratepgx.WithInstance(s.db, &migratepgx.Config{})
	}
	if err != nil {
		return 0, fmt.Errorf("Migrate: %s migration driver: %w", s.driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.driver, driver)
	if err != nil {
		return 0, fmt.Errorf("Migrate: migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return 0, fmt.Errorf("Migrate: applying migrations: %w", err)
		}
		log.Info().Msg("No new database migrations to apply")
	} else {
		log.Info().Str("driver", s.driver).Msg("Database migrations applied")
	}

	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("Migrate: reading version: %w", err)
	}
	return version, nil
}
