// Package storage persists session history, completed repetitions and user
// feedback in SQLite or PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

//go:embed migrations
var migrations embed.FS

// DB wraps a *sql.DB and provides repository methods.
type DB struct {
	SQL    *sql.DB
	driver string
	source string
	log    *slog.Logger
}

// Open connects to the database. For sqlite, source is a file path; for
// postgres, a connection URL.
func Open(ctx context.Context, driver, source string, log *slog.Logger) (*DB, error) {
	var sqlDriver, dsn string
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		sqlDriver = "sqlite"
		dsn = source + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	case DriverPostgres:
		sqlDriver = "pgx"
		dsn = source
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sdb, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer at a time; concurrent sqlite connections only add
		// SQLITE_BUSY retries.
		sdb.SetMaxOpenConns(1)
	}
	if err := sdb.PingContext(ctx); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{SQL: sdb, driver: driver, source: source, log: log}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.SQL.Close()
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Migrate applies all pending embedded migrations.
func (db *DB) Migrate() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it would close db.SQL.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading migration version: %w", err)
	}
	db.log.Info("migrations applied", "driver", db.driver, "version", version, "dirty", dirty)
	return nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations/"+db.driver)
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	var drv database.Driver
	switch db.driver {
	case DriverSQLite:
		drv, err = migratesqlite.WithInstance(db.SQL, &migratesqlite.Config{})
	case DriverPostgres:
		drv, err = migratepgx.WithInstance(db.SQL, &migratepgx.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s migration driver: %w", db.driver, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, db.driver, drv)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	m.Log = migrateLogger{db.log}
	return m, nil
}

type migrateLogger struct{ log *slog.Logger }

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l migrateLogger) Verbose() bool { return false }

// rebind rewrites ? placeholders to $n for postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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
