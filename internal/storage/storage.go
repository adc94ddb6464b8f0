// Package storage opens the identity database and manages its schema.
// PostgreSQL runs through pgx, SQLite through the bun sqlite shim. Schema
// changes are goose migrations embedded per dialect.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/goliatone/go-wms/auth"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

var ErrUnsupportedDriver = errors.New("storage: unsupported database driver")

// Config selects the driver and connection string
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects and pings the database
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch normalizeDriver(cfg.Driver) {
	case DriverPostgres:
		sqldb, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("storage: open postgres: %w", err)
		}
		applyPool(sqldb, cfg)
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		sqldb, err = sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("storage: open sqlite: %w", err)
		}
		// a single writer keeps sqlite from returning SQLITE_BUSY
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	if normalizeDriver(cfg.Driver) == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: enable foreign keys: %w", err)
		}
	}

	return db, nil
}

func applyPool(sqldb *sql.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx", "pg":
		return DriverPostgres
	case "sqlite", "sqlite3", "":
		return DriverSQLite
	default:
		return driver
	}
}

// MigrationsFS returns the migration files for the dialect of db
func MigrationsFS(db *bun.DB) (fs.FS, error) {
	dir := "migrations/sqlite"
	if isPostgres(db) {
		dir = "migrations/postgres"
	}
	return fs.Sub(migrationsFS, dir)
}

func isPostgres(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.PG
}

func newProvider(db *bun.DB) (*goose.Provider, error) {
	fsys, err := MigrationsFS(db)
	if err != nil {
		return nil, err
	}

	gooseDialect := goose.DialectSQLite3
	if isPostgres(db) {
		gooseDialect = goose.DialectPostgres
	}

	return goose.NewProvider(gooseDialect, db.DB, fsys)
}

// Migrate applies every pending migration and returns the applied versions
func Migrate(ctx context.Context, db *bun.DB) ([]int64, error) {
	provider, err := newProvider(db)
	if err != nil {
		return nil, fmt.Errorf("storage: migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: migrate up: %w", err)
	}

	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

// Rollback reverts the most recent migration
func Rollback(ctx context.Context, db *bun.DB) (int64, error) {
	provider, err := newProvider(db)
	if err != nil {
		return 0, fmt.Errorf("storage: migrations: %w", err)
	}

	result, err := provider.Down(ctx)
	if err != nil {
		return 0, fmt.Errorf("storage: migrate down: %w", err)
	}
	return result.Source.Version, nil
}

// MigrationState describes one migration
type MigrationState struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Status reports every known migration and whether it is applied
func Status(ctx context.Context, db *bun.DB) ([]MigrationState, error) {
	provider, err := newProvider(db)
	if err != nil {
		return nil, fmt.Errorf("storage: migrations: %w", err)
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: migrate status: %w", err)
	}

	out := make([]MigrationState, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationState{
			Version:   s.Source.Version,
			Path:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

// Seed upserts the role and permission catalog
func Seed(ctx context.Context, db *bun.DB, catalog auth.Catalog) error {
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("storage: seed: %w", err)
	}
	if err := auth.NewRolesRepository(db).EnsureCatalog(ctx, catalog); err != nil {
		return fmt.Errorf("storage: seed: %w", err)
	}
	return nil
}
