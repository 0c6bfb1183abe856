package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// migrateSQLite applies the embedded SQLite migrations on a dedicated
// connection; migrate closes the handle it is given.
func migrateSQLite(ctx context.Context, dsn string) error {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate: open")
	}
	defer db.Close() //nolint:errcheck

	if err := db.PingContext(ctx); err != nil {
		return eris.Wrap(err, "sqlite: migrate: ping")
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate: driver")
	}
	return runMigrations("sqlite", "migrations/sqlite", driver)
}

// migratePostgres applies the embedded PostgreSQL migrations through the pgx
// database/sql driver.
func migratePostgres(ctx context.Context, connString string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return eris.Wrap(err, "postgres: migrate: open")
	}
	defer db.Close() //nolint:errcheck

	if err := db.PingContext(ctx); err != nil {
		return eris.Wrap(err, "postgres: migrate: ping")
	}
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return eris.Wrap(err, "postgres: migrate: driver")
	}
	return runMigrations("pgx5", "migrations/postgres", driver)
}

func runMigrations(dbName, dir string, driver database.Driver) error {
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return eris.Wrapf(err, "migrate: open %s", dir)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return eris.Wrap(err, "migrate: source")
	}
	m, err := migrate.NewWithInstance("iofs", src, dbName, driver)
	if err != nil {
		return eris.Wrap(err, "migrate: init")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return eris.Wrapf(err, "migrate: %s up", dbName)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return eris.Wrap(err, "migrate: version")
	}
	zap.L().Debug("schema migrated",
		zap.String("driver", dbName),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}
