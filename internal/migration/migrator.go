// Package migration manages the dormitory database schema with
// versioned SQL migrations embedded in the binary.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

// ErrNoChange reports that the schema is already up to date.
var ErrNoChange = migrate.ErrNoChange

// Migrator wraps a golang-migrate instance over the embedded
// dormitory migrations.
type Migrator struct {
	migrate *migrate.Migrate
	db      *sql.DB
}

// NewMySQLMigrator opens dsn (standard go-sql-driver format, e.g.
// "user:pass@tcp(host:3306)/dormitory?multiStatements=true") and binds
// the embedded migrations to it.
func NewMySQLMigrator(dsn string) (*Migrator, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("migration: open database: %w", err)
	}
	db.SetConnMaxLifetime(time.Minute)

	var driver database.Driver
	driver, err = mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: init driver: %w", err)
	}

	sub, err := fs.Sub(mysqlFS, "migrations/mysql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: embedded fs: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: init migrate: %w", err)
	}
	return &Migrator{migrate: m, db: db}, nil
}

// Up applies all pending migrations. An up-to-date schema is not an
// error.
func (m *Migrator) Up() error {
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down() error {
	if err := m.migrate.Steps(-1); err != nil {
		return fmt.Errorf("migration: down: %w", err)
	}
	return nil
}

// Version reports the current schema version and dirty state. A fresh
// database reports version 0.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration: version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the migrate instance and the connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
