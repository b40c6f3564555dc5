// Package migrator applies the versioned SQL files under migrations/ and
// records each one in schema_migrations with a checksum of its body.
package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
)

const createTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// lockKey is the Postgres advisory lock held while migrating
const lockKey = 7305113021

// ErrModified is returned when an applied migration's file no longer matches what was applied
var ErrModified = errors.New("migrator: applied migration was modified")

// Migrator applies migrations to one database
type Migrator struct {
	db       *sql.DB
	postgres bool
}

// New returns a migrator for db. driver is "sqlite3" or "postgres".
func New(db *sql.DB, driver string) *Migrator {
	return &Migrator{
		db:       db,
		postgres: driver == "postgres" || driver == "postgresql",
	}
}

// Up applies every pending migration in fsys, each in its own transaction,
// and returns the ones it applied.
func (m *Migrator) Up(ctx context.Context, fsys fs.FS) ([]Migration, error) {
	all, err := Load(fsys)
	if err != nil {
		return nil, err
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if m.postgres {
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockKey); err != nil {
			return nil, fmt.Errorf("acquire migration lock: %w", err)
		}
		defer conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", lockKey)
	}

	if _, err := conn.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := m.applied(ctx, conn)
	if err != nil {
		return nil, err
	}

	if err := checkHistory(all, applied); err != nil {
		return nil, err
	}

	var done []Migration
	for _, mig := range all {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if err := m.apply(ctx, conn, mig); err != nil {
			return done, fmt.Errorf("apply %s: %w", mig.Label(), err)
		}
		done = append(done, mig)
	}
	return done, nil
}

// Version returns the highest applied version, 0 when nothing has been applied
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if _, err := m.db.ExecContext(ctx, createTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// applied maps each applied version to its recorded checksum
func (m *Migrator) applied(ctx context.Context, conn *sql.Conn) (map[int]string, error) {
	rows, err := conn.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var version int
		var checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		out[version] = checksum
	}
	return out, rows.Err()
}

// checkHistory rejects a database that is ahead of the files or whose
// applied migrations were edited afterwards
func checkHistory(all []Migration, applied map[int]string) error {
	byVersion := make(map[int]Migration, len(all))
	for _, mig := range all {
		byVersion[mig.Version] = mig
	}

	for version, checksum := range applied {
		mig, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("database has migration %03d applied but no such file exists", version)
		}
		if mig.Checksum != checksum {
			return fmt.Errorf("%w: %s", ErrModified, mig.Label())
		}
	}

	// Pending versions may not sit below an applied one
	highest := 0
	for version := range applied {
		highest = max(highest, version)
	}
	for _, mig := range all {
		if _, ok := applied[mig.Version]; !ok && mig.Version < highest {
			return fmt.Errorf("migration %s is older than applied version %03d", mig.Label(), highest)
		}
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, conn *sql.Conn, mig Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}

	record := "INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)"
	if m.postgres {
		record = "INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)"
	}
	if _, err := tx.ExecContext(ctx, record, mig.Version, mig.Name, mig.Checksum); err != nil {
		return fmt.Errorf("record version: %w", err)
	}

	return tx.Commit()
}
