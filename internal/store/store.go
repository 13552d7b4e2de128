// Package store is the relational table layer: events, categories, their
// join table and the last-sent digest record, over SQLite or Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	appLog "eventcal/internal/log"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps a sqlx handle and a squirrel builder with the driver's
// placeholder format.
type Store struct {
	db  *sqlx.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// New wraps an open handle. The placeholder format follows db.DriverName().
func New(db *sqlx.DB) *Store {
	format := sq.PlaceholderFormat(sq.Question)
	if db.DriverName() == DriverPostgres {
		format = sq.Dollar
	}
	return &Store{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(format),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Open connects, applies pending migrations and returns the store.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(sqliteFile(dsn)); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite works best with a single connection.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	appLog.Info("database ready", "driver", driver)
	return s, nil
}

func sqliteFile(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}
	if dsn == ":memory:" {
		return ""
	}
	return dsn
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type migration struct {
	name      string
	statement string
}

// dialect tokens in migration statements
func (s *Store) expand(stmt string) string {
	serial, ts := "INTEGER PRIMARY KEY AUTOINCREMENT", "TIMESTAMP"
	if s.db.DriverName() == DriverPostgres {
		serial, ts = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	}
	return strings.NewReplacer("{{serial}}", serial, "{{timestamp}}", ts).Replace(stmt)
}

func migrations() []migration {
	return []migration{
		{
			name: "initial_schema",
			statement: `
				CREATE TABLE IF NOT EXISTS events (
					id {{serial}},
					start_date TEXT NOT NULL,
					start_time TEXT NOT NULL DEFAULT '',
					end_date TEXT NOT NULL DEFAULT '',
					end_time TEXT NOT NULL DEFAULT '',
					title TEXT NOT NULL,
					organizer TEXT NOT NULL DEFAULT '',
					location TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					url TEXT NOT NULL DEFAULT '',
					public BOOLEAN NOT NULL DEFAULT FALSE,
					created_at {{timestamp}} NOT NULL,
					calendar TEXT NOT NULL DEFAULT '',
					created_by TEXT NOT NULL DEFAULT ''
				);
				CREATE INDEX IF NOT EXISTS idx_events_start ON events (start_date, start_time);
				CREATE INDEX IF NOT EXISTS idx_events_created ON events (created_at);

				CREATE TABLE IF NOT EXISTS categories (
					id {{serial}},
					name TEXT NOT NULL,
					text_color TEXT NOT NULL DEFAULT '',
					background_color TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS event_categories (
					event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
					category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
					is_primary BOOLEAN NOT NULL DEFAULT FALSE,
					PRIMARY KEY (event_id, category_id)
				);
			`,
		},
		{
			name: "digest_messages",
			statement: `
				CREATE TABLE IF NOT EXISTS digest_messages (
					chat_id TEXT PRIMARY KEY,
					message_id BIGINT NOT NULL,
					week_start TEXT NOT NULL,
					text_hash TEXT NOT NULL,
					sent_at {{timestamp}} NOT NULL
				);
			`,
		},
		{
			name: "event_external_id",
			statement: `
				ALTER TABLE events ADD COLUMN external_id TEXT NOT NULL DEFAULT '';
				CREATE INDEX IF NOT EXISTS idx_events_external ON events (external_id);
			`,
		},
	}
}

// Migrate applies every migration not yet recorded in _migrations.
func (s *Store) Migrate(ctx context.Context) error {
	create := s.expand(`CREATE TABLE IF NOT EXISTS _migrations (
		name TEXT PRIMARY KEY,
		run_at {{timestamp}} NOT NULL
	)`)
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, m := range migrations() {
			query, args, err := s.sb.Select("COUNT(*)").From("_migrations").Where(sq.Eq{"name": m.name}).ToSql()
			if err != nil {
				return err
			}
			var count int
			if err := tx.QueryRowxContext(ctx, query, args...).Scan(&count); err != nil {
				return fmt.Errorf("failed to check migration status: %w", err)
			}
			if count > 0 {
				continue
			}

			if _, err := tx.ExecContext(ctx, s.expand(m.statement)); err != nil {
				return fmt.Errorf("failed to run migration %s: %w", m.name, err)
			}

			query, args, err = s.sb.Insert("_migrations").Columns("name", "run_at").Values(m.name, s.now()).ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", m.name, err)
			}
			appLog.Info("migration applied", "name", m.name)
		}
		return nil
	})
}
