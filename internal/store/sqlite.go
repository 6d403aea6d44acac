// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides state, correlation and business persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps per-connection pragmas in effect and lets an
	// in-memory database survive between calls.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS state_records (
			id                 INTEGER PRIMARY KEY,
			temperature        REAL NOT NULL DEFAULT 0,
			humidity           REAL NOT NULL DEFAULT 0,
			pressure           REAL NOT NULL DEFAULT 0,
			airflow            REAL NOT NULL DEFAULT 0,
			correlation_vector TEXT NOT NULL DEFAULT '[]',
			parameters         TEXT NOT NULL,
			updated_at         TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS correlation_records (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			device_a    INTEGER NOT NULL,
			device_b    INTEGER NOT NULL,
			degree      REAL NOT NULL,
			measured_at TEXT NOT NULL,
			parameters  TEXT,
			note        TEXT,

			CHECK (device_a <> device_b)
		);

		CREATE INDEX IF NOT EXISTS idx_correlation_device_a ON correlation_records(device_a, degree DESC);
		CREATE INDEX IF NOT EXISTS idx_correlation_device_b ON correlation_records(device_b, degree DESC);

		CREATE TABLE IF NOT EXISTS customers (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			name          TEXT NOT NULL,
			email         TEXT,
			phone         TEXT,
			address       TEXT,
			customer_type TEXT,
			registered_at TEXT NOT NULL,
			wealth_score  REAL,
			last_contact  TEXT,
			notes         TEXT
		);

		CREATE TABLE IF NOT EXISTS buildings (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id   INTEGER NOT NULL REFERENCES customers(id),
			name          TEXT NOT NULL,
			address       TEXT NOT NULL,
			longitude     REAL,
			latitude      REAL,
			building_type TEXT,
			area          REAL,
			floors        INTEGER,
			year_built    INTEGER,
			notes         TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_buildings_customer ON buildings(customer_id);

		CREATE TABLE IF NOT EXISTS devices (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			building_id     INTEGER NOT NULL REFERENCES buildings(id),
			state_id        INTEGER NOT NULL DEFAULT 0,
			model           TEXT NOT NULL,
			serial_number   TEXT,
			installed_at    TEXT,
			last_service_at TEXT,
			status          TEXT NOT NULL,
			location        TEXT,
			technical_data  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_devices_building ON devices(building_id);
		CREATE INDEX IF NOT EXISTS idx_devices_state ON devices(state_id);

		CREATE TABLE IF NOT EXISTS communications (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id INTEGER NOT NULL REFERENCES customers(id),
			channel     TEXT NOT NULL,
			direction   TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			content     TEXT,
			transcript  TEXT,
			category    TEXT,
			status      TEXT NOT NULL,
			sentiment   REAL,

			CHECK (channel IN ('email', 'phone', 'sms'))
		);

		CREATE INDEX IF NOT EXISTS idx_communications_customer ON communications(customer_id, occurred_at);

		CREATE TABLE IF NOT EXISTS service_tickets (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id    INTEGER NOT NULL REFERENCES devices(id),
			customer_id  INTEGER NOT NULL REFERENCES customers(id),
			ticket_type  TEXT NOT NULL,
			priority     INTEGER NOT NULL DEFAULT 0,
			status       TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			scheduled_at TEXT,
			description  TEXT,
			notes        TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_service_tickets_status ON service_tickets(status);

		CREATE TABLE IF NOT EXISTS offers (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id INTEGER NOT NULL REFERENCES customers(id),
			created_at  TEXT NOT NULL,
			valid_until TEXT,
			status      TEXT NOT NULL,
			net_value   REAL NOT NULL,
			gross_value REAL NOT NULL,
			currency    TEXT NOT NULL,
			content     TEXT,
			sign_url    TEXT,
			signed_at   TEXT,
			notes       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_offers_customer ON offers(customer_id);

		CREATE TABLE IF NOT EXISTS offer_reactions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			offer_id      INTEGER NOT NULL REFERENCES offers(id),
			reaction_type TEXT NOT NULL,
			occurred_at   TEXT NOT NULL,
			ip_address    TEXT,
			device        TEXT,
			seconds_spent INTEGER,
			notes         TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_offer_reactions_offer ON offer_reactions(offer_id, occurred_at);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id    TEXT PRIMARY KEY,
			actor       TEXT NOT NULL,
			action      TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			ts          TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			detail_json TEXT,

			CHECK (outcome IN ('ok', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_log(target_type, target_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "correlation_records",
			column: "impact",
			apply:  `ALTER TABLE correlation_records ADD COLUMN impact TEXT`,
		},
		{
			table:  "devices",
			column: "photo_url",
			apply:  `ALTER TABLE devices ADD COLUMN photo_url TEXT`,
		},
		{
			table:  "communications",
			column: "classification",
			apply:  `ALTER TABLE communications ADD COLUMN classification TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Ping verifies the database connection is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
