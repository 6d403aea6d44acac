// Package store provides persistent storage for hvac-mesh using SQLite.
//
// # Architecture
//
// The Store interface combines several narrower interfaces so each consumer
// can depend on only what it uses:
//
//   - state.Backend: durable side of the write-through state cache
//   - correlation.RecordStore: append-only correlation measurements
//   - BusinessStore: customers, buildings, devices, communications, tickets
//     and offers with their tracked reactions
//   - AuditStore: integrator workflow outcomes
//
// SQLiteStore implements all of them in a single struct.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (pure Go, no cgo) with:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The pool is limited to one connection so pragmas stay in effect and an
// in-memory database survives between calls. Timestamps are RFC3339 text;
// correlation vectors and nested parameter blocks are JSON text.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist (same sentinel as state.ErrNotFound)
//   - ErrConstraint: foreign key, check or uniqueness violation
//
// # Testing
//
// Use NewMockStore() for unit tests. FailOn injects an error for a named
// method:
//
//	ms := store.NewMockStore()
//	ms.FailOn("SaveState", errors.New("disk full"))
//
// Use NewSQLiteStore with a path under t.TempDir() for integration tests.
//
// # Migrations
//
// Columns added after the initial schema are applied by runMigrations,
// which checks pragma_table_info before each ALTER TABLE.
package store
