// ABOUTME: Tests for SQLite store initialization and the state_records backend
// ABOUTME: Covers schema creation, migrations, upserts, parameter patches and threshold queries

package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hvac-mesh/internal/state"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(t.Context()))
	require.NoError(t, store.SaveState(t.Context(), sampleRow(t, 1)))

	_, err = store.LoadState(t.Context(), 1)
	require.NoError(t, err, "in-memory database must survive between calls")
}

func TestNewSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.SaveState(t.Context(), sampleRow(t, 7)))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err, "schema creation and migrations must be idempotent")
	defer second.Close()

	row, err := second.LoadState(t.Context(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), row.ID)
}

func TestRunMigrations_AddsColumns(t *testing.T) {
	store := setupTestStore(t)

	for _, col := range []struct{ table, column string }{
		{"correlation_records", "impact"},
		{"devices", "photo_url"},
		{"communications", "classification"},
	} {
		var exists int
		err := store.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, col.table, col.column).Scan(&exists)
		require.NoError(t, err, "%s.%s should exist", col.table, col.column)
	}

	require.NoError(t, store.runMigrations(), "re-running migrations is a no-op")
}

func sampleRow(t *testing.T, id int64) state.Row {
	t.Helper()
	row, err := state.EncodeRow(state.Record{
		ID:                id,
		Temperature:       21.5,
		Humidity:          40,
		Pressure:          1013,
		Airflow:           2.5,
		CorrelationVector: []float64{0.8, 0.2},
		Parameters: state.Parameters{
			CustomerID:      3,
			ServicePriority: 1,
			ServiceHistory: []state.ServiceEvent{
				{Timestamp: 1700000000, ServiceType: "inspection", SystemParameters: []float64{1, 2}},
			},
			FailurePredictions: []state.FailurePrediction{
				{Component: "compressor", Probability: 0.3, EstimatedTime: 1800000000},
			},
			SensorReadings: []float64{0.1, 0.4},
		},
	})
	require.NoError(t, err)
	return row
}

func TestSaveState_Roundtrip(t *testing.T) {
	store := setupTestStore(t)
	row := sampleRow(t, 1)

	require.NoError(t, store.SaveState(t.Context(), row))

	got, err := store.LoadState(t.Context(), 1)
	require.NoError(t, err)

	want, err := row.Decode()
	require.NoError(t, err)
	gotRec, err := got.Decode()
	require.NoError(t, err)
	assert.Equal(t, want, gotRec)
}

func TestSaveState_UpsertReplacesColumns(t *testing.T) {
	store := setupTestStore(t)
	row := sampleRow(t, 1)
	require.NoError(t, store.SaveState(t.Context(), row))

	row.Temperature = 30
	row.CorrelationVector = []float64{0.1}
	require.NoError(t, store.SaveState(t.Context(), row))

	got, err := store.LoadState(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.Temperature)
	assert.Equal(t, []float64{0.1}, got.CorrelationVector)

	ids, err := store.ListStateIDs(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestSaveState_EmptyVectorLoadsAsNil(t *testing.T) {
	store := setupTestStore(t)
	row := sampleRow(t, 1)
	row.CorrelationVector = nil
	require.NoError(t, store.SaveState(t.Context(), row))

	got, err := store.LoadState(t.Context(), 1)
	require.NoError(t, err)
	assert.Nil(t, got.CorrelationVector)
}

func TestLoadState_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.LoadState(t.Context(), 99)
	require.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestLoadState_CorruptVector(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.SaveState(t.Context(), sampleRow(t, 1)))

	_, err := store.db.Exec(`UPDATE state_records SET correlation_vector = 'not json' WHERE id = 1`)
	require.NoError(t, err)

	_, err = store.LoadState(t.Context(), 1)
	assert.ErrorIs(t, err, state.ErrSerialization)
}

func TestSaveParameters(t *testing.T) {
	store := setupTestStore(t)
	row := sampleRow(t, 1)
	require.NoError(t, store.SaveState(t.Context(), row))

	params, err := state.EncodeParameters(state.Parameters{CustomerID: 42})
	require.NoError(t, err)
	require.NoError(t, store.SaveParameters(t.Context(), 1, params))

	got, err := store.LoadState(t.Context(), 1)
	require.NoError(t, err)
	rec, err := got.Decode()
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.Parameters.CustomerID)
	assert.Equal(t, row.Temperature, got.Temperature, "flat columns are untouched")
}

func TestSaveParameters_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.SaveParameters(t.Context(), 5, []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryStatesAbove(t *testing.T) {
	store := setupTestStore(t)

	vectors := map[int64][]float64{
		1: {0.9, 0.1},
		2: {0.5},
		3: nil,
		4: {0.75},
		5: {0.7},
	}
	for id, v := range vectors {
		row := sampleRow(t, id)
		row.CorrelationVector = v
		require.NoError(t, store.SaveState(t.Context(), row))
	}

	rows, err := store.QueryStatesAbove(t.Context(), 0.7)
	require.NoError(t, err)

	var ids []int64
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{1, 4}, ids, "strictly above, ordered by id, empty vectors excluded")
}

func TestIsConstraintViolation(t *testing.T) {
	assert.False(t, isConstraintViolation(nil))
	assert.False(t, isConstraintViolation(sql.ErrNoRows))
}
