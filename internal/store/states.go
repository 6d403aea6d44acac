// ABOUTME: Durable state_records table implementing the state cache backend
// ABOUTME: Upserts full rows, patches the nested parameters block and runs threshold queries

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/hvac-mesh/internal/state"
)

const stateColumns = `id, temperature, humidity, pressure, airflow, correlation_vector, parameters`

// LoadState reads one state record row.
// Returns ErrNotFound if the row doesn't exist.
func (s *SQLiteStore) LoadState(ctx context.Context, id int64) (state.Row, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM state_records WHERE id = ?`, id)
	r, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return state.Row{}, fmt.Errorf("state %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return state.Row{}, err
	}
	return r, nil
}

// SaveState inserts the row or replaces every non-key column on conflict.
func (s *SQLiteStore) SaveState(ctx context.Context, row state.Row) error {
	vector, err := encodeVector(row.CorrelationVector)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO state_records (id, temperature, humidity, pressure, airflow, correlation_vector, parameters, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			temperature = excluded.temperature,
			humidity = excluded.humidity,
			pressure = excluded.pressure,
			airflow = excluded.airflow,
			correlation_vector = excluded.correlation_vector,
			parameters = excluded.parameters,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		row.ID,
		row.Temperature,
		row.Humidity,
		row.Pressure,
		row.Airflow,
		vector,
		string(row.Parameters),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting state %d: %w", row.ID, err)
	}

	s.logger.Debug("saved state", "state_id", row.ID)
	return nil
}

// SaveParameters replaces only the nested parameters block.
// Returns ErrNotFound if the row doesn't exist.
func (s *SQLiteStore) SaveParameters(ctx context.Context, id int64, params []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE state_records SET parameters = ?, updated_at = ? WHERE id = ?`,
		string(params), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating parameters of state %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("state %d: %w", id, ErrNotFound)
	}
	return nil
}

// QueryStatesAbove returns every row whose first correlation sample exceeds
// minDegree, ordered by id.
func (s *SQLiteStore) QueryStatesAbove(ctx context.Context, minDegree float64) ([]state.Row, error) {
	query := `SELECT ` + stateColumns + `
		FROM state_records
		WHERE json_array_length(correlation_vector) > 0
		  AND CAST(json_extract(correlation_vector, '$[0]') AS REAL) > ?
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, minDegree)
	if err != nil {
		return nil, fmt.Errorf("querying states above %v: %w", minDegree, err)
	}
	defer rows.Close()

	var out []state.Row
	for rows.Next() {
		r, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating states: %w", err)
	}
	return out, nil
}

// ListStateIDs returns every stored state record id in ascending order.
func (s *SQLiteStore) ListStateIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM state_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing states: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning state id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(sc rowScanner) (state.Row, error) {
	var (
		r      state.Row
		vector string
		params string
	)
	err := sc.Scan(&r.ID, &r.Temperature, &r.Humidity, &r.Pressure, &r.Airflow, &vector, &params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state.Row{}, err
		}
		return state.Row{}, fmt.Errorf("scanning state: %w", err)
	}

	r.CorrelationVector, err = decodeVector(vector)
	if err != nil {
		return state.Row{}, fmt.Errorf("state %d: %w", r.ID, err)
	}
	r.Parameters = []byte(params)
	return r, nil
}

func encodeVector(v []float64) (string, error) {
	if v == nil {
		v = []float64{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: encoding correlation vector: %v", state.ErrSerialization, err)
	}
	return string(data), nil
}

// decodeVector parses a stored vector. An empty array decodes to nil.
func decodeVector(s string) ([]float64, error) {
	var v []float64
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("%w: decoding correlation vector: %v", state.ErrSerialization, err)
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v, nil
}
