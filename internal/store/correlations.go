// ABOUTME: Append-only correlation_records table used by the correlation engine
// ABOUTME: Supports per-device threshold queries ordered by degree

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/hvac-mesh/internal/correlation"
)

// InsertCorrelation appends a measurement and returns its id.
func (s *SQLiteStore) InsertCorrelation(ctx context.Context, rec *correlation.Record) (int64, error) {
	if rec.MeasuredAt.IsZero() {
		rec.MeasuredAt = time.Now().UTC()
	}

	var params any
	if rec.Parameters != nil {
		data, err := json.Marshal(rec.Parameters)
		if err != nil {
			return 0, fmt.Errorf("marshaling correlation parameters: %w", err)
		}
		params = string(data)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO correlation_records (device_a, device_b, degree, measured_at, parameters, impact, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.DeviceA,
		rec.DeviceB,
		rec.Degree,
		rec.MeasuredAt.UTC().Format(time.RFC3339Nano),
		params,
		nullString(rec.Impact),
		nullString(rec.Note),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("inserting correlation: %w", ErrConstraint)
		}
		return 0, fmt.Errorf("inserting correlation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading correlation id: %w", err)
	}
	rec.ID = id
	return id, nil
}

// CorrelationsForDevice returns every record involving deviceID with a
// degree of at least minDegree, highest degree first.
func (s *SQLiteStore) CorrelationsForDevice(ctx context.Context, deviceID int64, minDegree float64) ([]correlation.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_a, device_b, degree, measured_at, parameters, impact, note
		FROM correlation_records
		WHERE (device_a = ? OR device_b = ?) AND degree >= ?
		ORDER BY degree DESC, id DESC
	`, deviceID, deviceID, minDegree)
	if err != nil {
		return nil, fmt.Errorf("querying correlations: %w", err)
	}
	defer rows.Close()

	var out []correlation.Record
	for rows.Next() {
		var (
			rec        correlation.Record
			measuredAt string
			params     sql.NullString
			impact     sql.NullString
			note       sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.DeviceA, &rec.DeviceB, &rec.Degree, &measuredAt, &params, &impact, &note); err != nil {
			return nil, fmt.Errorf("scanning correlation: %w", err)
		}
		rec.MeasuredAt, err = time.Parse(time.RFC3339Nano, measuredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing measured_at: %w", err)
		}
		if params.Valid {
			if err := json.Unmarshal([]byte(params.String), &rec.Parameters); err != nil {
				return nil, fmt.Errorf("unmarshaling correlation parameters: %w", err)
			}
		}
		rec.Impact = impact.String
		rec.Note = note.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating correlations: %w", err)
	}
	return out, nil
}

// averageDegree returns the mean degree over every measurement, or 0.
func (s *SQLiteStore) averageDegree(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(degree) FROM correlation_records`).Scan(&avg); err != nil {
		return 0, fmt.Errorf("averaging correlation degree: %w", err)
	}
	return avg.Float64, nil
}
