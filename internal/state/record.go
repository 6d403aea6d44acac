// ABOUTME: StateRecord data model with deep-copy and invariant validation
// ABOUTME: Row is the durable-storage shape with the nested block pre-encoded as JSON

package state

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Record is the state owned by one device agent.
type Record struct {
	ID                int64      `json:"id"`
	Temperature       float64    `json:"temperature"`
	Humidity          float64    `json:"humidity"`
	Pressure          float64    `json:"pressure"`
	Airflow           float64    `json:"airflow"`
	CorrelationVector []float64  `json:"correlation_vector"`
	Parameters        Parameters `json:"parameters"`
}

// Parameters is the nested block persisted as a single JSON document.
type Parameters struct {
	CustomerID         int64               `json:"customer_id"`
	ServicePriority    int                 `json:"service_priority"`
	ServiceHistory     []ServiceEvent      `json:"service_history"`
	FailurePredictions []FailurePrediction `json:"failure_predictions"`
	SensorReadings     []float64           `json:"sensor_readings"`
}

// ServiceEvent is one entry in a device's service history.
type ServiceEvent struct {
	Timestamp        int64     `json:"timestamp"`
	ServiceType      string    `json:"service_type"`
	SystemParameters []float64 `json:"system_parameters"`
}

// FailurePrediction estimates when a component is likely to fail.
// EstimatedTime is a unix timestamp in seconds.
type FailurePrediction struct {
	Component     string  `json:"component"`
	Probability   float64 `json:"probability"`
	EstimatedTime int64   `json:"estimated_time"`
}

// Clone returns a deep copy; no slice is shared with r.
func (r Record) Clone() Record {
	out := r
	out.CorrelationVector = slices.Clone(r.CorrelationVector)
	out.Parameters = r.Parameters.Clone()
	return out
}

// Clone returns a deep copy of the nested block.
func (p Parameters) Clone() Parameters {
	out := p
	out.FailurePredictions = slices.Clone(p.FailurePredictions)
	out.SensorReadings = slices.Clone(p.SensorReadings)
	if p.ServiceHistory != nil {
		out.ServiceHistory = make([]ServiceEvent, len(p.ServiceHistory))
		for i, ev := range p.ServiceHistory {
			ev.SystemParameters = slices.Clone(ev.SystemParameters)
			out.ServiceHistory[i] = ev
		}
	}
	return out
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("id must be positive, got %d", r.ID)
	}
	return ValidatePredictions(r.Parameters.FailurePredictions)
}

// ValidatePredictions checks that every probability is within [0, 1].
func ValidatePredictions(preds []FailurePrediction) error {
	for _, p := range preds {
		// NaN fails both comparisons, so test the accepted range positively.
		if !(p.Probability >= 0 && p.Probability <= 1) {
			return fmt.Errorf("component %q: probability %v outside [0, 1]", p.Component, p.Probability)
		}
	}
	return nil
}

// MergePredictions replaces entries in current whose component appears in
// updates and appends the rest, keeping the relative order of both lists.
func MergePredictions(current, updates []FailurePrediction) []FailurePrediction {
	merged := slices.Clone(current)
	for _, u := range updates {
		idx := slices.IndexFunc(merged, func(p FailurePrediction) bool {
			return p.Component == u.Component
		})
		if idx >= 0 {
			merged[idx] = u
			continue
		}
		merged = append(merged, u)
	}
	return merged
}

// EncodeParameters serializes the nested block.
func EncodeParameters(p Parameters) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding parameters: %v", ErrSerialization, err)
	}
	return data, nil
}

// DecodeParameters parses a persisted nested block.
func DecodeParameters(data []byte) (Parameters, error) {
	var p Parameters
	if len(data) == 0 {
		return p, fmt.Errorf("%w: empty parameters block", ErrSerialization)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return Parameters{}, fmt.Errorf("%w: decoding parameters: %v", ErrSerialization, err)
	}
	return p, nil
}

// Row is a Record as exchanged with durable storage. Parameters holds the
// JSON-encoded nested block.
type Row struct {
	ID                int64
	Temperature       float64
	Humidity          float64
	Pressure          float64
	Airflow           float64
	CorrelationVector []float64
	Parameters        []byte
}

// EncodeRow converts a record into its storage form.
func EncodeRow(r Record) (Row, error) {
	params, err := EncodeParameters(r.Parameters)
	if err != nil {
		return Row{}, err
	}
	return Row{
		ID:                r.ID,
		Temperature:       r.Temperature,
		Humidity:          r.Humidity,
		Pressure:          r.Pressure,
		Airflow:           r.Airflow,
		CorrelationVector: slices.Clone(r.CorrelationVector),
		Parameters:        params,
	}, nil
}

// Decode converts a storage row back into a record.
func (row Row) Decode() (Record, error) {
	params, err := DecodeParameters(row.Parameters)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:                row.ID,
		Temperature:       row.Temperature,
		Humidity:          row.Humidity,
		Pressure:          row.Pressure,
		Airflow:           row.Airflow,
		CorrelationVector: slices.Clone(row.CorrelationVector),
		Parameters:        params,
	}, nil
}
