// ABOUTME: Tests for Record deep copy, validation, prediction merge and field aliases
// ABOUTME: Also covers the storage row conversion and serialization failures

package state

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id int64) Record {
	return Record{
		ID:                id,
		Temperature:       21.5,
		Humidity:          40,
		Pressure:          1013,
		Airflow:           3.2,
		CorrelationVector: []float64{0.8, 0.2, 0.5},
		Parameters: Parameters{
			CustomerID:      7,
			ServicePriority: 2,
			ServiceHistory: []ServiceEvent{
				{Timestamp: 1700000000, ServiceType: "inspection", SystemParameters: []float64{1, 2}},
			},
			FailurePredictions: []FailurePrediction{
				{Component: "compressor", Probability: 0.5, EstimatedTime: 1700086400},
			},
			SensorReadings: []float64{20.1, 20.4},
		},
	}
}

func TestRecordCloneIsDeep(t *testing.T) {
	orig := sampleRecord(1)
	cp := orig.Clone()

	cp.CorrelationVector[0] = 99
	cp.Parameters.SensorReadings[0] = 99
	cp.Parameters.FailurePredictions[0].Probability = 0.9
	cp.Parameters.ServiceHistory[0].SystemParameters[0] = 99

	assert.Equal(t, 0.8, orig.CorrelationVector[0])
	assert.Equal(t, 20.1, orig.Parameters.SensorReadings[0])
	assert.Equal(t, 0.5, orig.Parameters.FailurePredictions[0].Probability)
	assert.Equal(t, 1.0, orig.Parameters.ServiceHistory[0].SystemParameters[0])
}

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Record) {}},
		{name: "zero id", mutate: func(r *Record) { r.ID = 0 }, wantErr: true},
		{name: "negative id", mutate: func(r *Record) { r.ID = -3 }, wantErr: true},
		{name: "probability above one", mutate: func(r *Record) {
			r.Parameters.FailurePredictions[0].Probability = 1.01
		}, wantErr: true},
		{name: "negative probability", mutate: func(r *Record) {
			r.Parameters.FailurePredictions[0].Probability = -0.1
		}, wantErr: true},
		{name: "nan probability", mutate: func(r *Record) {
			r.Parameters.FailurePredictions[0].Probability = math.NaN()
		}, wantErr: true},
		{name: "boundary probabilities", mutate: func(r *Record) {
			r.Parameters.FailurePredictions = []FailurePrediction{
				{Component: "a", Probability: 0},
				{Component: "b", Probability: 1},
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := sampleRecord(1)
			tt.mutate(&rec)
			err := rec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMergePredictions(t *testing.T) {
	current := []FailurePrediction{
		{Component: "compressor", Probability: 0.2},
		{Component: "fan", Probability: 0.1},
	}
	updates := []FailurePrediction{
		{Component: "fan", Probability: 0.6},
		{Component: "valve", Probability: 0.3},
	}

	merged := MergePredictions(current, updates)

	assert.Equal(t, []FailurePrediction{
		{Component: "compressor", Probability: 0.2},
		{Component: "fan", Probability: 0.6},
		{Component: "valve", Probability: 0.3},
	}, merged)
	assert.Equal(t, 0.1, current[1].Probability, "input must not be modified")
}

func TestApplyScalars(t *testing.T) {
	rec := sampleRecord(1)

	applied, unknown := rec.ApplyScalars(map[string]float64{
		"temperatura": 30,
		"Humidity":    55,
		"voltage":     230,
	})

	assert.Equal(t, 30.0, rec.Temperature)
	assert.Equal(t, 55.0, rec.Humidity)
	assert.Equal(t, 1013.0, rec.Pressure)
	assert.Equal(t, 3.2, rec.Airflow)
	assert.ElementsMatch(t, []Field{FieldTemperature, FieldHumidity}, applied)
	assert.Equal(t, []string{"voltage"}, unknown)
}

func TestResolveFieldAliases(t *testing.T) {
	for name, want := range map[string]Field{
		"temperature":  FieldTemperature,
		" TEMPERATURA": FieldTemperature,
		"wilgotność":   FieldHumidity,
		"ciśnienie":    FieldPressure,
		"przepływ":     FieldAirflow,
		"air_flow":     FieldAirflow,
	} {
		got, ok := ResolveField(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	_, ok := ResolveField("rpm")
	assert.False(t, ok)
}

func TestRowRoundTripPreservesRecord(t *testing.T) {
	rec := sampleRecord(4)

	row, err := EncodeRow(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"customer_id": 7,
		"service_priority": 2,
		"service_history": [{"timestamp": 1700000000, "service_type": "inspection", "system_parameters": [1, 2]}],
		"failure_predictions": [{"component": "compressor", "probability": 0.5, "estimated_time": 1700086400}],
		"sensor_readings": [20.1, 20.4]
	}`, string(row.Parameters))

	got, err := row.Decode()
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRowDecodeRejectsCorruptBlock(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("{not json"), []byte(`{"service_priority": "high"}`)} {
		_, err := Row{ID: 1, Parameters: data}.Decode()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSerialization), "got %v", err)
	}
}

func TestErrorUnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("disk gone")
	err := classify("put", 3, cause)

	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrPersistenceUnavailable, KindOf(err))
	assert.Contains(t, err.Error(), "put 3")

	assert.Equal(t, ErrNotFound, KindOf(classify("get", 1, ErrNotFound)))
	assert.Nil(t, KindOf(errors.New("plain")))
}
