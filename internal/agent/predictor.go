// ABOUTME: Named failure-prediction strategies selected at construction time
// ABOUTME: fixed mirrors the field default; sensor scales with observed readings

package agent

import (
	"fmt"
	"math"
	"time"

	"github.com/2389/hvac-mesh/internal/state"
)

// Predictor names accepted by NewPredictor.
const (
	PredictorFixed  = "fixed"
	PredictorSensor = "sensor"
)

// DefaultHorizon is how far ahead an estimated failure is placed.
const DefaultHorizon = 24 * time.Hour

// Predictor estimates the failure of one component of a record.
type Predictor interface {
	Name() string
	Predict(rec state.Record, component string, now time.Time) state.FailurePrediction
}

// NewPredictor returns the strategy registered under name. An empty name
// selects the fixed strategy.
func NewPredictor(name string) (Predictor, error) {
	switch name {
	case "", PredictorFixed:
		return FixedPredictor{Probability: 0.5, Horizon: DefaultHorizon}, nil
	case PredictorSensor:
		return SensorPredictor{Horizon: DefaultHorizon}, nil
	}
	return nil, fmt.Errorf("unknown predictor %q", name)
}

// FixedPredictor assigns every component the same probability and horizon.
type FixedPredictor struct {
	Probability float64
	Horizon     time.Duration
}

func (FixedPredictor) Name() string { return PredictorFixed }

func (p FixedPredictor) Predict(_ state.Record, component string, now time.Time) state.FailurePrediction {
	return state.FailurePrediction{
		Component:     component,
		Probability:   clamp01(p.Probability),
		EstimatedTime: now.Add(p.Horizon).Unix(),
	}
}

// SensorPredictor derives the probability from the mean absolute sensor
// reading, clamped to [0, 1]. Higher probabilities move the estimated time
// closer to now.
type SensorPredictor struct {
	Horizon time.Duration
}

func (SensorPredictor) Name() string { return PredictorSensor }

func (p SensorPredictor) Predict(rec state.Record, component string, now time.Time) state.FailurePrediction {
	readings := rec.Parameters.SensorReadings
	var prob float64
	if len(readings) > 0 {
		var sum float64
		for _, r := range readings {
			sum += math.Abs(r)
		}
		prob = clamp01(sum / float64(len(readings)))
	}
	ahead := time.Duration(float64(p.Horizon) * (1 - prob))
	return state.FailurePrediction{
		Component:     component,
		Probability:   prob,
		EstimatedTime: now.Add(ahead).Unix(),
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
