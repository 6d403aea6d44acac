// ABOUTME: Correlation engine that measures device pairs and records the result
// ABOUTME: High-degree measurements are handed to a Notifier after persisting

package correlation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/hvac-mesh/internal/state"
)

// ErrSameDevice is returned when both sides of a pair are the same device.
var ErrSameDevice = errors.New("correlation requires two distinct devices")

// Record is one persisted measurement. Records are append-only.
type Record struct {
	ID         int64          `json:"id"`
	DeviceA    int64          `json:"device_a"`
	DeviceB    int64          `json:"device_b"`
	Degree     float64        `json:"degree"`
	MeasuredAt time.Time      `json:"measured_at"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Impact     string         `json:"impact,omitempty"`
	Note       string         `json:"note,omitempty"`
}

// RecordStore persists measurements.
type RecordStore interface {
	InsertCorrelation(ctx context.Context, rec *Record) (int64, error)
	// CorrelationsForDevice returns every record involving deviceID with a
	// degree of at least minDegree, highest degree first.
	CorrelationsForDevice(ctx context.Context, deviceID int64, minDegree float64) ([]Record, error)
}

// StateReader reads the current state of a record.
type StateReader interface {
	Snapshot(ctx context.Context, id int64) (state.Record, error)
}

// DeviceResolver maps a device id to the id of its state record.
type DeviceResolver interface {
	StateIDForDevice(ctx context.Context, deviceID int64) (int64, error)
}

// Notifier is told about measurements above NotifyThreshold.
type Notifier interface {
	NotifyHighCorrelation(ctx context.Context, rec Record)
}

// Observer receives every computed degree. metrics.Recorder satisfies it.
type Observer interface {
	ObserveCorrelation(degree float64, notified bool)
}

type nopObserver struct{}

func (nopObserver) ObserveCorrelation(float64, bool) {}

// Options configures an Engine.
type Options struct {
	// Resolver maps device ids to state ids. Nil uses the device id as the
	// state id.
	Resolver DeviceResolver
	Notifier Notifier
	Logger   *slog.Logger
	Observer Observer
	Now      func() time.Time
}

// Result describes one ComputeAndStore call.
type Result struct {
	Record   Record
	Notified bool
}

// Engine computes and records correlations.
type Engine struct {
	states   StateReader
	records  RecordStore
	resolver DeviceResolver
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	mu       sync.RWMutex
	notifier Notifier
}

// NewEngine creates an engine reading states and writing records.
func NewEngine(states StateReader, records RecordStore, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		states:   states,
		records:  records,
		resolver: opts.Resolver,
		logger:   opts.Logger.With("component", "correlation"),
		observer: opts.Observer,
		now:      opts.Now,
		notifier: opts.Notifier,
	}
}

// SetNotifier replaces the notifier. The integrator installs itself here
// after construction.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// ComputeAndStore measures the pair, appends a record and notifies when
// the degree is above NotifyThreshold. State errors are returned unchanged.
func (e *Engine) ComputeAndStore(ctx context.Context, deviceA, deviceB int64) (Result, error) {
	if deviceA == deviceB {
		return Result{}, ErrSameDevice
	}

	a, err := e.snapshot(ctx, deviceA)
	if err != nil {
		return Result{}, err
	}
	b, err := e.snapshot(ctx, deviceB)
	if err != nil {
		return Result{}, err
	}

	degree := Degree(a.CorrelationVector, b.CorrelationVector)
	rec := Record{
		DeviceA:    deviceA,
		DeviceB:    deviceB,
		Degree:     degree,
		MeasuredAt: e.now().UTC(),
		Parameters: map[string]any{
			"samples": min(len(a.CorrelationVector), len(b.CorrelationVector)),
		},
		Note: fmt.Sprintf("automatic correlation measurement between devices %d and %d", deviceA, deviceB),
	}

	id, err := e.records.InsertCorrelation(ctx, &rec)
	if err != nil {
		return Result{}, fmt.Errorf("storing correlation %d/%d: %w", deviceA, deviceB, err)
	}
	rec.ID = id

	res := Result{Record: rec}
	if ShouldNotify(degree) {
		if n := e.currentNotifier(); n != nil {
			n.NotifyHighCorrelation(ctx, rec)
			res.Notified = true
		}
	}
	e.observer.ObserveCorrelation(degree, res.Notified)

	e.logger.Debug("correlation measured",
		"device_a", deviceA,
		"device_b", deviceB,
		"degree", degree,
		"notified", res.Notified)
	return res, nil
}

// ForDevice returns stored measurements involving deviceID with a degree of
// at least minDegree, highest first.
func (e *Engine) ForDevice(ctx context.Context, deviceID int64, minDegree float64) ([]Record, error) {
	return e.records.CorrelationsForDevice(ctx, deviceID, minDegree)
}

func (e *Engine) snapshot(ctx context.Context, deviceID int64) (state.Record, error) {
	stateID := deviceID
	if e.resolver != nil {
		id, err := e.resolver.StateIDForDevice(ctx, deviceID)
		if err != nil {
			return state.Record{}, err
		}
		stateID = id
	}
	return e.states.Snapshot(ctx, stateID)
}

func (e *Engine) currentNotifier() Notifier {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.notifier
}
