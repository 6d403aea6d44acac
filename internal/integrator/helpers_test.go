// ABOUTME: Shared fixture for integrator tests
// ABOUTME: Wires a MockStore, a real state cache, a correlation engine and a recording alert sink

package integrator

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/2389/hvac-mesh/internal/correlation"
	"github.com/2389/hvac-mesh/internal/notify"
	"github.com/2389/hvac-mesh/internal/state"
	"github.com/2389/hvac-mesh/internal/store"
)

var discard = slog.New(slog.DiscardHandler)

type recordingSink struct {
	mu     sync.Mutex
	alerts []notify.Alert
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Notify(_ context.Context, a notify.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}

func (s *recordingSink) received() []notify.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Alert(nil), s.alerts...)
}

type fixture struct {
	ms       *store.MockStore
	states   *state.Store
	engine   *correlation.Engine
	sink     *recordingSink
	integ    *Integrator
	building int64
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	ms := store.NewMockStore()
	states := state.NewStore(ms, state.Options{Logger: discard})
	engine := correlation.NewEngine(states, ms, correlation.Options{Resolver: ms, Logger: discard})
	sink := &recordingSink{}

	cfg := Config{
		Business:   ms,
		Audit:      ms,
		States:     states,
		Correlator: engine,
		Alerts:     sink,
		Logger:     discard,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	f := &fixture{ms: ms, states: states, engine: engine, sink: sink, integ: New(cfg)}

	ctx := context.Background()
	customerID, err := ms.CreateCustomer(ctx, &store.Customer{Name: "Jan"})
	require.NoError(t, err)
	f.building, err = ms.CreateBuilding(ctx, &store.Building{CustomerID: customerID, Name: "Dom", Address: "Warszawa"})
	require.NoError(t, err)
	return f
}

// seedState stores a state record with the given correlation vector.
func (f *fixture) seedState(t *testing.T, id int64, vector ...float64) {
	t.Helper()
	require.NoError(t, f.states.Put(context.Background(), state.Record{ID: id, CorrelationVector: vector}))
}

// seedDevice creates a device linked to stateID and returns its id.
func (f *fixture) seedDevice(t *testing.T, stateID int64) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := f.ms.CreateDevice(ctx, &store.Device{BuildingID: f.building, Model: "HX"})
	require.NoError(t, err)
	require.NoError(t, f.ms.LinkDeviceState(ctx, id, stateID))
	return id
}

func (f *fixture) auditFor(t *testing.T, action store.AuditAction) []*store.AuditEntry {
	t.Helper()
	entries, err := f.ms.ListAuditLog(context.Background(), store.AuditFilter{Action: action})
	require.NoError(t, err)
	return entries
}
