// ABOUTME: Tests for agent lifecycle management, routing and predictors
// ABOUTME: Validates start/stop bookkeeping and registry synchronization

package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hvac-mesh/internal/state"
)

type fakeRegistry struct {
	mu     sync.Mutex
	inboxs map[string]*Inbox
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{inboxs: make(map[string]*Inbox)}
}

func (r *fakeRegistry) Register(in *Inbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inboxs[in.Owner()]; ok {
		return ErrAgentAlreadyRegistered
	}
	r.inboxs[in.Owner()] = in
	return nil
}

func (r *fakeRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inboxs, id)
}

func (r *fakeRegistry) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inboxs[id]
	return ok
}

func TestManagerStartAndStop(t *testing.T) {
	reg := newFakeRegistry()
	mgr := NewManager(reg, nil)
	st := state.NewStore(newMemBackend(), state.Options{})
	ctx := t.Context()

	a, err := mgr.Start(ctx, Config{ID: "agent-1", StateID: 1, Store: st})
	require.NoError(t, err)
	assert.True(t, reg.has("agent-1"))
	assert.True(t, mgr.IsOnline("agent-1"))
	assert.Same(t, a, mgr.GetByStateID(1))

	_, err = mgr.Start(ctx, Config{ID: "agent-1", StateID: 2, Store: st})
	assert.ErrorIs(t, err, ErrAgentAlreadyRegistered)
	_, err = mgr.Start(ctx, Config{ID: "agent-2", StateID: 1, Store: st})
	assert.ErrorIs(t, err, ErrStateAlreadyOwned)

	require.NoError(t, mgr.Stop(ctx, "agent-1"))
	assert.False(t, reg.has("agent-1"))
	assert.False(t, mgr.IsOnline("agent-1"))
	assert.True(t, a.Inbox().Closed())
	assert.ErrorIs(t, mgr.Stop(ctx, "agent-1"), ErrAgentNotFound)
}

func TestManagerListAgentsSorted(t *testing.T) {
	mgr := NewManager(newFakeRegistry(), nil)
	st := state.NewStore(newMemBackend(), state.Options{})
	ctx := t.Context()

	for i, id := range []string{"ahu-3", "ahu-1", "ahu-2"} {
		_, err := mgr.Start(ctx, Config{ID: id, StateID: int64(i + 1), Store: st})
		require.NoError(t, err)
	}

	infos := mgr.ListAgents()
	require.Len(t, infos, 3)
	assert.Equal(t, "ahu-1", infos[0].ID)
	assert.Equal(t, int64(2), infos[0].StateID)
	assert.Equal(t, PredictorFixed, infos[0].Predictor)
	assert.Equal(t, DefaultInboxCapacity, infos[0].Capacity)

	require.NoError(t, mgr.StopAll(ctx))
	mgr.Wait()
	assert.Empty(t, mgr.ListAgents())
}

func TestRouterSelectAgent(t *testing.T) {
	st := state.NewStore(newMemBackend(), state.Options{})
	a1, err := New(Config{ID: "a1", StateID: 1, Store: st})
	require.NoError(t, err)
	a2, err := New(Config{ID: "a2", StateID: 2, Store: st})
	require.NoError(t, err)
	agents := []*Agent{a1, a2}
	r := NewRouter()

	got, err := r.SelectAgent(StateRequested{TargetID: 2}, agents)
	require.NoError(t, err)
	assert.Same(t, a2, got)

	got, err = r.SelectAgent(StateUpdated{Record: testRecord(1)}, agents)
	require.NoError(t, err)
	assert.Same(t, a1, got)

	_, err = r.SelectAgent(StateRequested{TargetID: 9}, agents)
	assert.ErrorIs(t, err, ErrAgentNotFound)

	first, err := r.SelectAgent(EntangledStatesRequested{MinDegree: 0.7}, agents)
	require.NoError(t, err)
	second, err := r.SelectAgent(EntangledStatesRequested{MinDegree: 0.7}, agents)
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	_, err = r.SelectAgent(StateRequested{TargetID: 1}, nil)
	assert.ErrorIs(t, err, ErrNoAgentsAvailable)
}

func TestPredictors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	fixed, err := NewPredictor("")
	require.NoError(t, err)
	p := fixed.Predict(testRecord(1), "fan", now)
	assert.Equal(t, state.FailurePrediction{Component: "fan", Probability: 0.5, EstimatedTime: now.Unix() + 86400}, p)

	sensor, err := NewPredictor(PredictorSensor)
	require.NoError(t, err)
	rec := testRecord(1)
	rec.Parameters.SensorReadings = []float64{-0.5, 0.5, 1.0, 0.0}
	p = sensor.Predict(rec, "coil", now)
	assert.InDelta(t, 0.5, p.Probability, 1e-9)
	assert.Equal(t, now.Unix()+43200, p.EstimatedTime)

	rec.Parameters.SensorReadings = []float64{40, 60}
	assert.Equal(t, 1.0, sensor.Predict(rec, "coil", now).Probability)

	rec.Parameters.SensorReadings = nil
	assert.Equal(t, 0.0, sensor.Predict(rec, "coil", now).Probability)

	_, err = NewPredictor("neural")
	assert.Error(t, err)
}
