// ABOUTME: Shared test fixtures for agent tests
// ABOUTME: In-memory state backend, recording peers and a concurrency checker

package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/hvac-mesh/internal/state"
)

type memBackend struct {
	mu   sync.Mutex
	rows map[int64]state.Row
	fail error
}

func newMemBackend() *memBackend {
	return &memBackend{rows: make(map[int64]state.Row)}
}

func (b *memBackend) LoadState(_ context.Context, id int64) (state.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row, ok := b.rows[id]
	if !ok {
		return state.Row{}, fmt.Errorf("state %d: %w", id, state.ErrNotFound)
	}
	return row, nil
}

func (b *memBackend) SaveState(_ context.Context, row state.Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.rows[row.ID] = row
	return nil
}

func (b *memBackend) SaveParameters(_ context.Context, id int64, params []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	row := b.rows[id]
	row.Parameters = params
	b.rows[id] = row
	return nil
}

func (b *memBackend) QueryStatesAbove(_ context.Context, minDegree float64) ([]state.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []state.Row
	for _, row := range b.rows {
		if len(row.CorrelationVector) > 0 && row.CorrelationVector[0] > minDegree {
			out = append(out, row)
		}
	}
	return out, nil
}

func (b *memBackend) setFail(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

// recordingPeers captures every broadcast. Local-only deliveries are kept
// apart in local.
type recordingPeers struct {
	mu    sync.Mutex
	sent  []Message
	from  []string
	local []Message
}

func (p *recordingPeers) Deliver(_ context.Context, _ string, msg Message) Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = append(p.local, msg.Clone())
	return Report{Delivered: 1}
}

func (p *recordingPeers) localMessages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.local...)
}

func (p *recordingPeers) Broadcast(_ context.Context, from string, msg Message) Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg.Clone())
	p.from = append(p.from, from)
	return Report{Delivered: 1}
}

func (p *recordingPeers) messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.sent))
	copy(out, p.sent)
	return out
}

// slowStore wraps a StateStore, slows every call down and records the
// highest number of calls in flight at once.
type slowStore struct {
	StateStore
	delay    time.Duration
	inflight atomic.Int32
	maxSeen  atomic.Int32
}

func (p *slowStore) enter() func() {
	n := p.inflight.Add(1)
	for {
		cur := p.maxSeen.Load()
		if n <= cur || p.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(p.delay)
	return func() { p.inflight.Add(-1) }
}

func (p *slowStore) Snapshot(ctx context.Context, id int64) (state.Record, error) {
	defer p.enter()()
	return p.StateStore.Snapshot(ctx, id)
}

func (p *slowStore) Put(ctx context.Context, rec state.Record) error {
	defer p.enter()()
	return p.StateStore.Put(ctx, rec)
}

func testRecord(id int64) state.Record {
	return state.Record{
		ID:                id,
		Temperature:       21,
		Humidity:          45,
		Pressure:          1010,
		Airflow:           2.5,
		CorrelationVector: []float64{0.8, 0.2, 0.5},
		Parameters: state.Parameters{
			CustomerID:     1,
			SensorReadings: []float64{0.2, 0.4},
		},
	}
}

type fixture struct {
	backend *memBackend
	store   *state.Store
	peers   *recordingPeers
	agent   *Agent
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newFixture seeds record 1 and returns a running agent that owns it.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: newMemBackend(),
		peers:   &recordingPeers{},
	}
	f.store = state.NewStore(f.backend, state.Options{})
	require.NoError(t, f.store.Put(t.Context(), testRecord(1)))

	a, err := New(Config{
		ID:      "agent-1",
		StateID: 1,
		Store:   f.store,
		Peers:   f.peers,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	f.agent = a

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		a.Inbox().Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			cancel()
			t.Error("agent did not stop after inbox close")
		}
		cancel()
	})
	return f
}
