// ABOUTME: Tests for bounded inbox delivery, backpressure and close semantics
// ABOUTME: Also covers message copies and the wire conversion

package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxTrySendFull(t *testing.T) {
	in := NewInbox("a", 1)

	require.NoError(t, in.TrySend(NewEnvelope("x", StateRequested{TargetID: 1})))
	assert.ErrorIs(t, in.TrySend(NewEnvelope("x", StateRequested{TargetID: 1})), ErrInboxFull)
	assert.Equal(t, 1, in.Len())
	assert.Equal(t, 1, in.Cap())
}

func TestInboxSendBlocksUntilContextDone(t *testing.T) {
	in := NewInbox("a", 1)
	require.NoError(t, in.TrySend(NewEnvelope("x", StateRequested{TargetID: 1})))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := in.Send(ctx, NewEnvelope("x", StateRequested{TargetID: 1}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestInboxSendUnblocksWhenSpaceFrees(t *testing.T) {
	in := NewInbox("a", 1)
	require.NoError(t, in.TrySend(NewEnvelope("x", StateRequested{TargetID: 1})))

	go func() {
		time.Sleep(10 * time.Millisecond)
		<-in.ch
	}()

	require.NoError(t, in.Send(t.Context(), NewEnvelope("x", StateRequested{TargetID: 2})))
	env := <-in.ch
	assert.Equal(t, StateRequested{TargetID: 2}, env.Msg)
}

func TestInboxCloseIsIdempotentAndSafeUnderSenders(t *testing.T) {
	in := NewInbox("a", 2)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_ = in.TrySend(NewEnvelope("x", EntangledStatesRequested{MinDegree: 0.7}))
			}
		}()
	}
	in.Close()
	in.Close()
	wg.Wait()

	assert.True(t, in.Closed())
	assert.ErrorIs(t, in.Send(t.Context(), NewEnvelope("x", StateRequested{})), ErrInboxClosed)
}

func TestInboxDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultInboxCapacity, NewInbox("a", 0).Cap())
}

func TestMessageCloneIsIndependent(t *testing.T) {
	orig := ParameterOptimizationRequested{TargetID: 1, Params: map[string]float64{"temperature": 20}}
	cp := orig.Clone().(ParameterOptimizationRequested)
	cp.Params["temperature"] = 99
	assert.Equal(t, 20.0, orig.Params["temperature"])

	upd := StateUpdated{Record: testRecord(1)}
	ucp := upd.Clone().(StateUpdated)
	ucp.Record.CorrelationVector[0] = -1
	assert.Equal(t, 0.8, upd.Record.CorrelationVector[0])
}

func TestWireDecodesJSON(t *testing.T) {
	var w Wire
	require.NoError(t, json.Unmarshal([]byte(`{
		"kind": "parameter_optimization_requested",
		"target_id": 1,
		"params": {"temperatura": 30}
	}`), &w))

	msg, err := w.Message()
	require.NoError(t, err)
	assert.Equal(t, ParameterOptimizationRequested{TargetID: 1, Params: map[string]float64{"temperatura": 30}}, msg)
	assert.Equal(t, w, ToWire(msg))
}

func TestWireRejectsBadInput(t *testing.T) {
	_, err := Wire{Kind: "reboot"}.Message()
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Wire{Kind: KindStateUpdated}.Message()
	assert.Error(t, err)
}
