package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hvac-mesh/internal/correlation"
	"github.com/2389/hvac-mesh/internal/integrator"
)

type fakeDevices struct {
	ids []int64
	err error
}

func (f fakeDevices) ListDeviceIDs(context.Context) ([]int64, error) { return f.ids, f.err }

type fakeChecker struct {
	mu      sync.Mutex
	checked []int64
	match   map[int64]bool
	fail    map[int64]bool
}

func (f *fakeChecker) CrossCheck(_ context.Context, id int64) (integrator.CrossCheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, id)
	if f.fail[id] {
		return integrator.CrossCheckResult{}, errors.New("boom")
	}
	res := integrator.CrossCheckResult{DeviceID: id, Checked: []int64{}}
	if f.match[id] {
		res.Match = &correlation.Record{DeviceA: id, DeviceB: id + 1, Degree: 0.9}
	}
	return res, nil
}

func (f *fakeChecker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.checked)
}

var quiet = slog.New(slog.DiscardHandler)

func TestSweepChecksEveryDevice(t *testing.T) {
	checker := &fakeChecker{match: map[int64]bool{2: true}, fail: map[int64]bool{3: true}}
	s := NewSweeper(fakeDevices{ids: []int64{1, 2, 3, 4}}, checker, time.Minute, quiet)

	rep, err := s.Sweep(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3, 4}, checker.checked)
	assert.Equal(t, 4, rep.Devices)
	assert.Equal(t, 1, rep.Matches)
	assert.Equal(t, 1, rep.Failures)

	last, runs := s.Last()
	require.NotNil(t, last)
	assert.Equal(t, 1, runs)
	assert.Equal(t, rep.Matches, last.Matches)
}

func TestSweepListFailure(t *testing.T) {
	checker := &fakeChecker{}
	s := NewSweeper(fakeDevices{err: errors.New("db gone")}, checker, time.Minute, quiet)

	_, err := s.Sweep(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing devices")
	assert.Zero(t, checker.count())

	last, runs := s.Last()
	assert.Nil(t, last)
	assert.Zero(t, runs)
}

func TestSweepStopsOnCancel(t *testing.T) {
	checker := &fakeChecker{}
	s := NewSweeper(fakeDevices{ids: []int64{1, 2}}, checker, time.Minute, quiet)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := s.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, checker.count())
}

func TestStartRunsPeriodically(t *testing.T) {
	checker := &fakeChecker{}
	s := NewSweeper(fakeDevices{ids: []int64{7}}, checker, 20*time.Millisecond, quiet)

	require.NoError(t, s.Start(t.Context()))
	assert.Error(t, s.Start(t.Context()), "second start")

	assert.Eventually(t, func() bool { return checker.count() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestStartRejectsNonPositiveInterval(t *testing.T) {
	s := NewSweeper(fakeDevices{}, &fakeChecker{}, 0, quiet)
	assert.Error(t, s.Start(t.Context()))
}
