package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/internal/ioengine"
	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/internal/timer"
	"github.com/cuemby/warren/pkg/types"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	state types.ServiceState
}

func (f *fakeExecutor) Execute(ctx context.Context, c *types.Checkable) *types.CheckResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return &types.CheckResult{CheckableID: c.ID(), State: f.state, Active: true}
}

type fakeResults struct {
	mu      sync.Mutex
	results []*types.CheckResult
	done    chan struct{}
}

func newFakeResults() *fakeResults {
	return &fakeResults{done: make(chan struct{}, 16)}
}

func (f *fakeResults) ProcessResult(id string, result *types.CheckResult) {
	f.mu.Lock()
	f.results = append(f.results, result)
	f.mu.Unlock()
	f.done <- struct{}{}
}

func newTestScheduler(t *testing.T, executor CheckExecutor, results ResultProcessor) (*Scheduler, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	wheel := timer.New(4)
	wheel.Start()
	t.Cleanup(wheel.Stop)

	engine := ioengine.New(4)
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })

	return New(reg, wheel, engine, executor, nil, results, ""), reg
}

func TestScheduleOneDispatchesDueCheck(t *testing.T) {
	exec := &fakeExecutor{state: types.StateOK}
	results := newFakeResults()
	s, reg := newTestScheduler(t, exec, results)

	c := &types.Checkable{
		Kind: types.KindHost, Name: "host1", Host: "host1",
		ActiveChecksEnabled: true, CheckInterval: time.Hour, RetryInterval: time.Minute,
		NextCheck: time.Now(),
	}
	entry, err := reg.AddCheckable(c)
	require.NoError(t, err)

	s.ScheduleOne(entry)

	select {
	case <-results.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a result to be processed")
	}

	require.Equal(t, 1, exec.calls)
	require.Len(t, results.results, 1)
}

func TestDispatchSkipsAlreadyInFlightCheck(t *testing.T) {
	exec := &fakeExecutor{state: types.StateOK}
	results := newFakeResults()
	s, reg := newTestScheduler(t, exec, results)

	c := &types.Checkable{
		Kind: types.KindHost, Name: "host1", Host: "host1",
		ActiveChecksEnabled: true, InFlight: true, CheckInterval: time.Hour,
	}
	entry, err := reg.AddCheckable(c)
	require.NoError(t, err)

	s.dispatch(entry.Checkable.ID())
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, exec.calls)
}

func TestDispatchSkipsDisabledChecks(t *testing.T) {
	exec := &fakeExecutor{state: types.StateOK}
	results := newFakeResults()
	s, reg := newTestScheduler(t, exec, results)

	c := &types.Checkable{
		Kind: types.KindHost, Name: "host1", Host: "host1",
		ActiveChecksEnabled: false,
	}
	entry, err := reg.AddCheckable(c)
	require.NoError(t, err)

	s.ScheduleOne(entry)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, exec.calls)
}

func TestRescheduleUsesRetryIntervalInSoftState(t *testing.T) {
	exec := &fakeExecutor{state: types.StateCritical}
	results := newFakeResults()
	s, reg := newTestScheduler(t, exec, results)

	c := &types.Checkable{
		Kind: types.KindHost, Name: "host1", Host: "host1",
		ActiveChecksEnabled: true, CheckInterval: time.Hour, RetryInterval: 50 * time.Millisecond,
		StateType: types.StateTypeSoft,
	}
	entry, err := reg.AddCheckable(c)
	require.NoError(t, err)

	before := time.Now()
	s.Reschedule(entry.Checkable.ID())

	unlock := entry.Lock()
	next := entry.Checkable.NextCheck
	unlock()

	require.WithinDuration(t, before.Add(50*time.Millisecond), next, 20*time.Millisecond)
}

func TestOwnsReturnsTrueWithNoEndpointName(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeExecutor{}, nil)
	c := &types.Checkable{HAMode: types.HAModeBalanced, Zone: "main"}
	require.True(t, s.owns(c))
}
