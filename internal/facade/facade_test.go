package facade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/pkg/events"
	"github.com/cuemby/warren/pkg/types"
)

type fakeResults struct {
	processed int
}

func (f *fakeResults) ProcessResult(checkableID string, result *types.CheckResult) {
	f.processed++
}

type fakeNotifier struct {
	acks, downtimeStarts, downtimeRemoved, custom int
}

func (f *fakeNotifier) NotifyAcknowledgement(string) { f.acks++ }
func (f *fakeNotifier) NotifyDowntimeStart(string)   { f.downtimeStarts++ }
func (f *fakeNotifier) NotifyDowntimeRemoved(string) { f.downtimeRemoved++ }
func (f *fakeNotifier) SendCustom(string)            { f.custom++ }

type fakeScheduler struct {
	rescheduled map[string]time.Time
}

func (f *fakeScheduler) ScheduleAt(id string, when time.Time) {
	if f.rescheduled == nil {
		f.rescheduled = make(map[string]time.Time)
	}
	f.rescheduled[id] = when
}

func newTestFacade(t *testing.T) (*Facade, *fakeResults, *fakeNotifier, *fakeScheduler) {
	reg := registry.New()
	c := &types.Checkable{Kind: types.KindHost, Name: "host1", Host: "host1", State: types.StateOK}
	_, err := reg.AddCheckable(c)
	require.NoError(t, err)

	results := &fakeResults{}
	notifier := &fakeNotifier{}
	sched := &fakeScheduler{}
	return New(reg, results, notifier, sched, nil), results, notifier, sched
}

func TestProcessCheckResultRejectsUnknownCheckable(t *testing.T) {
	f, _, _, _ := newTestFacade(t)
	err := f.ProcessCheckResult("nope!svc", &types.CheckResult{})
	require.Error(t, err)
}

func TestProcessCheckResultDispatchesToProcessor(t *testing.T) {
	f, results, _, _ := newTestFacade(t)
	err := f.ProcessCheckResult("host1", &types.CheckResult{State: types.StateOK})
	require.NoError(t, err)
	require.Equal(t, 1, results.processed)
}

func TestScheduleDowntimeAddsAndNotifies(t *testing.T) {
	f, _, notifier, _ := newTestFacade(t)
	now := time.Now()
	d, err := f.ScheduleDowntime("host1", "alice", "maintenance", now, now.Add(time.Hour), true)
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.Equal(t, 1, notifier.downtimeStarts)

	c, _ := f.GetCheckable("host1")
	require.Len(t, c.Downtimes, 1)
}

func TestRemoveDowntimeNotFound(t *testing.T) {
	f, _, _, _ := newTestFacade(t)
	err := f.RemoveDowntime("host1", "missing")
	require.Error(t, err)
}

func TestAcknowledgeProblemSetsAckAndNotifies(t *testing.T) {
	f, _, notifier, _ := newTestFacade(t)
	err := f.AcknowledgeProblem("host1", "bob", "looking into it", false)
	require.NoError(t, err)
	require.Equal(t, 1, notifier.acks)

	c, _ := f.GetCheckable("host1")
	require.NotNil(t, c.Acknowledgement)
	require.Equal(t, "bob", c.Acknowledgement.Author)
}

func TestRescheduleCallsScheduler(t *testing.T) {
	f, _, _, sched := newTestFacade(t)
	when := time.Now().Add(5 * time.Minute)
	require.NoError(t, f.Reschedule("host1", when))
	require.Equal(t, when, sched.rescheduled["host1"])
}

func TestSubscribePublishesEvents(t *testing.T) {
	f, _, _, _ := newTestFacade(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := f.Subscribe(ctx)
	require.NoError(t, f.ProcessCheckResult("host1", &types.CheckResult{}))

	select {
	case ev := <-ch:
		require.Equal(t, events.EventNewCheckResult, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}
}

func TestEventSinkAdapterPublishesStateChange(t *testing.T) {
	f, _, _, _ := newTestFacade(t)
	adapter := NewEventSinkAdapter(f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := f.Subscribe(ctx)

	adapter.OnStateChange("host1", &types.Checkable{State: types.StateCritical}, false)

	select {
	case ev := <-ch:
		require.Equal(t, events.EventStateChange, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}
}
