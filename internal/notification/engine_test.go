package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/internal/timer"
	"github.com/cuemby/warren/pkg/types"
)

type fakeSender struct {
	mu    sync.Mutex
	sends []types.NotificationType
}

func (f *fakeSender) Send(n *types.Notification, c *types.Checkable, eventType types.NotificationType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, eventType)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func newTestEngine(t *testing.T) (*Engine, *registry.Registry, *fakeSender) {
	t.Helper()
	reg := registry.New()
	wheel := timer.New(2)
	sender := &fakeSender{}
	e := New(reg, wheel, sender, time.Hour) // tick driven manually in tests
	return e, reg, sender
}

func newNotifiedCheckable(reg *registry.Registry, timePeriod string) (*types.Checkable, *types.Notification) {
	c := &types.Checkable{
		Kind: types.KindHost, Name: "host1", Host: "host1",
		MaxCheckAttempts: 1, State: types.StateOK, StateType: types.StateTypeHard, Attempt: 1,
	}
	reg.AddCheckable(c)

	n := &types.Notification{
		ID:          "n1",
		CheckableID: c.ID(),
		TypeFilter:  types.NotificationProblem | types.NotificationRecovery,
		TimePeriod:  timePeriod,
	}
	reg.AddNotification(n)
	return c, n
}

func closedTimePeriod(name string) *types.TimePeriod {
	var ranges []types.TimeRange
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		ranges = append(ranges, types.TimeRange{Weekday: wd})
	}
	return &types.TimePeriod{Name: name, Ranges: ranges}
}

func TestTimePeriodSuppressedProblemResumes(t *testing.T) {
	e, reg, sender := newTestEngine(t)

	reg.AddTimePeriod(closedTimePeriod("closed"))

	c, n := newNotifiedCheckable(reg, "closed")

	entry, _ := reg.GetCheckable(c.ID())
	for i := 0; i < 3; i++ {
		unlock := entry.Lock()
		entry.Checkable.State = types.StateCritical
		unlock()
		e.handleEvent(c.ID(), types.NotifyProblem)
	}

	require.Equal(t, 0, sender.count())
	require.True(t, n.SuppressedNotifications.Has(types.NotificationProblem))

	n.TimePeriod = ""
	e.tick()

	require.Equal(t, 1, sender.count())
	require.False(t, n.SuppressedNotifications.Has(types.NotificationProblem))
}

func TestCancellingSuppressions(t *testing.T) {
	e, reg, sender := newTestEngine(t)

	reg.AddTimePeriod(&types.TimePeriod{Name: "closed"})
	c, n := newNotifiedCheckable(reg, "closed")

	entry, _ := reg.GetCheckable(c.ID())

	unlock := entry.Lock()
	entry.Checkable.State = types.StateCritical
	unlock()
	e.handleEvent(c.ID(), types.NotifyProblem)

	unlock = entry.Lock()
	entry.Checkable.State = types.StateOK
	unlock()
	e.handleEvent(c.ID(), types.NotifyRecovery)

	require.Equal(t, 0, sender.count())
	require.True(t, n.SuppressedNotifications.Has(types.NotificationProblem))
	require.True(t, n.SuppressedNotifications.Has(types.NotificationRecovery))

	n.TimePeriod = ""
	e.tick()

	require.Equal(t, 0, sender.count())
	require.False(t, n.SuppressedNotifications.Has(types.NotificationProblem))
	require.False(t, n.SuppressedNotifications.Has(types.NotificationRecovery))
}

func TestFlappingSuppressesProblemNotifications(t *testing.T) {
	e, reg, sender := newTestEngine(t)
	c, _ := newNotifiedCheckable(reg, "")

	entry, _ := reg.GetCheckable(c.ID())
	unlock := entry.Lock()
	entry.Checkable.State = types.StateCritical
	entry.Checkable.Flapping = true
	unlock()

	e.handleEvent(c.ID(), types.NotifyProblem)
	require.Equal(t, 0, sender.count())
}

func TestReminderCadenceResendsOngoingProblem(t *testing.T) {
	e, reg, sender := newTestEngine(t)
	c, n := newNotifiedCheckable(reg, "")
	n.ReminderInterval = time.Millisecond

	entry, _ := reg.GetCheckable(c.ID())
	unlock := entry.Lock()
	entry.Checkable.State = types.StateCritical
	unlock()

	e.handleEvent(c.ID(), types.NotifyProblem)
	require.Equal(t, 1, sender.count())

	time.Sleep(5 * time.Millisecond)
	e.tick()
	require.Equal(t, 2, sender.count())
}

func TestBeginAttemptGating(t *testing.T) {
	e, reg, sender := newTestEngine(t)
	c, n := newNotifiedCheckable(reg, "")
	n.BeginAttempt = 3

	entry, _ := reg.GetCheckable(c.ID())
	unlock := entry.Lock()
	entry.Checkable.State = types.StateCritical
	entry.Checkable.Attempt = 1
	unlock()

	e.handleEvent(c.ID(), types.NotifyProblem)
	require.Equal(t, 0, sender.count())

	unlock = entry.Lock()
	entry.Checkable.Attempt = 3
	unlock()
	e.handleEvent(c.ID(), types.NotifyProblem)
	require.Equal(t, 1, sender.count())
}
