package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/pkg/types"
)

type fakeNotifier struct {
	notified []string
}

func (f *fakeNotifier) NotifyDowntimeEnd(checkableID string) {
	f.notified = append(f.notified, checkableID)
}

func newTestCheckable() *types.Checkable {
	return &types.Checkable{
		Kind: types.KindHost, Name: "host1", Host: "host1",
		MaxCheckAttempts: 3,
		State:            types.StateOK,
		StateType:        types.StateTypeHard,
		Attempt:          1,
	}
}

func TestSweepExpiresPastDowntimeAndNotifies(t *testing.T) {
	reg := registry.New()
	notifier := &fakeNotifier{}
	r := New(reg, notifier)

	c := newTestCheckable()
	now := time.Now()
	c.Downtimes = []*types.Downtime{
		{ID: "d1", CheckableID: c.ID(), Fixed: true, Start: now.Add(-time.Hour), End: now.Add(-time.Minute)},
		{ID: "d2", CheckableID: c.ID(), Fixed: true, Start: now.Add(-time.Minute), End: now.Add(time.Hour)},
	}
	_, err := reg.AddCheckable(c)
	require.NoError(t, err)

	r.sweep()

	entry, ok := reg.GetCheckable(c.ID())
	require.True(t, ok)
	unlock := entry.Lock()
	require.Len(t, entry.Checkable.Downtimes, 1)
	require.Equal(t, "d2", entry.Checkable.Downtimes[0].ID)
	unlock()

	require.Equal(t, []string{c.ID()}, notifier.notified)
}

func TestSweepLeavesActiveDowntimesAlone(t *testing.T) {
	reg := registry.New()
	r := New(reg, nil)

	c := newTestCheckable()
	now := time.Now()
	c.Downtimes = []*types.Downtime{
		{ID: "d1", CheckableID: c.ID(), Fixed: true, Start: now.Add(-time.Minute), End: now.Add(time.Hour)},
	}
	_, err := reg.AddCheckable(c)
	require.NoError(t, err)

	r.sweep()

	entry, ok := reg.GetCheckable(c.ID())
	require.True(t, ok)
	unlock := entry.Lock()
	require.Len(t, entry.Checkable.Downtimes, 1)
	unlock()
}
