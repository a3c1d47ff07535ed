package storage

import (
	"os"
	"testing"
	"time"

	"github.com/cuemby/warren/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "icingad-storage-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDowntimeCRUD(t *testing.T) {
	store := newTestStore(t)

	d := &types.Downtime{
		ID:          "dt1",
		CheckableID: "web1",
		Author:      "ops",
		Start:       time.Now(),
		End:         time.Now().Add(time.Hour),
		Fixed:       true,
	}
	require.NoError(t, store.CreateDowntime(d))

	got, err := store.GetDowntime("dt1")
	require.NoError(t, err)
	require.Equal(t, "web1", got.CheckableID)

	list, err := store.ListDowntimesForCheckable("web1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.DeleteDowntime("dt1"))
	_, err = store.GetDowntime("dt1")
	require.Error(t, err)
}

func TestAcknowledgementRoundtrip(t *testing.T) {
	store := newTestStore(t)

	ack := &types.Acknowledgement{Author: "ops", Comment: "known issue", Severity: types.StateCritical}
	require.NoError(t, store.SaveAcknowledgement("web1", ack))

	got, err := store.GetAcknowledgement("web1")
	require.NoError(t, err)
	require.Equal(t, "ops", got.Author)

	require.NoError(t, store.DeleteAcknowledgement("web1"))
	_, err = store.GetAcknowledgement("web1")
	require.Error(t, err)
}

func TestReplayPositionDefaultsToZero(t *testing.T) {
	store := newTestStore(t)

	pos, err := store.GetReplayPosition("icinga2-satellite1")
	require.NoError(t, err)
	require.Equal(t, int64(0), pos)

	require.NoError(t, store.SaveReplayPosition("icinga2-satellite1", 4096))
	pos, err = store.GetReplayPosition("icinga2-satellite1")
	require.NoError(t, err)
	require.Equal(t, int64(4096), pos)
}

func TestCARoundtrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveCA([]byte("fake-ca-bytes")))
	data, err := store.GetCA()
	require.NoError(t, err)
	require.Equal(t, []byte("fake-ca-bytes"), data)
}

func TestAPIUserCRUD(t *testing.T) {
	store := newTestStore(t)

	u := &types.APIUser{Name: "root", Permissions: []string{"*"}}
	require.NoError(t, store.SaveAPIUser(u))

	got, err := store.GetAPIUser("root")
	require.NoError(t, err)
	require.True(t, got.HasPermission("objects/query/Host"))

	list, err := store.ListAPIUsers()
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.DeleteAPIUser("root"))
	_, err = store.GetAPIUser("root")
	require.Error(t, err)
}
