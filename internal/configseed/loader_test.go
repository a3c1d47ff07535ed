package configseed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/pkg/types"
)

const sampleDoc = `
apiVersion: v1
kind: Host
metadata:
  name: web1
spec:
  checkCommand: check_ping
  checkInterval: 60s
  maxCheckAttempts: 3
---
apiVersion: v1
kind: Service
metadata:
  name: web1!http
spec:
  host: web1
  checkCommand: check_http
  parents:
    - web1
---
apiVersion: v1
kind: TimePeriod
metadata:
  name: 24x7
spec:
  ranges:
    - weekday: 1
      startHour: 0
      startMin: 0
      endHour: 24
      endMin: 0
---
apiVersion: v1
kind: Notification
metadata:
  name: web1-mail
spec:
  checkableId: web1
  command: mail-notification
  users: ["alice"]
  timePeriod: 24x7
---
apiVersion: v1
kind: Zone
metadata:
  name: main
spec:
  local: true
---
apiVersion: v1
kind: Endpoint
metadata:
  name: master1
spec:
  zone: main
  host: 10.0.0.1
  port: "5665"
---
apiVersion: v1
kind: ApiUser
metadata:
  name: root
spec:
  password: secret
  permissions: ["*"]
`

func TestLoadSeedsEveryResourceKind(t *testing.T) {
	reg := registry.New()
	var savedUsers []*types.APIUser
	store := &fakeStore{saveUser: func(u *types.APIUser) error {
		savedUsers = append(savedUsers, u)
		return nil
	}}

	err := Load(strings.NewReader(sampleDoc), reg, store)
	require.NoError(t, err)

	host, ok := reg.GetCheckable("web1")
	require.True(t, ok)
	require.Equal(t, types.KindHost, host.Checkable.Kind)

	svc, ok := reg.GetCheckable("web1!http")
	require.True(t, ok)
	require.Len(t, svc.Checkable.ParentDependencies, 1)
	require.Equal(t, "web1", svc.Checkable.ParentDependencies[0].ParentID)

	_, ok = reg.GetTimePeriod("24x7")
	require.True(t, ok)

	notifs := reg.NotificationsFor("web1")
	require.Len(t, notifs, 1)
	require.Equal(t, "mail-notification", notifs[0].Command)

	_, ok = reg.GetZone("main")
	require.True(t, ok)

	_, ok = reg.GetEndpoint("master1")
	require.True(t, ok)

	require.Len(t, savedUsers, 1)
	require.Equal(t, "root", savedUsers[0].Name)
	require.NotEmpty(t, savedUsers[0].PasswordHash)
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	reg := registry.New()
	err := Load(strings.NewReader("kind: Bogus\nmetadata:\n  name: x\nspec: {}\n"), reg, nil)
	require.Error(t, err)
}

// storeStub is a no-op storage.Store so tests only need to override the
// methods they care about.
type storeStub struct{}

func (storeStub) CreateDowntime(*types.Downtime) error                     { return nil }
func (storeStub) GetDowntime(string) (*types.Downtime, error)              { return nil, nil }
func (storeStub) ListDowntimesForCheckable(string) ([]*types.Downtime, error) { return nil, nil }
func (storeStub) DeleteDowntime(string) error                              { return nil }
func (storeStub) SaveAcknowledgement(string, *types.Acknowledgement) error { return nil }
func (storeStub) GetAcknowledgement(string) (*types.Acknowledgement, error) { return nil, nil }
func (storeStub) DeleteAcknowledgement(string) error                      { return nil }
func (storeStub) SaveNotification(*types.Notification) error              { return nil }
func (storeStub) GetNotification(string) (*types.Notification, error)     { return nil, nil }
func (storeStub) ListNotifications() ([]*types.Notification, error)       { return nil, nil }
func (storeStub) DeleteNotification(string) error                         { return nil }
func (storeStub) SaveReplayPosition(string, int64) error                  { return nil }
func (storeStub) GetReplayPosition(string) (int64, error)                 { return 0, nil }
func (storeStub) SaveCA([]byte) error                                     { return nil }
func (storeStub) GetCA() ([]byte, error)                                  { return nil, nil }
func (storeStub) SaveAPIUser(*types.APIUser) error                        { return nil }
func (storeStub) GetAPIUser(string) (*types.APIUser, error)               { return nil, nil }
func (storeStub) ListAPIUsers() ([]*types.APIUser, error)                 { return nil, nil }
func (storeStub) DeleteAPIUser(string) error                              { return nil }
func (storeStub) Close() error                                            { return nil }

type fakeStore struct {
	storeStub
	saveUser func(u *types.APIUser) error
}

func (f *fakeStore) SaveAPIUser(u *types.APIUser) error { return f.saveUser(u) }
