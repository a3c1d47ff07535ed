package storage

import (
	"github.com/cuemby/warren/pkg/types"
)

// Store defines durable persistence for cluster state that must survive a
// process restart.
type Store interface {
	// Downtimes
	CreateDowntime(d *types.Downtime) error
	GetDowntime(id string) (*types.Downtime, error)
	ListDowntimesForCheckable(checkableID string) ([]*types.Downtime, error)
	DeleteDowntime(id string) error

	// Acknowledgements
	SaveAcknowledgement(checkableID string, ack *types.Acknowledgement) error
	GetAcknowledgement(checkableID string) (*types.Acknowledgement, error)
	DeleteAcknowledgement(checkableID string) error

	// Notifications (durable bookkeeping: last/next notification times)
	SaveNotification(n *types.Notification) error
	GetNotification(id string) (*types.Notification, error)
	ListNotifications() ([]*types.Notification, error)
	DeleteNotification(id string) error

	// Endpoints: replication log cursor per peer
	SaveReplayPosition(endpoint string, position int64) error
	GetReplayPosition(endpoint string) (int64, error)

	// Certificate Authority
	SaveCA(data []byte) error
	GetCA() ([]byte, error)

	// API users (facade authentication)
	SaveAPIUser(u *types.APIUser) error
	GetAPIUser(name string) (*types.APIUser, error)
	ListAPIUsers() ([]*types.APIUser, error)
	DeleteAPIUser(name string) error

	Close() error
}
