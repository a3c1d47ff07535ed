package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/warren/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketDowntimes       = []byte("downtimes")
	bucketAcknowledgements = []byte("acknowledgements")
	bucketNotifications   = []byte("notifications")
	bucketReplayPositions = []byte("replay_positions")
	bucketCA              = []byte("ca")
	bucketAPIUsers        = []byte("api_users")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the BoltDB file under dataDir and
// ensures every bucket this package writes to exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "icingad.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketDowntimes,
			bucketAcknowledgements,
			bucketNotifications,
			bucketReplayPositions,
			bucketCA,
			bucketAPIUsers,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Downtime operations

func (s *BoltStore) CreateDowntime(d *types.Downtime) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDowntimes).Put([]byte(d.ID), data)
	})
}

func (s *BoltStore) GetDowntime(id string) (*types.Downtime, error) {
	var d types.Downtime
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDowntimes).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("downtime not found: %s", id)
		}
		return json.Unmarshal(data, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *BoltStore) ListDowntimesForCheckable(checkableID string) ([]*types.Downtime, error) {
	var out []*types.Downtime
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDowntimes).ForEach(func(k, v []byte) error {
			var d types.Downtime
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if d.CheckableID == checkableID {
				out = append(out, &d)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteDowntime(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDowntimes).Delete([]byte(id))
	})
}

// Acknowledgement operations (keyed by checkable ID: at most one active ack)

func (s *BoltStore) SaveAcknowledgement(checkableID string, ack *types.Acknowledgement) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(ack)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAcknowledgements).Put([]byte(checkableID), data)
	})
}

func (s *BoltStore) GetAcknowledgement(checkableID string) (*types.Acknowledgement, error) {
	var ack types.Acknowledgement
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAcknowledgements).Get([]byte(checkableID))
		if data == nil {
			return fmt.Errorf("acknowledgement not found: %s", checkableID)
		}
		return json.Unmarshal(data, &ack)
	})
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

func (s *BoltStore) DeleteAcknowledgement(checkableID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAcknowledgements).Delete([]byte(checkableID))
	})
}

// Notification operations

func (s *BoltStore) SaveNotification(n *types.Notification) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNotifications).Put([]byte(n.ID), data)
	})
}

func (s *BoltStore) GetNotification(id string) (*types.Notification, error) {
	var n types.Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNotifications).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("notification not found: %s", id)
		}
		return json.Unmarshal(data, &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *BoltStore) ListNotifications() ([]*types.Notification, error) {
	var out []*types.Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNotifications).ForEach(func(k, v []byte) error {
			var n types.Notification
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			out = append(out, &n)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteNotification(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNotifications).Delete([]byte(id))
	})
}

// Replay position operations

func (s *BoltStore) SaveReplayPosition(endpoint string, position int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(position))
		return tx.Bucket(bucketReplayPositions).Put([]byte(endpoint), buf)
	})
}

func (s *BoltStore) GetReplayPosition(endpoint string) (int64, error) {
	var position int64
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReplayPositions).Get([]byte(endpoint))
		if data == nil {
			position = 0
			return nil
		}
		position = int64(binary.BigEndian.Uint64(data))
		return nil
	})
	return position, err
}

// Certificate Authority operations

func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put([]byte("ca"), data)
	})
}

func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCA).Get([]byte("ca"))
		if raw == nil {
			return fmt.Errorf("CA not found")
		}
		data = make([]byte, len(raw))
		copy(data, raw)
		return nil
	})
	return data, err
}

// API user operations

func (s *BoltStore) SaveAPIUser(u *types.APIUser) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAPIUsers).Put([]byte(u.Name), data)
	})
}

func (s *BoltStore) GetAPIUser(name string) (*types.APIUser, error) {
	var u types.APIUser
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAPIUsers).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("api user not found: %s", name)
		}
		return json.Unmarshal(data, &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *BoltStore) ListAPIUsers() ([]*types.APIUser, error) {
	var out []*types.APIUser
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAPIUsers).ForEach(func(k, v []byte) error {
			var u types.APIUser
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			out = append(out, &u)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteAPIUser(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAPIUsers).Delete([]byte(name))
	})
}
