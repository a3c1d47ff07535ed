package cluster

import (
	"sync"
	"time"

	"github.com/cuemby/warren/pkg/storage"
)

// ReplayLog buffers recently sent messages so a zone endpoint that drops
// and reconnects within the buffer window can replay what it missed
// instead of triggering a full config/state resync, mirroring
// JsonRpcConnection's log-replay handshake step.
type ReplayLog struct {
	mu       sync.Mutex
	entries  []*Message
	capacity int
	store    storage.Store
}

// NewReplayLog creates a log holding up to capacity messages in memory,
// backed by store for durable per-endpoint replay position tracking.
func NewReplayLog(store storage.Store, capacity int) *ReplayLog {
	if capacity <= 0 {
		capacity = 10000
	}
	return &ReplayLog{capacity: capacity, store: store}
}

// Append stamps msg with the current time and appends it to the log,
// evicting the oldest entry once capacity is exceeded.
func (l *ReplayLog) Append(msg *Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg.Ts = time.Now().UnixNano()
	l.entries = append(l.entries, msg)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
}

// Since returns every buffered message with a timestamp strictly after
// position, in original order. It does not detect a gap: for a position
// older than the oldest buffered entry it returns everything still
// buffered, and CanReplay is what reports that the gap can no longer be
// replayed and a full resync is needed.
func (l *ReplayLog) Since(position int64) []*Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Message, 0, len(l.entries))
	for _, m := range l.entries {
		if m.Ts > position {
			out = append(out, m)
		}
	}
	return out
}

// CanReplay reports whether position still falls within the buffered
// window, i.e. replay (rather than a full resync) is possible.
func (l *ReplayLog) CanReplay(position int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return true
	}
	return position >= l.entries[0].Ts-1
}

// LatestPosition returns the timestamp of the most recently appended
// message, or 0 if the log is empty.
func (l *ReplayLog) LatestPosition() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Ts
}

// SavePosition persists endpoint's replay cursor so it survives a process
// restart.
func (l *ReplayLog) SavePosition(endpoint string, position int64) error {
	return l.store.SaveReplayPosition(endpoint, position)
}

// LoadPosition retrieves endpoint's last durably saved replay cursor.
func (l *ReplayLog) LoadPosition(endpoint string) (int64, error) {
	return l.store.GetReplayPosition(endpoint)
}
