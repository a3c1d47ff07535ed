package cluster

import (
	"time"

	"github.com/cuemby/warren/internal/timer"
	"github.com/cuemby/warren/pkg/log"
)

// DefaultHeartbeatInterval matches Icinga2's JsonRpcConnection heartbeat
// cadence: a heartbeat is sent this often, and a peer that has gone silent
// for DefaultLivenessTimeout is considered dead.
const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultLivenessTimeout   = 60 * time.Second
)

// HeartbeatMonitor sends periodic event::Heartbeat messages on a Conn and
// disconnects it once it's gone silent past its liveness timeout.
type HeartbeatMonitor struct {
	wheel    *timer.Wheel
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor builds a monitor driven by wheel's timer worker.
func NewHeartbeatMonitor(wheel *timer.Wheel, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if timeout <= 0 {
		timeout = DefaultLivenessTimeout
	}
	return &HeartbeatMonitor{wheel: wheel, interval: interval, timeout: timeout}
}

// Watch starts sending heartbeats on conn and checking its liveness on
// every tick, until conn disconnects.
func (m *HeartbeatMonitor) Watch(conn *Conn) {
	logger := log.WithComponent("cluster.heartbeat")

	m.wheel.Schedule(conn.ID(), time.Now().Add(m.interval), m.interval, func(id string) {
		select {
		case <-conn.Done():
			m.wheel.StopTimer(id, false)
			return
		default:
		}

		if time.Since(conn.LastSeen()) > m.timeout {
			logger.Warn().Str("identity", conn.Identity()).Dur("since_last_seen", time.Since(conn.LastSeen())).Msg("peer liveness timeout, disconnecting")
			conn.Disconnect()
			m.wheel.StopTimer(id, false)
			return
		}

		if err := conn.SendMessage(newHeartbeat()); err != nil {
			logger.Warn().Err(err).Str("identity", conn.Identity()).Msg("failed to send heartbeat")
		}
	})
}

// Stop cancels the heartbeat timer for conn.
func (m *HeartbeatMonitor) Stop(conn *Conn) {
	m.wheel.StopTimer(conn.ID(), true)
}
