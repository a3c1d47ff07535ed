package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/types"
)

// executeCheckMethod is the one-way RPC a zone's authority endpoint uses to
// hand a check off to the endpoint that owns its CommandEndpoint. The
// result is not awaited on this connection: it arrives later through the
// ordinary event::CheckResult inbound handler, the same asynchronous
// round-trip a one-way JsonRpcConnection method uses.
const executeCheckMethod = "event::ExecuteCheck"

// ConnRegistry tracks which live Conn currently speaks for each
// authenticated endpoint identity, so outbound dispatch can find a peer by
// name instead of needing its own dial/accept bookkeeping. A Conn whose
// handshake never authenticates (StateAnonymous) is never registered here.
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[string]*Conn)}
}

// Put registers conn under identity, replacing any previous connection for
// that identity (a reconnect supersedes the stale one).
func (r *ConnRegistry) Put(identity string, conn *Conn) {
	if identity == "" {
		return
	}
	r.mu.Lock()
	r.conns[identity] = conn
	r.mu.Unlock()
}

// Remove drops conn's registration if it is still the current connection
// for identity. A superseded entry (already replaced by a reconnect) is
// left alone.
func (r *ConnRegistry) Remove(identity string, conn *Conn) {
	if identity == "" {
		return
	}
	r.mu.Lock()
	if cur, ok := r.conns[identity]; ok && cur == conn {
		delete(r.conns, identity)
	}
	r.mu.Unlock()
}

// Get returns the live connection for identity, if any.
func (r *ConnRegistry) Get(identity string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[identity]
	return conn, ok
}

// Track registers conn under its authenticated identity and arranges for
// it to be removed again once the connection closes. Intended to be
// installed as a Conn's auth hook via SetAuthHook, so registration happens
// exactly once, right after a successful handshake.
func (r *ConnRegistry) Track(conn *Conn) {
	identity := conn.Identity()
	if identity == "" {
		return
	}
	r.Put(identity, conn)
	go func() {
		<-conn.Done()
		r.Remove(identity, conn)
	}()
}

// executeCheckParams is the payload of an event::ExecuteCheck message.
type executeCheckParams struct {
	CheckableID  string  `json:"checkable_id"`
	CheckCommand string  `json:"check_command"`
	Kind         string  `json:"kind"`
	Host         string  `json:"host"`
	Name         string  `json:"name"`
	TimeoutSec   float64 `json:"timeout_seconds"`
}

// Dispatcher implements internal/scheduler.RemoteDispatcher against
// ConnRegistry: it hands a check to whichever live connection is currently
// registered for the checkable's CommandEndpoint.
type Dispatcher struct {
	conns *ConnRegistry
}

// NewDispatcher builds a Dispatcher backed by conns.
func NewDispatcher(conns *ConnRegistry) *Dispatcher {
	return &Dispatcher{conns: conns}
}

// DispatchCheck sends c's check to endpoint over its live connection. An
// endpoint with no current connection is reported as an error so the
// scheduler can synthesize an Unknown result rather than silently
// dropping the checkable from the timer wheel.
func (d *Dispatcher) DispatchCheck(ctx context.Context, endpoint string, c *types.Checkable) error {
	conn, ok := d.conns.Get(endpoint)
	if !ok {
		return fmt.Errorf("cluster: endpoint %q is not connected", endpoint)
	}

	msg := &Message{JSONRPC: "2.0", Method: executeCheckMethod}
	if err := msg.EncodeParams(executeCheckParams{
		CheckableID:  c.ID(),
		CheckCommand: c.CheckCommand,
		Kind:         string(c.Kind),
		Host:         c.Host,
		Name:         c.Name,
		TimeoutSec:   c.CheckTimeout.Seconds(),
	}); err != nil {
		return fmt.Errorf("cluster: encode execute-check params: %w", err)
	}

	if err := conn.SendMessage(msg); err != nil {
		log.WithComponent("cluster.dispatcher").Warn().Err(err).
			Str("endpoint", endpoint).Str("checkable", c.ID()).
			Msg("failed to send execute-check")
		return fmt.Errorf("cluster: send execute-check to %q: %w", endpoint, err)
	}
	return nil
}
