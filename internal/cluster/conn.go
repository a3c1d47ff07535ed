package cluster

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/security"
)

// State is a connection's position in its Connecting -> Handshaking ->
// Authenticated|Anonymous -> Running -> {Closing, Failed} lifecycle.
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateAuthenticated
	StateAnonymous
	StateRunning
	StateClosing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Conn wraps one netstring-framed JSON-RPC connection to a cluster peer or
// facade client. Identity comes solely from the verified TLS client
// certificate's CommonName, never from anything the peer claims in-band.
type Conn struct {
	id     string
	netConn net.Conn
	writer  *bufio.Writer
	reader  *bufio.Reader
	router  *Router
	ca      *security.CertAuthority

	writeMu sync.Mutex

	mu       sync.RWMutex
	state    State
	identity string
	zone     string
	lastSeen time.Time

	livenessTimeout time.Duration

	authHook func(*Conn)

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wires netConn (expected to already be a *tls.Conn on real
// deployments; tests may pass a net.Pipe half) to router for inbound
// dispatch, with ca used to verify the peer's client certificate during
// the handshake.
func NewConn(netConn net.Conn, router *Router, ca *security.CertAuthority, livenessTimeout time.Duration) *Conn {
	return &Conn{
		id:              uuid.NewString(),
		netConn:         netConn,
		writer:          bufio.NewWriter(netConn),
		reader:          bufio.NewReader(netConn),
		router:          router,
		ca:              ca,
		state:           StateConnecting,
		livenessTimeout: livenessTimeout,
		closed:          make(chan struct{}),
	}
}

// ID is a process-local identifier for this connection, used to key
// heartbeat timers in internal/timer.
func (c *Conn) ID() string { return c.id }

// SetAuthHook registers fn to run once, right after a successful handshake
// and before Run's read loop starts. Used to register an authenticated
// connection into a ConnRegistry for outbound dispatch.
func (c *Conn) SetAuthHook(fn func(*Conn)) {
	c.authHook = fn
}

func (c *Conn) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateAuthenticated || c.state == StateRunning && c.identity != ""
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Conn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen reports when the last message (including a heartbeat) arrived.
func (c *Conn) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// Handshake verifies the peer's client certificate (when the underlying
// connection is TLS) and maps its CommonName to a cluster identity. A
// connection whose certificate doesn't verify, or that presents none, is
// left anonymous: callers decide whether an anonymous peer may proceed
// (e.g. a facade client authenticating by password instead).
func (c *Conn) Handshake() error {
	c.setState(StateHandshaking)

	tlsConn, ok := c.netConn.(*tls.Conn)
	if !ok {
		c.setState(StateAnonymous)
		return nil
	}

	if err := tlsConn.Handshake(); err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("tls handshake: %w", err)
	}

	peerCerts := tlsConn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		c.setState(StateAnonymous)
		return nil
	}

	cert := peerCerts[0]
	if c.ca != nil {
		if err := c.ca.VerifyCertificate(cert); err != nil {
			c.setState(StateAnonymous)
			return nil
		}
	}

	identity := security.EndpointNameFromCert(cert)
	if identity == "" {
		c.setState(StateAnonymous)
		return nil
	}

	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()
	c.setState(StateAuthenticated)
	return nil
}

// SendMessage frames and writes msg. Safe for concurrent use.
func (c *Conn) SendMessage(msg *Message) error {
	if msg.JSONRPC == "" {
		msg.JSONRPC = "2.0"
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := WriteFrame(c.writer, data); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *Conn) sendReply(id string, result any, errStr string) {
	reply := &Message{JSONRPC: "2.0", ID: id}
	if errStr != "" {
		reply.Error = errStr
	} else if result != nil {
		data, err := json.Marshal(result)
		if err == nil {
			reply.Result = data
		} else {
			reply.Error = err.Error()
		}
	}
	if err := c.SendMessage(reply); err != nil {
		log.WithComponent("cluster.conn").Warn().Err(err).Str("id", id).Msg("failed to send reply")
	}
}

// Run performs the handshake, then reads frames until the connection
// closes or ctx is canceled, dispatching each decoded message to router.
func (c *Conn) Run(ctx context.Context) error {
	if err := c.Handshake(); err != nil {
		return err
	}
	c.setState(StateRunning)
	c.touch()

	if c.authHook != nil {
		c.authHook(c)
	}

	origin := Origin{Zone: c.zone, Conn: c}

	go func() {
		<-ctx.Done()
		c.Disconnect()
	}()

	for {
		payload, err := ReadFrame(c.reader)
		if err != nil {
			c.setState(StateClosing)
			return err
		}
		c.touch()

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.WithComponent("cluster.conn").Warn().Err(err).Msg("malformed frame, dropping connection")
			c.setState(StateFailed)
			return err
		}

		origin.Identity = c.Identity()
		if msg.Method == heartbeatMethod {
			continue
		}
		c.router.Dispatch(ctx, origin, &msg)
	}
}

// Disconnect closes the underlying connection exactly once.
func (c *Conn) Disconnect() {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		close(c.closed)
		_ = c.netConn.Close()
	})
}

// Done reports when the connection has been disconnected.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}
