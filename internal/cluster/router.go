package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/warren/pkg/log"
)

// Origin identifies the connection a message arrived on, passed to every
// handler so it can address the replying peer without a global registry
// lookup, mirroring MessageOrigin's FromClient/FromZone pair.
type Origin struct {
	Identity string // authenticated endpoint name, or "" if anonymous
	Zone     string
	Conn     *Conn
}

// HandlerFunc processes one dispatched method call. The returned value is
// marshaled into the reply's Result when the inbound message carried an ID.
type HandlerFunc func(ctx context.Context, origin Origin, params []byte) (any, error)

// Router maps a "namespace::name" method string to its handler, the same
// registration model as REGISTER_APIFUNCTION.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register binds method to fn. Re-registering the same method overwrites
// the previous handler, matching REGISTER_APIFUNCTION's last-wins rule
// under repeated static initialization.
func (r *Router) Register(method string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = fn
}

// Dispatch invokes the handler registered for msg.Method. If msg carries
// an ID, the handler's result (or error) is sent back as a reply.
func (r *Router) Dispatch(ctx context.Context, origin Origin, msg *Message) {
	logger := log.WithComponent("cluster.router")

	r.mu.RLock()
	fn, ok := r.handlers[msg.Method]
	r.mu.RUnlock()

	if !ok {
		logger.Warn().Str("method", msg.Method).Msg("call to non-existent function")
		if msg.ID != "" && origin.Conn != nil {
			origin.Conn.sendReply(msg.ID, nil, fmt.Sprintf("no such function: %s", msg.Method))
		}
		return
	}

	result, err := fn(ctx, origin, msg.Params)

	logger.Debug().Str("method", msg.Method).Str("identity", origin.Identity).Msg("processed message")

	if msg.ID == "" || origin.Conn == nil {
		return
	}
	if err != nil {
		origin.Conn.sendReply(msg.ID, nil, err.Error())
		return
	}
	origin.Conn.sendReply(msg.ID, result, "")
}
