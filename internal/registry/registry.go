package registry

import (
	"fmt"
	"sync"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/types"
)

// LifecycleState is the activation state of a registered object.
type LifecycleState int

const (
	StateCreated LifecycleState = iota
	StateStarted
	StateActive
	StatePaused
	StateStopped
)

// CheckableEntry wraps a Checkable with the per-object lock the result
// processor, scheduler and notification engine all serialize through.
type CheckableEntry struct {
	mu sync.Mutex

	Checkable *types.Checkable
	State     LifecycleState
}

// Lock acquires the per-object lock and returns an unlock func, so callers
// can `defer entry.Lock()()`.
func (e *CheckableEntry) Lock() func() {
	e.mu.Lock()
	return e.mu.Unlock
}

// Registry is the process-wide live object graph.
type Registry struct {
	mu sync.RWMutex

	checkables map[string]*CheckableEntry

	notifications          map[string]*types.Notification
	notificationsByCheckable map[string][]string

	dependents map[string][]string // parentID -> child checkable IDs

	timeperiods map[string]*types.TimePeriod
	endpoints   map[string]*types.Endpoint
	zones       map[string]*types.Zone

	onAllConfigLoaded []func()
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		checkables:               make(map[string]*CheckableEntry),
		notifications:            make(map[string]*types.Notification),
		notificationsByCheckable: make(map[string][]string),
		dependents:               make(map[string][]string),
		timeperiods:              make(map[string]*types.TimePeriod),
		endpoints:                make(map[string]*types.Endpoint),
		zones:                    make(map[string]*types.Zone),
	}
}

// AddCheckable registers a new checkable under the registry lock in
// StateStarted and links it to its parent dependencies. No per-object
// config-loaded callback is fired (the caller is the config collaborator
// stand-in; see internal/configseed).
func (r *Registry) AddCheckable(c *types.Checkable) (*CheckableEntry, error) {
	id := c.ID()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.checkables[id]; exists {
		return nil, fmt.Errorf("checkable %q already registered", id)
	}

	entry := &CheckableEntry{Checkable: c, State: StateStarted}
	r.checkables[id] = entry

	for _, dep := range c.ParentDependencies {
		r.dependents[dep.ParentID] = append(r.dependents[dep.ParentID], id)
	}

	log.WithComponent("registry").Debug().Str("checkable", id).Msg("checkable registered")
	return entry, nil
}

// GetCheckable returns the entry for id, or (nil, false).
func (r *Registry) GetCheckable(id string) (*CheckableEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.checkables[id]
	return e, ok
}

// ListCheckables returns a snapshot slice of all entries. The snapshot
// itself is safe to range over without the registry lock; each entry's
// own fields still require entry.Lock().
func (r *Registry) ListCheckables() []*CheckableEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CheckableEntry, 0, len(r.checkables))
	for _, e := range r.checkables {
		out = append(out, e)
	}
	return out
}

// RemoveCheckable deletes a checkable and, in the same locked pass,
// removes every back-reference to it (dependents, notifications).
func (r *Registry) RemoveCheckable(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.checkables, id)
	delete(r.dependents, id)

	for _, notifID := range r.notificationsByCheckable[id] {
		delete(r.notifications, notifID)
	}
	delete(r.notificationsByCheckable, id)

	for parent, children := range r.dependents {
		filtered := children[:0]
		for _, child := range children {
			if child != id {
				filtered = append(filtered, child)
			}
		}
		r.dependents[parent] = filtered
	}
}

// DependentsOf returns the checkable IDs whose reachability depends on
// parentID.
func (r *Registry) DependentsOf(parentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.dependents[parentID]))
	copy(out, r.dependents[parentID])
	return out
}

// AddNotification registers a Notification and indexes it by its
// checkable, maintaining the checkable → notifications back-reference.
func (r *Registry) AddNotification(n *types.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.checkables[n.CheckableID]; !exists {
		return fmt.Errorf("notification %q references unknown checkable %q", n.ID, n.CheckableID)
	}
	r.notifications[n.ID] = n
	r.notificationsByCheckable[n.CheckableID] = append(r.notificationsByCheckable[n.CheckableID], n.ID)
	return nil
}

// NotificationsFor returns the notifications bound to a checkable.
func (r *Registry) NotificationsFor(checkableID string) []*types.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.notificationsByCheckable[checkableID]
	out := make([]*types.Notification, 0, len(ids))
	for _, id := range ids {
		if n, ok := r.notifications[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// AddTimePeriod registers a TimePeriod by name.
func (r *Registry) AddTimePeriod(p *types.TimePeriod) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeperiods[p.Name] = p
}

// GetTimePeriod looks up a TimePeriod by name.
func (r *Registry) GetTimePeriod(name string) (*types.TimePeriod, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.timeperiods[name]
	return p, ok
}

// AddZone registers a Zone by name.
func (r *Registry) AddZone(z *types.Zone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones[z.Name] = z
}

// GetZone looks up a Zone by name.
func (r *Registry) GetZone(name string) (*types.Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[name]
	return z, ok
}

// AddEndpoint registers an Endpoint by name.
func (r *Registry) AddEndpoint(e *types.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[e.Name] = e
}

// GetEndpoint looks up an Endpoint by name.
func (r *Registry) GetEndpoint(name string) (*types.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[name]
	return e, ok
}

// ListEndpoints returns a snapshot of all registered endpoints.
func (r *Registry) ListEndpoints() []*types.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		out = append(out, e)
	}
	return out
}

// OnAllConfigLoaded registers a callback fired once by FireAllConfigLoaded,
// mirroring the config collaborator's OnAllConfigLoaded signal.
func (r *Registry) OnAllConfigLoaded(cb func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAllConfigLoaded = append(r.onAllConfigLoaded, cb)
}

// FireAllConfigLoaded invokes every registered OnAllConfigLoaded callback.
func (r *Registry) FireAllConfigLoaded() {
	r.mu.RLock()
	callbacks := make([]func(), len(r.onAllConfigLoaded))
	copy(callbacks, r.onAllConfigLoaded)
	r.mu.RUnlock()

	for _, cb := range callbacks {
		cb()
	}
}
