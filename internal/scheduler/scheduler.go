package scheduler

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/internal/ioengine"
	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/internal/timer"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/types"
)

// CheckExecutor runs one check locally (a plugin invocation) and returns
// its result. Implementations are expected to honor ctx's deadline.
type CheckExecutor interface {
	Execute(ctx context.Context, c *types.Checkable) *types.CheckResult
}

// RemoteDispatcher hands a check off to its configured command endpoint
// over the cluster transport. The resulting CheckResult arrives later,
// asynchronously, through whatever handles event::CheckResult and calls
// ResultProcessor directly.
type RemoteDispatcher interface {
	DispatchCheck(ctx context.Context, endpoint string, c *types.Checkable) error
}

// ResultProcessor applies a completed CheckResult to its checkable's
// state machine (internal/checkresult).
type ResultProcessor interface {
	ProcessResult(checkableID string, result *types.CheckResult)
}

// Scheduler walks due checkables and dispatches their checks.
type Scheduler struct {
	reg      *registry.Registry
	wheel    *timer.Wheel
	engine   *ioengine.Engine
	executor CheckExecutor
	remote   RemoteDispatcher
	results  ResultProcessor
	logger   zerolog.Logger

	// endpointName is this process's own cluster identity, used to decide
	// HA ownership for HAModeBalanced checkables. Empty means "always own
	// everything" (single-node / non-clustered operation).
	endpointName string
}

// New builds a Scheduler. executor and remote may be nil until their
// owning components are wired; a nil remote (or one that fails to reach
// the endpoint) causes checks with a CommandEndpoint set to produce a
// synthesized Unknown result and reschedule, rather than being silently
// dropped from the timer wheel.
func New(reg *registry.Registry, wheel *timer.Wheel, engine *ioengine.Engine, executor CheckExecutor, remote RemoteDispatcher, results ResultProcessor, endpointName string) *Scheduler {
	return &Scheduler{
		reg:          reg,
		wheel:        wheel,
		engine:       engine,
		executor:     executor,
		remote:       remote,
		results:      results,
		logger:       log.WithComponent("scheduler"),
		endpointName: endpointName,
	}
}

// Start schedules every currently registered checkable with active checks
// enabled. Checkables added afterward are not picked up automatically;
// each must be scheduled individually via ScheduleOne.
func (s *Scheduler) Start() {
	for _, entry := range s.reg.ListCheckables() {
		s.ScheduleOne(entry)
	}
}

// ScheduleOne arms the timer for one checkable's next due check.
func (s *Scheduler) ScheduleOne(entry *registry.CheckableEntry) {
	unlock := entry.Lock()
	c := entry.Checkable
	next := c.NextCheck
	id := c.ID()
	enabled := c.ActiveChecksEnabled
	unlock()

	if !enabled {
		return
	}
	if next.IsZero() {
		next = time.Now()
	}
	s.wheel.Schedule(id, next, 0, func(id string) { s.dispatch(id) })
}

// Reschedule computes the next check time (soft-state retry interval vs
// the normal check interval) and re-arms the timer.
func (s *Scheduler) Reschedule(id string) {
	entry, ok := s.reg.GetCheckable(id)
	if !ok {
		return
	}

	unlock := entry.Lock()
	c := entry.Checkable
	if !c.ActiveChecksEnabled {
		unlock()
		return
	}
	interval := c.CheckInterval
	if c.StateType == types.StateTypeSoft {
		interval = c.RetryInterval
	}
	if interval <= 0 {
		interval = time.Minute
	}
	next := time.Now().Add(interval)
	c.NextCheck = next
	unlock()

	s.wheel.Schedule(id, next, 0, func(id string) { s.dispatch(id) })
}

// ScheduleAt forces a checkable's next check to an explicit time,
// overriding whatever the soft/hard state machine would otherwise pick.
// Used by the facade's Reschedule operation.
func (s *Scheduler) ScheduleAt(id string, when time.Time) {
	entry, ok := s.reg.GetCheckable(id)
	if !ok {
		return
	}

	unlock := entry.Lock()
	c := entry.Checkable
	c.NextCheck = when
	unlock()

	s.wheel.Schedule(id, when, 0, func(id string) { s.dispatch(id) })
}

func (s *Scheduler) dispatch(id string) {
	entry, ok := s.reg.GetCheckable(id)
	if !ok {
		return
	}

	unlock := entry.Lock()
	c := entry.Checkable

	if !c.ActiveChecksEnabled || c.InFlight {
		unlock()
		return
	}
	if c.HAMode == types.HAModeBalanced && !s.owns(c) {
		unlock()
		return
	}
	if !s.inCheckPeriod(c) {
		c.NextCheck = time.Now().Add(c.CheckInterval)
		unlock()
		s.wheel.Schedule(id, c.NextCheck, 0, func(id string) { s.dispatch(id) })
		return
	}

	c.InFlight = true
	cmdEndpoint := c.CommandEndpoint
	due := c.NextCheck
	unlock()

	if !due.IsZero() {
		metrics.SchedulingLatency.Observe(time.Since(due).Seconds())
	}
	metrics.CheckablesActive.Inc()

	s.engine.Spawn("check:"+id, func(ctx context.Context) {
		defer metrics.CheckablesActive.Dec()

		if cmdEndpoint != "" {
			metrics.ChecksExecutedTotal.WithLabelValues("remote").Inc()
			if s.remote == nil || s.dispatchRemote(ctx, id, cmdEndpoint, c) != nil {
				s.clearInFlight(entry)
				if s.results != nil {
					s.results.ProcessResult(id, unreachableRemoteResult())
				}
				s.Reschedule(id)
				return
			}
			// The remote peer's result arrives asynchronously via the
			// cluster's event::CheckResult handler, which clears InFlight,
			// calls ResultProcessor and reschedules directly.
			return
		}

		metrics.ChecksExecutedTotal.WithLabelValues("local").Inc()
		result := s.executor.Execute(ctx, c)

		s.clearInFlight(entry)
		if result != nil && s.results != nil {
			s.results.ProcessResult(id, result)
		}
		s.Reschedule(id)
	})
}

func (s *Scheduler) clearInFlight(entry *registry.CheckableEntry) {
	unlock := entry.Lock()
	entry.Checkable.InFlight = false
	unlock()
}

// dispatchRemote hands c off to its command endpoint and logs a failure.
// It calls s.remote unconditionally, so callers check that s.remote is
// non-nil first.
func (s *Scheduler) dispatchRemote(ctx context.Context, id, cmdEndpoint string, c *types.Checkable) error {
	if err := s.remote.DispatchCheck(ctx, cmdEndpoint, c); err != nil {
		s.logger.Warn().Err(err).Str("checkable", id).Str("endpoint", cmdEndpoint).Msg("remote check dispatch failed")
		return err
	}
	return nil
}

// unreachableRemoteResult synthesizes the Unknown result a remote check
// produces when it cannot be handed off at all: no dispatcher wired, or
// its configured command endpoint has no live connection. Matches
// Icinga2's own wording for this condition.
func unreachableRemoteResult() *types.CheckResult {
	now := time.Now()
	return &types.CheckResult{
		ScheduledStart: now,
		ScheduledEnd:   now,
		ExecutionStart: now,
		ExecutionEnd:   now,
		State:          types.StateUnknown,
		Output:         "Remote Icinga instance is not connected",
	}
}

// owns reports whether this endpoint is the deterministic owner of c's
// check within its zone, for HAModeBalanced checkables. Ownership is a
// hash of the checkable ID modulo the zone's endpoint count, not a Raft
// leader election: every endpoint reaches the same answer independently
// without needing a consensus round.
func (s *Scheduler) owns(c *types.Checkable) bool {
	if s.endpointName == "" {
		return true
	}
	zone, ok := s.reg.GetZone(c.Zone)
	if !ok || len(zone.Endpoints) == 0 {
		return true
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(c.ID()))
	idx := int(h.Sum32() % uint32(len(zone.Endpoints)))
	return zone.Endpoints[idx] == s.endpointName
}

func (s *Scheduler) inCheckPeriod(c *types.Checkable) bool {
	if c.CheckPeriod == "" {
		return true
	}
	tp, ok := s.reg.GetTimePeriod(c.CheckPeriod)
	if !ok {
		return true
	}
	return tp.IsInside(time.Now())
}
