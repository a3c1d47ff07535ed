package checkresult

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/types"
)

const (
	flapHistorySize   = 20
	flapThresholdHigh = 30.0
	flapThresholdLow  = 25.0
)

// EventSink receives the signals the result processor raises for each
// processed result. They are raised after the checkable's lock has been
// released, so implementations (the notification engine, the facade's
// event stream) may look the checkable up and lock it again; they must
// not block.
type EventSink interface {
	OnNewCheckResult(checkableID string, c *types.Checkable, result *types.CheckResult)
	OnStateChange(checkableID string, c *types.Checkable, recovery bool)
	OnReachabilityChanged(checkableID string, reachable bool)
	OnFlappingChange(checkableID string, c *types.Checkable, started bool)
}

// PerfSink receives every processed result, regardless of whether it
// produced a state change, for telemetry export.
type PerfSink interface {
	Write(checkableID string, c *types.Checkable, result *types.CheckResult)
}

// Processor applies CheckResults to their checkable's state machine.
type Processor struct {
	reg    *registry.Registry
	events EventSink
	logger zerolog.Logger

	sinks []PerfSink
}

// New builds a Processor. events may be nil during early bring-up, in
// which case signals are simply not raised.
func New(reg *registry.Registry, events EventSink) *Processor {
	return &Processor{
		reg:    reg,
		events: events,
		logger: log.WithComponent("checkresult"),
	}
}

// AddPerfWriter registers a writer to receive every processed result.
func (p *Processor) AddPerfWriter(w PerfSink) {
	p.sinks = append(p.sinks, w)
}

// ProcessResult applies result to checkableID's checkable, exactly once,
// under its per-object lock.
func (p *Processor) ProcessResult(checkableID string, result *types.CheckResult) {
	entry, ok := p.reg.GetCheckable(checkableID)
	if !ok {
		p.logger.Debug().Str("checkable", checkableID).Msg("result for unknown checkable dropped")
		return
	}

	unlock := entry.Lock()
	c := entry.Checkable

	oldState := c.State
	hardTransition := false
	isRecovery := false

	if result.State == oldState {
		if c.StateType == types.StateTypeSoft {
			if c.Attempt < c.MaxCheckAttempts {
				c.Attempt++
			}
			if c.Attempt >= c.MaxCheckAttempts {
				c.StateType = types.StateTypeHard
				hardTransition = true
			}
		}
	} else {
		if result.State == types.StateOK {
			c.State = types.StateOK
			c.StateType = types.StateTypeHard
			c.Attempt = 1
			hardTransition = true
			isRecovery = true
		} else {
			c.State = result.State
			c.Attempt = 1
			c.FirstSoftStateAt = time.Now()
			if c.MaxCheckAttempts <= 1 {
				c.StateType = types.StateTypeHard
				hardTransition = true
			} else {
				c.StateType = types.StateTypeSoft
			}
		}

		if c.Acknowledgement != nil && (isRecovery || !c.Acknowledgement.Sticky) {
			c.Acknowledgement = nil
		}
	}

	if hardTransition {
		c.LastHardState = c.State
		metrics.StateChangesTotal.WithLabelValues(c.State.String()).Inc()
	}

	flapEdge := p.recordFlapHistory(c, result.State != oldState)

	c.LastCheckResult = result

	sinks := p.sinks
	events := p.events
	reachable := p.isReachable(c)
	unlock()

	if events != nil {
		events.OnNewCheckResult(checkableID, c, result)
		if hardTransition {
			events.OnStateChange(checkableID, c, isRecovery)
		}
		if flapEdge != 0 {
			events.OnFlappingChange(checkableID, c, flapEdge > 0)
		}
		events.OnReachabilityChanged(checkableID, reachable)
	}

	for _, sink := range sinks {
		sink.Write(checkableID, c, result)
	}

	p.propagateReachability(checkableID)
}

// recordFlapHistory appends one transition observation and recomputes
// the weighted flap score, raising/clearing the flapping flag when it
// crosses the high/low thresholds. Must be called with the checkable's
// lock held.
// recordFlapHistory returns +1 if flapping just started, -1 if it just
// ended, 0 otherwise.
func (p *Processor) recordFlapHistory(c *types.Checkable, transitioned bool) int {
	if !c.FlappingEnabled {
		return 0
	}

	c.FlapHistory = append(c.FlapHistory, transitioned)
	if len(c.FlapHistory) > flapHistorySize {
		c.FlapHistory = c.FlapHistory[len(c.FlapHistory)-flapHistorySize:]
	}

	n := len(c.FlapHistory)
	if n == 0 {
		return 0
	}

	var weighted, totalWeight float64
	for i, changed := range c.FlapHistory {
		// Linear weighting: the most recent observation counts roughly
		// twice as much as the oldest one in the window.
		weight := 1.0 + float64(i)/float64(n)
		totalWeight += weight
		if changed {
			weighted += weight
		}
	}

	c.FlappingScore = (weighted / totalWeight) * 100

	switch {
	case !c.Flapping && c.FlappingScore >= flapThresholdHigh:
		c.Flapping = true
		metrics.FlappingTransitionsTotal.WithLabelValues("start").Inc()
		return 1
	case c.Flapping && c.FlappingScore <= flapThresholdLow:
		c.Flapping = false
		metrics.FlappingTransitionsTotal.WithLabelValues("end").Inc()
		return -1
	}
	return 0
}

// isReachable reports whether every parent dependency's current hard
// state satisfies its filter. Must be called with c's lock held.
func (p *Processor) isReachable(c *types.Checkable) bool {
	for _, dep := range c.ParentDependencies {
		parentEntry, ok := p.reg.GetCheckable(dep.ParentID)
		if !ok {
			continue
		}
		unlock := parentEntry.Lock()
		parentState := parentEntry.Checkable.State
		unlock()

		satisfied := false
		for _, allowed := range dep.StateFilter {
			if allowed == parentState {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// propagateReachability recomputes reachability for every dependent of
// checkableID and notifies the event sink of any that flips.
func (p *Processor) propagateReachability(checkableID string) {
	if p.events == nil {
		return
	}
	for _, depID := range p.reg.DependentsOf(checkableID) {
		depEntry, ok := p.reg.GetCheckable(depID)
		if !ok {
			continue
		}
		unlock := depEntry.Lock()
		reachable := p.isReachable(depEntry.Checkable)
		unlock()
		p.events.OnReachabilityChanged(depID, reachable)
	}
}

// IsSuppressed reports whether problem notifications should currently be
// suppressed for c by an active downtime or a covering acknowledgement.
// Exported for the notification engine's gating. Must
// be called with c's lock held.
func IsSuppressed(c *types.Checkable, now time.Time) bool {
	for _, d := range c.Downtimes {
		if d.Active(now) {
			return true
		}
	}
	return c.Acknowledgement.Suppresses(c.State)
}
