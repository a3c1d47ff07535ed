package notification

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/internal/checkresult"
	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/internal/timer"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/types"
)

// DefaultTickInterval is how often the suppression ledger and reminder
// cadence are re-evaluated.
const DefaultTickInterval = 30 * time.Second

const tickTimerID = "notification-engine-tick"

// Sender delivers one notification send for a single (checkable,
// notification, type) tuple, e.g. by invoking a notification command.
type Sender interface {
	Send(n *types.Notification, c *types.Checkable, eventType types.NotificationType) error
}

// Engine drives the notification pipeline. It implements
// checkresult.EventSink so the result processor can feed it directly.
type Engine struct {
	reg    *registry.Registry
	wheel  *timer.Wheel
	sender Sender
	logger zerolog.Logger

	tickInterval time.Duration
}

var _ checkresult.EventSink = (*Engine)(nil)

// New builds an Engine. tickInterval <= 0 uses DefaultTickInterval.
func New(reg *registry.Registry, wheel *timer.Wheel, sender Sender, tickInterval time.Duration) *Engine {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Engine{
		reg:          reg,
		wheel:        wheel,
		sender:       sender,
		logger:       log.WithComponent("notification"),
		tickInterval: tickInterval,
	}
}

// Start arms the periodic ledger/reminder tick.
func (e *Engine) Start() {
	e.wheel.Schedule(tickTimerID, time.Now().Add(e.tickInterval), e.tickInterval, func(string) { e.tick() })
}

// Stop cancels the periodic tick.
func (e *Engine) Stop() {
	e.wheel.StopTimer(tickTimerID, true)
}

// OnNewCheckResult is a checkresult.EventSink method; the notification
// engine has nothing to do on every result, only on hard state changes
// and flapping edges.
func (e *Engine) OnNewCheckResult(string, *types.Checkable, *types.CheckResult) {}

// OnStateChange handles a hard problem or recovery transition.
func (e *Engine) OnStateChange(checkableID string, c *types.Checkable, recovery bool) {
	if recovery {
		e.handleEvent(checkableID, types.NotifyRecovery)
	} else {
		e.handleEvent(checkableID, types.NotifyProblem)
	}
}

// OnReachabilityChanged currently raises no notification of its own;
// unreachable checkables are still gated through the normal
// problem/recovery path by their own state; the child's check still
// executes regardless of reachability.
func (e *Engine) OnReachabilityChanged(string, bool) {}

// OnFlappingChange handles a flapping start/end edge.
func (e *Engine) OnFlappingChange(checkableID string, c *types.Checkable, started bool) {
	if started {
		e.handleEvent(checkableID, types.NotifyFlappingStart)
	} else {
		e.handleEvent(checkableID, types.NotifyFlappingEnd)
	}
}

// NotifyAcknowledgement raises an Acknowledgement-type event, invoked by
// the facade when a user acknowledges a problem.
func (e *Engine) NotifyAcknowledgement(checkableID string) {
	e.handleEvent(checkableID, types.NotifyAcknowledgement)
}

// NotifyDowntimeStart, NotifyDowntimeEnd and NotifyDowntimeRemoved raise
// their respective downtime lifecycle events.
func (e *Engine) NotifyDowntimeStart(checkableID string) {
	e.handleEvent(checkableID, types.NotifyDowntimeStart)
}

func (e *Engine) NotifyDowntimeEnd(checkableID string) {
	e.handleEvent(checkableID, types.NotifyDowntimeEnd)
}

func (e *Engine) NotifyDowntimeRemoved(checkableID string) {
	e.handleEvent(checkableID, types.NotifyDowntimeRemoved)
}

// SendCustom raises a Custom-type event, invoked by the facade's
// SendCustomNotification operation.
func (e *Engine) SendCustom(checkableID string) { e.handleEvent(checkableID, types.NotifyCustom) }

// handleEvent evaluates every notification bound to checkableID against
// eventType, sending, suppressing-into-the-ledger, or dropping each.
func (e *Engine) handleEvent(checkableID string, eventType types.NotificationType) {
	entry, ok := e.reg.GetCheckable(checkableID)
	if !ok {
		return
	}

	unlock := entry.Lock()
	c := entry.Checkable
	now := time.Now()

	if e.isGloballySuppressed(c, eventType, now) {
		reason := suppressionReason(c)
		unlock()
		metrics.NotificationsSuppressedTotal.WithLabelValues(reason).Inc()
		return
	}

	state, attempt, firstSoft := c.State, c.Attempt, c.FirstSoftStateAt
	notifications := e.reg.NotificationsFor(checkableID)
	unlock()

	for _, n := range notifications {
		e.evaluate(n, c, eventType, state, attempt, firstSoft, now)
	}
}

// isGloballySuppressed applies the downtime/acknowledgement/flapping
// gate that governs problem/recovery sends regardless of which
// notification object would otherwise fire. Must be
// called with c's lock held.
func (e *Engine) isGloballySuppressed(c *types.Checkable, eventType types.NotificationType, now time.Time) bool {
	if eventType != types.NotifyProblem && eventType != types.NotifyRecovery {
		return false
	}
	if c.Flapping {
		return true
	}
	return eventType == types.NotifyProblem && checkresult.IsSuppressed(c, now)
}

func suppressionReason(c *types.Checkable) string {
	if c.Flapping {
		return "flapping"
	}
	if c.Acknowledgement != nil {
		return "acknowledged"
	}
	return "downtime"
}

// evaluate applies the per-notification type/state/attempt/timeperiod
// gates to one (notification, event) pair.
func (e *Engine) evaluate(n *types.Notification, c *types.Checkable, eventType types.NotificationType, state types.ServiceState, attempt int, firstSoft time.Time, now time.Time) {
	if !n.TypeFilter.Has(eventType.Bit()) {
		return
	}
	if len(n.StateFilter) > 0 && !stateAllowed(n.StateFilter, state) {
		return
	}
	if n.BeginAttempt > 0 && attempt < n.BeginAttempt {
		return
	}
	if n.EndAttempt > 0 && attempt > n.EndAttempt {
		return
	}

	if !e.inTimePeriod(n.TimePeriod, now) {
		n.SuppressedNotifications.Set(eventType.Bit())
		metrics.NotificationsSuppressedTotal.WithLabelValues("timeperiod").Inc()
		return
	}

	e.send(n, c, eventType, now)
}

func stateAllowed(filter []types.ServiceState, state types.ServiceState) bool {
	for _, s := range filter {
		if s == state {
			return true
		}
	}
	return false
}

func (e *Engine) inTimePeriod(name string, now time.Time) bool {
	if name == "" {
		return true
	}
	tp, ok := e.reg.GetTimePeriod(name)
	if !ok {
		return true
	}
	return tp.IsInside(now)
}

func (e *Engine) send(n *types.Notification, c *types.Checkable, eventType types.NotificationType, now time.Time) {
	if e.sender != nil {
		if err := e.sender.Send(n, c, eventType); err != nil {
			e.logger.Warn().Err(err).Str("checkable", n.CheckableID).Str("notification", n.ID).Msg("notification send failed")
			return
		}
	}

	n.LastNotification = now
	if eventType == types.NotifyProblem {
		n.LastProblemNotification = now
		if n.ReminderInterval > 0 {
			n.NextNotification = now.Add(n.ReminderInterval)
			n.NoMoreNotifications = false
		} else {
			n.NoMoreNotifications = true
		}
	}
	n.SuppressedNotifications.Clear(eventType.Bit())

	metrics.NotificationsSentTotal.WithLabelValues(notificationTypeLabel(eventType)).Inc()
}

func notificationTypeLabel(t types.NotificationType) string {
	switch t {
	case types.NotifyProblem:
		return "problem"
	case types.NotifyRecovery:
		return "recovery"
	case types.NotifyAcknowledgement:
		return "acknowledgement"
	case types.NotifyDowntimeStart:
		return "downtime_start"
	case types.NotifyDowntimeEnd:
		return "downtime_end"
	case types.NotifyDowntimeRemoved:
		return "downtime_removed"
	case types.NotifyFlappingStart:
		return "flapping_start"
	case types.NotifyFlappingEnd:
		return "flapping_end"
	default:
		return "custom"
	}
}

// tick re-evaluates every notification's suppression ledger against its
// checkable's current state, and fires reminder-cadence resends for
// problems that are still active.
func (e *Engine) tick() {
	now := time.Now()
	for _, entry := range e.reg.ListCheckables() {
		unlock := entry.Lock()
		c := entry.Checkable
		id := c.ID()
		state := c.State
		globalSuppressed := c.Flapping || checkresult.IsSuppressed(c, now)
		unlock()

		for _, n := range e.reg.NotificationsFor(id) {
			e.tickLedger(n, c, state, now)
			if !globalSuppressed {
				e.tickReminder(n, c, state, now)
			}
		}
	}
}

func (e *Engine) tickLedger(n *types.Notification, c *types.Checkable, state types.ServiceState, now time.Time) {
	if n.SuppressedNotifications == 0 || !e.inTimePeriod(n.TimePeriod, now) {
		return
	}

	problemPending := n.SuppressedNotifications.Has(types.NotificationProblem)
	recoveryPending := n.SuppressedNotifications.Has(types.NotificationRecovery)

	// A problem and its matching recovery both went unsent while the
	// timeperiod was closed: the checkable already recovered, so neither
	// is worth sending once the gate reopens. Cancel both unconditionally
	// rather than evaluating each bit against the current state alone,
	// which would fire a stale recovery for a problem nobody was told
	// about in the first place.
	if problemPending && recoveryPending {
		n.SuppressedNotifications.Clear(types.NotificationProblem)
		n.SuppressedNotifications.Clear(types.NotificationRecovery)
		return
	}

	if problemPending {
		if state != types.StateOK {
			e.send(n, c, types.NotifyProblem, now)
		}
		n.SuppressedNotifications.Clear(types.NotificationProblem)
	}
	if recoveryPending {
		if state == types.StateOK {
			e.send(n, c, types.NotifyRecovery, now)
		}
		n.SuppressedNotifications.Clear(types.NotificationRecovery)
	}
}

func (e *Engine) tickReminder(n *types.Notification, c *types.Checkable, state types.ServiceState, now time.Time) {
	if state == types.StateOK || n.NoMoreNotifications || n.ReminderInterval <= 0 {
		return
	}
	if n.NextNotification.IsZero() || now.Before(n.NextNotification) {
		return
	}
	if !n.TypeFilter.Has(types.NotificationProblem) {
		return
	}
	if !e.inTimePeriod(n.TimePeriod, now) {
		return
	}
	e.send(n, c, types.NotifyProblem, now)
}
