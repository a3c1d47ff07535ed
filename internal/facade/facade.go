package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/warren/internal/checkresult"
	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/pkg/events"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/types"
)

// ResultProcessor is satisfied by internal/checkresult.Processor.
type ResultProcessor interface {
	ProcessResult(checkableID string, result *types.CheckResult)
}

// NotificationSender is satisfied by internal/notification.Engine's
// event-triggered public methods.
type NotificationSender interface {
	NotifyAcknowledgement(checkableID string)
	NotifyDowntimeStart(checkableID string)
	NotifyDowntimeRemoved(checkableID string)
	SendCustom(checkableID string)
}

// CheckScheduler is satisfied by internal/scheduler.Scheduler.
type CheckScheduler interface {
	ScheduleAt(id string, when time.Time)
}

// Event is one object-state change published to event stream subscribers.
type Event = events.Event

// Facade is the single synchronous entry point external callers use to
// drive the core.
type Facade struct {
	reg       *registry.Registry
	results   ResultProcessor
	notifier  NotificationSender
	scheduler CheckScheduler
	store     storage.Store

	broker *events.Broker
}

// New builds a Facade wired to the running core components.
func New(reg *registry.Registry, results ResultProcessor, notifier NotificationSender, scheduler CheckScheduler, store storage.Store) *Facade {
	broker := events.NewBroker()
	broker.Start()
	return &Facade{
		reg:       reg,
		results:   results,
		notifier:  notifier,
		scheduler: scheduler,
		store:     store,
		broker:    broker,
	}
}

// Close stops the facade's event broker. Safe to call once during
// shutdown; queued but undelivered events are dropped.
func (f *Facade) Close() {
	f.broker.Stop()
}

// ProcessCheckResult feeds a check result into the core result processor,
// exactly as the scheduler does for locally and remotely executed checks.
func (f *Facade) ProcessCheckResult(checkableID string, result *types.CheckResult) error {
	if _, ok := f.reg.GetCheckable(checkableID); !ok {
		return fmt.Errorf("facade: unknown checkable %q", checkableID)
	}
	f.results.ProcessResult(checkableID, result)
	f.publish(Event{Type: events.EventNewCheckResult, CheckableID: checkableID, Timestamp: time.Now()})
	return nil
}

// ScheduleDowntime adds a downtime to a checkable and persists it.
func (f *Facade) ScheduleDowntime(checkableID, author, comment string, start, end time.Time, fixed bool) (*types.Downtime, error) {
	entry, ok := f.reg.GetCheckable(checkableID)
	if !ok {
		return nil, fmt.Errorf("facade: unknown checkable %q", checkableID)
	}

	d := &types.Downtime{
		ID:          uuid.New().String(),
		CheckableID: checkableID,
		Author:      author,
		Comment:     comment,
		Start:       start,
		End:         end,
		Fixed:       fixed,
	}

	unlock := entry.Lock()
	entry.Checkable.Downtimes = append(entry.Checkable.Downtimes, d)
	unlock()

	if f.store != nil {
		if err := f.store.CreateDowntime(d); err != nil {
			return nil, fmt.Errorf("facade: persist downtime: %w", err)
		}
	}

	if f.notifier != nil {
		f.notifier.NotifyDowntimeStart(checkableID)
	}
	f.publish(Event{Type: events.EventDowntimeAdded, CheckableID: checkableID, Timestamp: time.Now(), Payload: map[string]any{"downtime_id": d.ID}})
	return d, nil
}

// RemoveDowntime removes a previously scheduled downtime before its
// natural expiry.
func (f *Facade) RemoveDowntime(checkableID, downtimeID string) error {
	entry, ok := f.reg.GetCheckable(checkableID)
	if !ok {
		return fmt.Errorf("facade: unknown checkable %q", checkableID)
	}

	unlock := entry.Lock()
	var remaining []*types.Downtime
	var found bool
	for _, d := range entry.Checkable.Downtimes {
		if d.ID == downtimeID {
			found = true
			continue
		}
		remaining = append(remaining, d)
	}
	entry.Checkable.Downtimes = remaining
	unlock()

	if !found {
		return fmt.Errorf("facade: downtime %q not found on %q", downtimeID, checkableID)
	}

	if f.store != nil {
		if err := f.store.DeleteDowntime(downtimeID); err != nil {
			return fmt.Errorf("facade: delete downtime: %w", err)
		}
	}
	if f.notifier != nil {
		f.notifier.NotifyDowntimeRemoved(checkableID)
	}
	f.publish(Event{Type: events.EventDowntimeRemoved, CheckableID: checkableID, Timestamp: time.Now()})
	return nil
}

// AcknowledgeProblem records that a human accepted the current problem.
func (f *Facade) AcknowledgeProblem(checkableID, author, comment string, sticky bool) error {
	entry, ok := f.reg.GetCheckable(checkableID)
	if !ok {
		return fmt.Errorf("facade: unknown checkable %q", checkableID)
	}

	unlock := entry.Lock()
	ack := &types.Acknowledgement{
		ID:          uuid.New().String(),
		CheckableID: checkableID,
		Author:      author,
		Comment:     comment,
		Sticky:      sticky,
		Severity:    entry.Checkable.State,
		CreatedAt:   time.Now(),
	}
	entry.Checkable.Acknowledgement = ack
	unlock()

	if f.store != nil {
		if err := f.store.SaveAcknowledgement(checkableID, ack); err != nil {
			return fmt.Errorf("facade: persist acknowledgement: %w", err)
		}
	}
	if f.notifier != nil {
		f.notifier.NotifyAcknowledgement(checkableID)
	}
	f.publish(Event{Type: events.EventAcknowledgementSet, CheckableID: checkableID, Timestamp: time.Now()})
	return nil
}

// Reschedule forces a checkable's next check to an explicit time.
func (f *Facade) Reschedule(checkableID string, when time.Time) error {
	if _, ok := f.reg.GetCheckable(checkableID); !ok {
		return fmt.Errorf("facade: unknown checkable %q", checkableID)
	}
	f.scheduler.ScheduleAt(checkableID, when)
	f.publish(Event{Type: events.EventRescheduled, CheckableID: checkableID, Timestamp: time.Now()})
	return nil
}

// SendCustomNotification triggers an out-of-band notification.
func (f *Facade) SendCustomNotification(checkableID string) error {
	if _, ok := f.reg.GetCheckable(checkableID); !ok {
		return fmt.Errorf("facade: unknown checkable %q", checkableID)
	}
	if f.notifier != nil {
		f.notifier.SendCustom(checkableID)
	}
	return nil
}

// GetCheckable returns a checkable's current in-memory snapshot.
func (f *Facade) GetCheckable(checkableID string) (*types.Checkable, bool) {
	entry, ok := f.reg.GetCheckable(checkableID)
	if !ok {
		return nil, false
	}
	unlock := entry.Lock()
	snapshot := *entry.Checkable
	unlock()
	return &snapshot, true
}

// ListCheckables returns a snapshot of every registered checkable.
func (f *Facade) ListCheckables() []*types.Checkable {
	entries := f.reg.ListCheckables()
	out := make([]*types.Checkable, 0, len(entries))
	for _, entry := range entries {
		unlock := entry.Lock()
		snapshot := *entry.Checkable
		unlock()
		out = append(out, &snapshot)
	}
	return out
}

// Subscribe registers a subscription to receive every published Event
// until ctx is canceled, the returned channel is closed on cancellation.
// Backed by pkg/events.Broker, the same publish/subscribe primitive the
// cluster side would use for endpoint connect/disconnect notices.
func (f *Facade) Subscribe(ctx context.Context) <-chan Event {
	sub := f.broker.Subscribe()
	out := make(chan Event, cap(sub))

	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				select {
				case out <- *ev:
				default:
				}
			case <-ctx.Done():
				f.broker.Unsubscribe(sub)
				return
			}
		}
	}()
	return out
}

func (f *Facade) publish(ev Event) {
	f.broker.Publish(&ev)
}

var _ checkresult.EventSink = (*eventSinkAdapter)(nil)

// eventSinkAdapter lets a Facade observe processor signals and translate
// them into published Events, without the facade itself implementing
// EventSink (which would couple it to the processor's locking contract).
type eventSinkAdapter struct {
	f *Facade
}

// NewEventSinkAdapter wraps f so it can be registered as the result
// processor's EventSink alongside the notification engine.
func NewEventSinkAdapter(f *Facade) checkresult.EventSink {
	return &eventSinkAdapter{f: f}
}

func (a *eventSinkAdapter) OnNewCheckResult(checkableID string, c *types.Checkable, result *types.CheckResult) {
}

func (a *eventSinkAdapter) OnStateChange(checkableID string, c *types.Checkable, recovery bool) {
	a.f.publish(Event{
		Type: events.EventStateChange, CheckableID: checkableID, Timestamp: time.Now(),
		Payload: map[string]any{"state": c.State.String(), "recovery": recovery},
	})
}

func (a *eventSinkAdapter) OnReachabilityChanged(checkableID string, reachable bool) {
	a.f.publish(Event{
		Type: events.EventReachabilityChange, CheckableID: checkableID, Timestamp: time.Now(),
		Payload: map[string]any{"reachable": reachable},
	})
}

func (a *eventSinkAdapter) OnFlappingChange(checkableID string, c *types.Checkable, started bool) {
	a.f.publish(Event{
		Type: events.EventFlappingChange, CheckableID: checkableID, Timestamp: time.Now(),
		Payload: map[string]any{"started": started},
	})
}
