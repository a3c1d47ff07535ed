package reconciler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/types"
)

// DowntimeEndNotifier is satisfied by internal/notification.Engine.
type DowntimeEndNotifier interface {
	NotifyDowntimeEnd(checkableID string)
}

const defaultInterval = 10 * time.Second

// Reconciler periodically sweeps every registered checkable for fixed
// downtimes whose end time has passed, removing them and firing one
// DowntimeEnd notification for each checkable that had any expire in
// that sweep.
type Reconciler struct {
	reg      *registry.Registry
	notifier DowntimeEndNotifier
	logger   zerolog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// New builds a Reconciler sweeping at defaultInterval. notifier may be
// nil, in which case downtimes still expire but no notification is sent.
func New(reg *registry.Registry, notifier DowntimeEndNotifier) *Reconciler {
	return NewWithInterval(reg, notifier, defaultInterval)
}

// NewWithInterval builds a Reconciler with an explicit sweep interval;
// interval <= 0 falls back to defaultInterval.
func NewWithInterval(reg *registry.Registry, notifier DowntimeEndNotifier, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Reconciler{
		reg:      reg,
		notifier: notifier,
		logger:   log.WithComponent("reconciler"),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop in its own goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop ends the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

func (r *Reconciler) sweep() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	now := time.Now()
	for _, entry := range r.reg.ListCheckables() {
		r.expireDowntimes(entry, now)
	}
}

func (r *Reconciler) expireDowntimes(entry *registry.CheckableEntry, now time.Time) {
	unlock := entry.Lock()
	c := entry.Checkable

	var remaining []*types.Downtime
	var expired int
	for _, d := range c.Downtimes {
		if d.Fixed && now.After(d.End) {
			expired++
			continue
		}
		remaining = append(remaining, d)
	}
	if expired > 0 {
		c.Downtimes = remaining
	}
	checkableID := c.ID()
	unlock()

	if expired == 0 {
		return
	}

	metrics.DowntimesExpiredTotal.Add(float64(expired))
	r.logger.Info().Str("checkable", checkableID).Int("count", expired).Msg("downtime expired")
	if r.notifier != nil {
		r.notifier.NotifyDowntimeEnd(checkableID)
	}
}
