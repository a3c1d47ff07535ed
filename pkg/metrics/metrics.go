package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry / scheduling
	CheckablesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "icinga_checkables_total",
			Help: "Total number of checkables by kind and state type",
		},
		[]string{"kind", "state_type"},
	)

	CheckablesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "icinga_checkables_in_flight",
			Help: "Number of checks currently executing",
		},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "icinga_scheduling_latency_seconds",
			Help:    "Time from a checkable becoming due to dispatch",
			Buckets: prometheus.DefBuckets,
		},
	)

	ChecksExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icinga_checks_executed_total",
			Help: "Total checks executed by execution mode",
		},
		[]string{"mode"}, // local, remote
	)

	ChecksTimedOutTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "icinga_checks_timed_out_total",
			Help: "Total checks that synthesized a timeout result",
		},
	)

	// Result processing
	ResultProcessingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "icinga_result_processing_latency_seconds",
			Help:    "Time spent applying a check result under the per-object lock",
			Buckets: prometheus.DefBuckets,
		},
	)

	StateChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icinga_state_changes_total",
			Help: "Total hard state transitions by resulting state",
		},
		[]string{"state"},
	)

	FlappingTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icinga_flapping_transitions_total",
			Help: "Total flapping start/end transitions",
		},
		[]string{"transition"}, // start, end
	)

	// Notifications
	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icinga_notifications_sent_total",
			Help: "Total notifications sent by type",
		},
		[]string{"type"},
	)

	NotificationsSuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icinga_notifications_suppressed_total",
			Help: "Total notifications suppressed by reason",
		},
		[]string{"reason"}, // timeperiod, downtime, acknowledged, flapping
	)

	// Cluster transport
	ClusterConnectionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "icinga_cluster_connections",
			Help: "Active cluster connections by state",
		},
		[]string{"state"}, // handshaking, authenticated, anonymous, running
	)

	ClusterFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icinga_cluster_frames_total",
			Help: "Total cluster wire frames by direction and method",
		},
		[]string{"direction", "method"},
	)

	ClusterReplayBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "icinga_cluster_replay_backlog_messages",
			Help: "Messages pending replay to a given endpoint",
		},
		[]string{"endpoint"},
	)

	// Perfdata writers
	PerfdataQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "icinga_perfdata_queue_depth",
			Help: "Current queued tasks per perfdata writer",
		},
		[]string{"writer"},
	)

	PerfdataDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icinga_perfdata_dropped_total",
			Help: "Total records dropped because a writer queue was full",
		},
		[]string{"writer"},
	)

	PerfdataFlushLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "icinga_perfdata_flush_latency_seconds",
			Help:    "Time to flush a batch to the sink",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"writer"},
	)

	PerfdataReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icinga_perfdata_reconnects_total",
			Help: "Total reconnect attempts per writer",
		},
		[]string{"writer"},
	)

	// Reconciliation sweep
	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "icinga_reconciliation_cycles_total",
			Help: "Total periodic reconciliation sweeps run",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "icinga_reconciliation_duration_seconds",
			Help:    "Time spent in one reconciliation sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	DowntimesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "icinga_downtimes_expired_total",
			Help: "Total downtimes removed because their end time passed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CheckablesTotal,
		CheckablesActive,
		SchedulingLatency,
		ChecksExecutedTotal,
		ChecksTimedOutTotal,
		ResultProcessingLatency,
		StateChangesTotal,
		FlappingTransitionsTotal,
		NotificationsSentTotal,
		NotificationsSuppressedTotal,
		ClusterConnectionsTotal,
		ClusterFramesTotal,
		ClusterReplayBacklog,
		PerfdataQueueDepth,
		PerfdataDroppedTotal,
		PerfdataFlushLatency,
		PerfdataReconnectsTotal,
		ReconciliationCyclesTotal,
		ReconciliationDuration,
		DowntimesExpiredTotal,
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
