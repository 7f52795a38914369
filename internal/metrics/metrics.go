package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection Manager metrics
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sysrepo_connections_active",
			Help: "Number of currently accepted client connections",
		},
	)

	ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sysrepo_connections_total",
			Help: "Total number of client connections accepted since start",
		},
	)

	ConnectionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sysrepo_connections_rejected_total",
			Help: "Total number of connections rejected by the access policy, by reason",
		},
		[]string{"reason"},
	)

	// Session Manager metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sysrepo_sessions_active",
			Help: "Number of currently open sessions",
		},
	)

	SessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sysrepo_sessions_total",
			Help: "Total number of sessions created since start",
		},
	)

	// Request Processor metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sysrepo_requests_total",
			Help: "Total number of requests dispatched, by operation and error code",
		},
		[]string{"op", "code"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sysrepo_request_duration_seconds",
			Help:    "Request dispatch duration in seconds, by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	RequestQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sysrepo_request_queue_depth",
			Help: "Current depth of a session's request queue",
		},
		[]string{"session"},
	)

	// Data Manager / commit metrics
	ValidateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sysrepo_validate_duration_seconds",
			Help:    "Time taken to validate a candidate datastore in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sysrepo_commit_duration_seconds",
			Help:    "Time taken to run the two-phase commit protocol in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sysrepo_commits_total",
			Help: "Total number of commit attempts, by outcome",
		},
		[]string{"outcome"},
	)

	ModuleLocksHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sysrepo_module_locks_held",
			Help: "Number of per-module locks currently held",
		},
	)

	DatastoreLocksHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sysrepo_datastore_locks_held",
			Help: "Number of per-datastore locks currently held",
		},
	)

	// Notification Processor metrics
	SubscriptionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sysrepo_subscriptions_active",
			Help: "Number of active subscriptions, by kind (transient, durable)",
		},
		[]string{"kind"},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sysrepo_notifications_sent_total",
			Help: "Total number of notifications delivered, by module and outcome",
		},
		[]string{"module", "outcome"},
	)

	NotificationFanoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sysrepo_notification_fanout_duration_seconds",
			Help:    "Time taken to fan a notification out to all subscribers in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Persistence metrics
	PersistWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sysrepo_persist_write_duration_seconds",
			Help:    "Time taken to persist a module's datastore to disk in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PersistWritesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sysrepo_persist_writes_failed_total",
			Help: "Total number of failed persistence writes",
		},
	)
)

func init() {
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(ConnectionsTotal)
	prometheus.MustRegister(ConnectionsRejected)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(RequestQueueDepth)
	prometheus.MustRegister(ValidateDuration)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(ModuleLocksHeld)
	prometheus.MustRegister(DatastoreLocksHeld)
	prometheus.MustRegister(SubscriptionsActive)
	prometheus.MustRegister(NotificationsSent)
	prometheus.MustRegister(NotificationFanoutDuration)
	prometheus.MustRegister(PersistWriteDuration)
	prometheus.MustRegister(PersistWritesFailed)
}

// Handler returns the Prometheus HTTP handler, bound to a loopback address
// distinct from the daemon's AF_UNIX control socket.
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
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
