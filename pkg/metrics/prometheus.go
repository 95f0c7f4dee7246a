// Package metrics provides Prometheus metrics for the mlatd correlation engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the mlatd service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Correlation pipeline
	observationsTotal  prometheus.Counter
	groupsCreated      prometheus.Counter
	groupsResolved     prometheus.Counter
	resolutionsAborted *prometheus.CounterVec
	pendingGroups      prometheus.Gauge

	// Clustering and solving
	clustersFormed    prometheus.Counter
	solverAttempts    prometheus.Counter
	solverFailures    prometheus.Counter
	positionsAccepted prometheus.Counter
	acceptedDistinct  prometheus.Histogram
	acceptedVariance  prometheus.Histogram
	resolutionSeconds prometheus.Histogram

	// Ingest
	ingestLines        prometheus.Counter
	ingestErrors       prometheus.Counter
	connectedReceivers prometheus.Gauge
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueDropped       prometheus.Counter

	// Housekeeping
	knownAircraft    prometheus.Gauge
	blacklistReloads prometheus.Counter
	blacklistSize    prometheus.Gauge
	diagDropped      prometheus.Counter
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "mlatd",
		subsystem:        "correlator",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.observationsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "observations_total",
		Help:      "Raw (receiver, timestamp, message) observations recorded.",
	})
	m.groupsCreated = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "message_groups_created_total",
		Help:      "Message groups created in the correlation table.",
	})
	m.groupsResolved = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "message_groups_resolved_total",
		Help:      "Message groups whose resolution timer fired.",
	})
	m.resolutionsAborted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolutions_aborted_total",
		Help:      "Resolutions that ended early without a position, by reason.",
	}, []string{"reason"})
	m.pendingGroups = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_groups",
		Help:      "Message groups currently awaiting their resolution timer.",
	})

	m.clustersFormed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "clusters_formed_total",
		Help:      "Candidate clusters produced by the clustering pass.",
	})
	m.solverAttempts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "solver_attempts_total",
		Help:      "Calls into the position solver.",
	})
	m.solverFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "solver_failures_total",
		Help:      "Solver calls that produced no usable estimate.",
	})
	m.positionsAccepted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "positions_accepted_total",
		Help:      "Position results accepted by the hysteresis policy.",
	})
	m.acceptedDistinct = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "accepted_distinct_receivers",
		Help:      "Distinct receiver count of accepted clusters.",
		Buckets:   []float64{3, 4, 5, 6, 8, 10, 15, 20},
	})
	m.acceptedVariance = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "accepted_variance_m2",
		Help:      "Variance estimate (covariance trace) of accepted results.",
		Buckets:   prometheus.ExponentialBuckets(1e3, 10, 6),
	})
	m.resolutionSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolution_duration_seconds",
		Help:      "Wall time spent in a single resolution pass.",
		Buckets:   m.histogramBuckets,
	})

	m.ingestLines = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ingest",
		Name:      "lines_total",
		Help:      "Observation lines received from receiver connections.",
	})
	m.ingestErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ingest",
		Name:      "errors_total",
		Help:      "Malformed or rejected ingest lines.",
	})
	m.connectedReceivers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "ingest",
		Name:      "connected_receivers",
		Help:      "Receiver connections currently open.",
	})
	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "size",
		Help:      "Observations waiting in the ingest queue.",
	})
	m.queueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "capacity",
		Help:      "Configured capacity of the ingest queue.",
	})
	m.queueDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "dropped_total",
		Help:      "Observations dropped because the queue was full.",
	})

	m.knownAircraft = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "known_aircraft",
		Help:      "Aircraft currently tracked by the registry.",
	})
	m.blacklistReloads = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "blacklist_reloads_total",
		Help:      "Blacklist loads, including the initial one.",
	})
	m.blacklistSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "blacklist_size",
		Help:      "Operator identities currently blacklisted.",
	})
	m.diagDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "diaglog_dropped_total",
		Help:      "Diagnostic records dropped due to backpressure.",
	})
}

// Handler returns an http.Handler serving the custom registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}

// Package-level recording functions operating on the global manager.

func RecordObservation() { globalManager.observationsTotal.Inc() }

func RecordGroupCreated() { globalManager.groupsCreated.Inc() }

func RecordGroupResolved() { globalManager.groupsResolved.Inc() }

// RecordResolutionAborted counts an early pipeline exit by reason
// (e.g. "quorum", "decode", "unknown_aircraft", "min_receivers", "ratelimit",
// "no_clusters", "not_accepted").
func RecordResolutionAborted(reason string) {
	globalManager.resolutionsAborted.WithLabelValues(reason).Inc()
}

func UpdatePendingGroups(n int) { globalManager.pendingGroups.Set(float64(n)) }

func RecordClustersFormed(n int) { globalManager.clustersFormed.Add(float64(n)) }

func RecordSolverAttempt() { globalManager.solverAttempts.Inc() }

func RecordSolverFailure() { globalManager.solverFailures.Inc() }

func RecordPositionAccepted(distinct int, variance float64) {
	globalManager.positionsAccepted.Inc()
	globalManager.acceptedDistinct.Observe(float64(distinct))
	globalManager.acceptedVariance.Observe(variance)
}

func RecordResolutionDuration(seconds float64) {
	globalManager.resolutionSeconds.Observe(seconds)
}

func RecordIngestLine() { globalManager.ingestLines.Inc() }

func RecordIngestError() { globalManager.ingestErrors.Inc() }

func UpdateConnectedReceivers(n int) { globalManager.connectedReceivers.Set(float64(n)) }

func UpdateQueueSize(n int) { globalManager.queueSize.Set(float64(n)) }

func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }

func RecordQueueDropped() { globalManager.queueDropped.Inc() }

func UpdateKnownAircraft(n int) { globalManager.knownAircraft.Set(float64(n)) }

func RecordBlacklistReload(size int) {
	globalManager.blacklistReloads.Inc()
	globalManager.blacklistSize.Set(float64(size))
}

func RecordDiagDropped() { globalManager.diagDropped.Inc() }
