package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eclab/mason-sub011/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so constructing
// a PrometheusCollector never touches the registerer.
type PrometheusCollector struct {
	*NopMetrics

	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// Partition metrics
	rebalanceDuration *prometheus.HistogramVec
	rebalanceMoved    *prometheus.CounterVec
	rebalanceFailures *prometheus.CounterVec
	neighbors         prometheus.Gauge
	groups            prometheus.Gauge

	// Halo metrics
	haloSyncDuration *prometheus.HistogramVec
	haloBytes        *prometheus.CounterVec
	collectives      *prometheus.HistogramVec
	remoteOpsApplied *prometheus.CounterVec

	// Migration metrics
	migrations     *prometheus.CounterVec
	remoteCalls    *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec

	// Comm metrics
	messages       prometheus.Counter
	messageBytes   prometheus.Counter
	collectiveWait *prometheus.HistogramVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Metrics namespace (defaults to "mason" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "mason"
	}

	return &PrometheusCollector{NopMetrics: NewNop(), reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.rebalanceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "rebalance_duration_seconds",
			Help:      "Duration of committed rebalances by tree level.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~4s
		}, []string{"level"})
		p.rebalanceMoved = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "origins_moved_total",
			Help:      "Total split origins moved by rebalancing, by tree level.",
		}, []string{"level"})
		p.rebalanceFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "rebalance_failures_total",
			Help:      "Total failed rebalances by tree level.",
		}, []string{"level"})
		p.neighbors = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "neighbors",
			Help:      "Current number of neighbor processes.",
		})
		p.groups = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "groups",
			Help:      "Current number of group communicators this process belongs to.",
		})

		p.haloSyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "halo",
			Name:      "sync_duration_seconds",
			Help:      "Duration of halo exchange rounds by field.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us .. ~1.6s
		}, []string{"field"})
		p.haloBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "halo",
			Name:      "bytes_total",
			Help:      "Total bytes exchanged in halo rounds by field and direction.",
		}, []string{"field", "direction"})
		p.collectives = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "halo",
			Name:      "collective_duration_seconds",
			Help:      "Duration of collect and distribute operations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"field", "op"})
		p.remoteOpsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "halo",
			Name:      "remote_ops_applied_total",
			Help:      "Total queued remote ops applied at synchronization points.",
		}, []string{"field"})

		p.migrations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "migration",
			Name:      "agents_total",
			Help:      "Total agents migrated by field and direction.",
		}, []string{"field", "direction"})
		p.remoteCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "migration",
			Name:      "remote_calls_total",
			Help:      "Total remote writes by op and result.",
		}, []string{"op", "result"})
		p.remoteDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "migration",
			Name:      "remote_call_duration_seconds",
			Help:      "Round-trip time of remote writes by op.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"op"})

		p.messages = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "comm",
			Name:      "messages_total",
			Help:      "Total point-to-point messages sent.",
		})
		p.messageBytes = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "comm",
			Name:      "message_bytes_total",
			Help:      "Total payload bytes sent.",
		})
		p.collectiveWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "comm",
			Name:      "collective_wait_seconds",
			Help:      "Time spent inside collectives by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"op"})

		p.reg.MustRegister(
			p.rebalanceDuration, p.rebalanceMoved, p.rebalanceFailures, p.neighbors, p.groups,
			p.haloSyncDuration, p.haloBytes, p.collectives, p.remoteOpsApplied,
			p.migrations, p.remoteCalls, p.remoteDuration,
			p.messages, p.messageBytes, p.collectiveWait,
		)
	})
}

// RecordRebalance records a committed rebalance.
func (p *PrometheusCollector) RecordRebalance(level int, duration float64, moved int) {
	p.ensureRegistered()
	l := strconv.Itoa(level)
	p.rebalanceDuration.WithLabelValues(l).Observe(duration)
	p.rebalanceMoved.WithLabelValues(l).Add(float64(moved))
}

// RecordRebalanceFailure records a failed rebalance.
func (p *PrometheusCollector) RecordRebalanceFailure(level int) {
	p.ensureRegistered()
	p.rebalanceFailures.WithLabelValues(strconv.Itoa(level)).Inc()
}

// RecordTopology records the current neighbor and group counts.
func (p *PrometheusCollector) RecordTopology(neighbors, groups int) {
	p.ensureRegistered()
	p.neighbors.Set(float64(neighbors))
	p.groups.Set(float64(groups))
}

// RecordHaloSync records one halo exchange round.
func (p *PrometheusCollector) RecordHaloSync(field string, duration float64, sent, received int) {
	p.ensureRegistered()
	p.haloSyncDuration.WithLabelValues(field).Observe(duration)
	p.haloBytes.WithLabelValues(field, "sent").Add(float64(sent))
	p.haloBytes.WithLabelValues(field, "received").Add(float64(received))
}

// RecordCollective records a collect or distribute operation.
func (p *PrometheusCollector) RecordCollective(field, op string, duration float64) {
	p.ensureRegistered()
	p.collectives.WithLabelValues(field, op).Observe(duration)
}

// RecordRemoteOpsApplied records queued remote ops applied at a sync point.
func (p *PrometheusCollector) RecordRemoteOpsApplied(field string, count int) {
	p.ensureRegistered()
	p.remoteOpsApplied.WithLabelValues(field).Add(float64(count))
}

// RecordMigration records agents exchanged by one transporter flush.
func (p *PrometheusCollector) RecordMigration(field string, sent, received int) {
	p.ensureRegistered()
	p.migrations.WithLabelValues(field, "sent").Add(float64(sent))
	p.migrations.WithLabelValues(field, "received").Add(float64(received))
}

// RecordRemoteCall records a remote write.
func (p *PrometheusCollector) RecordRemoteCall(op string, success bool, duration float64) {
	p.ensureRegistered()
	result := "success"
	if !success {
		result = "failure"
	}
	p.remoteCalls.WithLabelValues(op, result).Inc()
	p.remoteDuration.WithLabelValues(op).Observe(duration)
}

// RecordMessage records one outgoing message.
func (p *PrometheusCollector) RecordMessage(bytes int) {
	p.ensureRegistered()
	p.messages.Inc()
	p.messageBytes.Add(float64(bytes))
}

// RecordCollectiveWait records time spent inside a collective.
func (p *PrometheusCollector) RecordCollectiveWait(op string, duration float64) {
	p.ensureRegistered()
	p.collectiveWait.WithLabelValues(op).Observe(duration)
}
