package pdp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains decision point metrics.
type Metrics struct {
	registerer prometheus.Registerer

	// decisionTotal counts authorization decisions by outcome.
	decisionTotal *prometheus.CounterVec

	// decisionDuration measures full decision latency.
	decisionDuration prometheus.Histogram

	// evaluationTotal counts per-evaluator votes.
	evaluationTotal *prometheus.CounterVec

	// cacheHits counts decision cache hits.
	cacheHits prometheus.Counter

	// cacheMisses counts decision cache misses.
	cacheMisses prometheus.Counter

	// invalidationTotal counts cache invalidations by scope.
	invalidationTotal *prometheus.CounterVec

	// policyCount tracks loaded policies per engine.
	policyCount *prometheus.GaugeVec

	// auditDropped counts audit events lost to a full channel.
	auditDropped prometheus.Counter
}

// NewMetrics registers decision point metrics with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer registers with a custom registry, used when
// the host application exposes its own /metrics endpoint.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "pdp"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{registerer: registerer}

	m.decisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "decision_total",
			Help:      "Total number of authorization decisions",
		},
		[]string{"decision", "cached"},
	)

	m.decisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "decision_duration_seconds",
			Help:      "Authorization decision duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	m.evaluationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "evaluation_total",
			Help:      "Total number of evaluator votes",
		},
		[]string{"evaluator", "result"},
	)

	m.cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "cache_hits_total",
			Help:      "Total number of decision cache hits",
		},
	)

	m.cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "cache_misses_total",
			Help:      "Total number of decision cache misses",
		},
	)

	m.invalidationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "invalidation_total",
			Help:      "Total cache invalidations by scope",
		},
		[]string{"scope"},
	)

	m.policyCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "policy_count",
			Help:      "Number of loaded policies or roles",
		},
		[]string{"engine"},
	)

	m.auditDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "audit_dropped_total",
			Help:      "Audit events dropped because the channel was full",
		},
	)

	collectors := []prometheus.Collector{
		m.decisionTotal,
		m.decisionDuration,
		m.evaluationTotal,
		m.cacheHits,
		m.cacheMisses,
		m.invalidationTotal,
		m.policyCount,
		m.auditDropped,
	}
	for _, c := range collectors {
		_ = registerer.Register(c)
	}

	return m
}

// RecordDecision records a finished decision with its latency.
func (m *Metrics) RecordDecision(allowed, cached bool, duration time.Duration) {
	if m == nil || m.decisionTotal == nil {
		return
	}
	m.decisionTotal.WithLabelValues(boolLabel(allowed, "allowed", "denied"), boolLabel(cached, "true", "false")).Inc()
	m.decisionDuration.Observe(duration.Seconds())
}

// RecordEvaluation records one evaluator's vote.
func (m *Metrics) RecordEvaluation(evaluator, result string) {
	if m == nil || m.evaluationTotal == nil {
		return
	}
	m.evaluationTotal.WithLabelValues(evaluator, result).Inc()
}

// RecordCacheHit records a decision cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.Inc()
}

// RecordCacheMiss records a decision cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil || m.cacheMisses == nil {
		return
	}
	m.cacheMisses.Inc()
}

// RecordInvalidation records a tag-group invalidation.
func (m *Metrics) RecordInvalidation(scope string, removed int) {
	if m == nil || m.invalidationTotal == nil {
		return
	}
	m.invalidationTotal.WithLabelValues(scope).Add(float64(removed))
}

// SetPolicyCount tracks loaded policy or role counts per engine.
func (m *Metrics) SetPolicyCount(engine string, n int) {
	if m == nil || m.policyCount == nil {
		return
	}
	m.policyCount.WithLabelValues(engine).Set(float64(n))
}

// RecordAuditDrop records an audit event lost to backpressure.
func (m *Metrics) RecordAuditDrop() {
	if m == nil || m.auditDropped == nil {
		return
	}
	m.auditDropped.Inc()
}

func boolLabel(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
