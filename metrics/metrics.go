// Package metrics holds the prometheus collectors for ledgerfs.
//
// A nil *Metrics is valid and records nothing, so components can take one
// optionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledgerfs"

// Submission outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// Metrics bundles the collectors and the registry they are registered in.
type Metrics struct {
	registry *prometheus.Registry

	submissions   *prometheus.CounterVec
	receiptWait   *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	indexFailures *prometheus.CounterVec
	requests      *prometheus.CounterVec
}

// New creates the collectors in a fresh registry, together with the process
// and Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "submissions_total",
			Help:      "Ledger submissions by operation and outcome.",
		}, []string{"op", "outcome"}),
		receiptWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "receipt_wait_seconds",
			Help:      "Time from broadcast until a receipt was observed.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "results_total",
			Help:      "Integrity verification results.",
		}, []string{"result"}),
		indexFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "write_failures_total",
			Help:      "Secondary index writes that failed after a ledger success.",
		}, []string{"op"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
		m.submissions,
		m.receiptWait,
		m.verifications,
		m.indexFailures,
		m.requests,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Submission records one ledger submission.
func (m *Metrics) Submission(op, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(op, outcome).Inc()
}

// ReceiptWait records how long op waited for its receipt.
func (m *Metrics) ReceiptWait(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.receiptWait.WithLabelValues(op).Observe(d.Seconds())
}

// Verification records a verifier result: "valid", "invalid" or "error".
func (m *Metrics) Verification(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

// IndexWriteFailure records an index write that failed after the ledger write.
func (m *Metrics) IndexWriteFailure(op string) {
	if m == nil {
		return
	}
	m.indexFailures.WithLabelValues(op).Inc()
}

// Request records one handled HTTP request.
func (m *Metrics) Request(route string, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, code).Inc()
}
