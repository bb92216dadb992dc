// Package observability provides Prometheus metrics for engine operations.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ammlab"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	swapsTotal        *prometheus.CounterVec
	flashLoansTotal   *prometheus.CounterVec
	flashLoanFees     *prometheus.CounterVec
	scenarioRunsTotal *prometheus.CounterVec
	scenarioDuration  *prometheus.HistogramVec
	quoteRequests     *prometheus.CounterVec
	rpcCallDuration   *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		swapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "amm",
			Name:      "swaps_total",
			Help:      "Swaps executed, labeled by kind and result.",
		}, []string{"kind", "result"}),
		flashLoansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flash",
			Name:      "loans_total",
			Help:      "Flash loans issued, labeled by lender and result.",
		}, []string{"lender", "result"}),
		flashLoanFees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flash",
			Name:      "fees_collected_total",
			Help:      "Flash loan fees collected in whole units of the lent asset.",
		}, []string{"lender"}),
		scenarioRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scenario",
			Name:      "runs_total",
			Help:      "Scenario runs, labeled by scenario and outcome.",
		}, []string{"scenario", "outcome"}),
		scenarioDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scenario",
			Name:      "duration_seconds",
			Help:      "Time taken to run a scenario.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scenario"}),
		quoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "quote_requests_total",
			Help:      "Quote requests served, labeled by endpoint and status code class.",
		}, []string{"endpoint", "code"}),
		rpcCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_duration_seconds",
			Help:      "Latency of JSON-RPC contract calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "result"}),
	}
	reg.MustRegister(
		m.swapsTotal,
		m.flashLoansTotal,
		m.flashLoanFees,
		m.scenarioRunsTotal,
		m.scenarioDuration,
		m.quoteRequests,
		m.rpcCallDuration,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler exposes the registry the metrics were registered with.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSwap(kind string, err error) {
	if m == nil {
		return
	}
	m.swapsTotal.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) ObserveFlashLoan(lender string, feeUnits float64, err error) {
	if m == nil {
		return
	}
	m.flashLoansTotal.WithLabelValues(lender, result(err)).Inc()
	if err == nil && feeUnits > 0 {
		m.flashLoanFees.WithLabelValues(lender).Add(feeUnits)
	}
}

func (m *Metrics) ObserveScenario(name string, succeeded bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	m.scenarioRunsTotal.WithLabelValues(name, outcome).Inc()
	m.scenarioDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveQuoteRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	m.quoteRequests.WithLabelValues(endpoint, statusClass(status)).Inc()
}

func (m *Metrics) ObserveRPCCall(method string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.rpcCallDuration.WithLabelValues(method, result(err)).Observe(elapsed.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
