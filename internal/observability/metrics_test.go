package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveSwap("exact_input", nil)
	m.ObserveSwap("exact_input", errors.New("slippage"))
	m.ObserveFlashLoan("pool", 1.5, nil)
	m.ObserveFlashLoan("pool", 0, errors.New("not repaid"))
	m.ObserveScenario("puppet", true, 10*time.Millisecond)
	m.ObserveQuoteRequest("/quote", 400)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.swapsTotal.WithLabelValues("exact_input", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.swapsTotal.WithLabelValues("exact_input", "error")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.flashLoanFees.WithLabelValues("pool")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flashLoansTotal.WithLabelValues("pool", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scenarioRunsTotal.WithLabelValues("puppet", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quoteRequests.WithLabelValues("/quote", "4xx")))
	assert.NotNil(t, m.Handler())
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSwap("exact_output", nil)
		m.ObserveFlashLoan("pool", 1, nil)
		m.ObserveScenario("truster", false, time.Second)
		m.ObserveQuoteRequest("/quote", 200)
		m.ObserveRPCCall("getReserves", time.Millisecond, nil)
	})
	assert.NotNil(t, m.Handler())
}
