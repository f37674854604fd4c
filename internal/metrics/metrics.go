package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the wallet.
// It is passed explicitly to the components that record into it; a nil
// *Metrics records nothing.
type Metrics struct {
	rpcCallsTotal   *prometheus.CounterVec
	rpcCallDuration *prometheus.HistogramVec
	rpcRetries      *prometheus.CounterVec

	submitAttemptsTotal *prometheus.CounterVec
	submissionsTotal    *prometheus.CounterVec
	confirmationLatency prometheus.Histogram
	pollsTotal          *prometheus.CounterVec
	inFlight            prometheus.Gauge

	signaturesTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_rpc_calls_total",
				Help: "Total number of ledger RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_rpc_call_duration_seconds",
				Help:    "Duration of ledger RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		rpcRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_rpc_retries_total",
				Help: "Total number of ledger RPC retry attempts",
			},
			[]string{"method"},
		),
		submitAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_submit_attempts_total",
				Help: "Broadcast attempts of signed transactions by result",
			},
			[]string{"result"},
		),
		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_submissions_total",
				Help: "Submissions reaching a terminal state",
			},
			[]string{"state"},
		),
		confirmationLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wallet_confirmation_latency_seconds",
				Help:    "Time from first broadcast to observed confirmation",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
			},
		),
		pollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_status_polls_total",
				Help: "Status polls by observed chain status",
			},
			[]string{"status"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wallet_submissions_in_flight",
				Help: "Submissions currently tracked locally",
			},
		),
		signaturesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_signatures_total",
				Help: "Signing operations by result",
			},
			[]string{"result"},
		),
	}
}

// RecordRPCCall records a ledger RPC call.
func (m *Metrics) RecordRPCCall(method, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.rpcCallsTotal.WithLabelValues(method, status).Inc()
	m.rpcCallDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordRPCRetry records a retry of a ledger RPC call.
func (m *Metrics) RecordRPCRetry(method string) {
	if m == nil {
		return
	}
	m.rpcRetries.WithLabelValues(method).Inc()
}

// RecordSubmitAttempt records one broadcast attempt ("ok", "network_error", "rejected").
func (m *Metrics) RecordSubmitAttempt(result string) {
	if m == nil {
		return
	}
	m.submitAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordTerminal records a submission reaching a terminal state.
func (m *Metrics) RecordTerminal(state string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(state).Inc()
}

// RecordConfirmationLatency records the time it took to observe confirmation.
func (m *Metrics) RecordConfirmationLatency(seconds float64) {
	if m == nil {
		return
	}
	m.confirmationLatency.Observe(seconds)
}

// RecordPoll records one status poll.
func (m *Metrics) RecordPoll(status string) {
	if m == nil {
		return
	}
	m.pollsTotal.WithLabelValues(status).Inc()
}

// TrackingStarted and TrackingStopped maintain the in-flight gauge.
func (m *Metrics) TrackingStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) TrackingStopped() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// RecordSignature records a signing operation ("ok", "error").
func (m *Metrics) RecordSignature(result string) {
	if m == nil {
		return
	}
	m.signaturesTotal.WithLabelValues(result).Inc()
}
