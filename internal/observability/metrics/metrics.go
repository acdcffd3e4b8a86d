package metrics

import "github.com/prometheus/client_golang/prometheus"

// VoiceMetrics exposes counters/histograms for the Bolna integration.
// All methods are nil-safe so components can run without a registry in tests.
type VoiceMetrics struct {
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	webhookEvents    *prometheus.CounterVec
	callTransitions  *prometheus.CounterVec
	sweepRuns        *prometheus.CounterVec
}

func NewVoiceMetrics(reg prometheus.Registerer) *VoiceMetrics {
	m := &VoiceMetrics{
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "bolna",
			Name:      "provider_requests_total",
			Help:      "Total Bolna API requests by operation and outcome",
		}, []string{"op", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "bolna",
			Name:      "provider_request_seconds",
			Help:      "Latency of Bolna API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "bolna",
			Name:      "webhook_events_total",
			Help:      "Inbound Bolna webhooks by result",
		}, []string{"result"}),
		callTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "calls",
			Name:      "status_transitions_total",
			Help:      "Call status changes by source and target status",
		}, []string{"source", "status"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "calls",
			Name:      "sweep_runs_total",
			Help:      "Reconciliation sweep runs by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.providerRequests, m.providerLatency, m.webhookEvents, m.callTransitions, m.sweepRuns)
	return m
}

func (m *VoiceMetrics) ObserveProviderRequest(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(op, outcome).Inc()
	m.providerLatency.WithLabelValues(op).Observe(seconds)
}

func (m *VoiceMetrics) ObserveWebhook(result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(result).Inc()
}

func (m *VoiceMetrics) ObserveTransition(source, status string) {
	if m == nil {
		return
	}
	m.callTransitions.WithLabelValues(source, status).Inc()
}

func (m *VoiceMetrics) ObserveSweep(outcome string) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(outcome).Inc()
}
