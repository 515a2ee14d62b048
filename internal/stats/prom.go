package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// promMetrics mirrors the tracker counters into a Prometheus registry for
// the optional live /metrics endpoint.
type promMetrics struct {
	requests *prometheus.CounterVec
	attempts prometheus.Counter
	retries  prometheus.Counter
	latency  prometheus.Histogram
	inflight prometheus.Gauge
	tokens   *prometheus.CounterVec
	health   *prometheus.CounterVec
}

// EnablePrometheus registers the tracker's collectors. Call before the run
// starts; the tracker is not otherwise synchronized with registration.
func (t *Tracker) EnablePrometheus(reg prometheus.Registerer) {
	p := &promMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inferload_requests_total",
			Help: "Logical requests by final status.",
		}, []string{"status"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inferload_attempts_total",
			Help: "HTTP attempts including retries.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inferload_retries_total",
			Help: "Retries scheduled after transient failures.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inferload_request_duration_seconds",
			Help:    "Latency of successful requests.",
			Buckets: prometheus.ExponentialBuckets(0.05, 1.5, 20),
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inferload_inflight_requests",
			Help: "Logical requests currently executing.",
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inferload_tokens_total",
			Help: "Estimated tokens by direction.",
		}, []string{"direction"}),
		health: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inferload_health_checks_total",
			Help: "Probe results by verdict.",
		}, []string{"verdict"}),
	}
	reg.MustRegister(p.requests, p.attempts, p.retries, p.latency, p.inflight, p.tokens, p.health)
	t.prom = p
}
