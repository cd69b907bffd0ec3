// Package metrics holds the Prometheus collectors of the delivery pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Delivery paths used as the "path" label.
const (
	PathFCM   = "fcm"
	PathTopic = "topic"
	PathAPNS  = "apns"
	PathWeb   = "web"
)

type Metrics struct {
	Dispatched    *prometheus.CounterVec
	Failed        *prometheus.CounterVec
	InvalidTokens *prometheus.CounterVec
	Dropped       prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fcm_gateway_dispatched_total",
			Help: "Total successful dispatch calls per delivery path.",
		}, []string{"path"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fcm_gateway_dispatch_failed_total",
			Help: "Total dispatch calls that returned a retryable error.",
		}, []string{"path"}),
		InvalidTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fcm_gateway_invalid_tokens_total",
			Help: "Total tokens or subscriptions reported as permanently invalid.",
		}, []string{"path"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fcm_gateway_dropped_requests_total",
			Help: "Total requests dropped because no message could be built.",
		}),
	}
	reg.MustRegister(m.Dispatched, m.Failed, m.InvalidTokens, m.Dropped)
	return m
}

// Record counts the outcome of one dispatch call.
func (m *Metrics) Record(path string, invalid int, err error) {
	if err != nil {
		m.Failed.WithLabelValues(path).Inc()
	} else {
		m.Dispatched.WithLabelValues(path).Inc()
	}
	if invalid > 0 {
		m.InvalidTokens.WithLabelValues(path).Add(float64(invalid))
	}
}
