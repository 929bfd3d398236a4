package metrics

import "github.com/prometheus/client_golang/prometheus"

// AppMetrics counts webhook deliveries and app proxy signature checks.
type AppMetrics struct {
	WebhooksTotal      *prometheus.CounterVec
	ProxyRequestsTotal *prometheus.CounterVec
}

func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		WebhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "received_total",
			Help:      "Webhook deliveries by topic and outcome.",
		}, []string{"topic", "result"}),
		ProxyRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "App proxy requests by signature verification result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.WebhooksTotal, m.ProxyRequestsTotal)
	return m
}

func (m *AppMetrics) Webhook(topic, result string) {
	m.WebhooksTotal.WithLabelValues(topic, result).Inc()
}

func (m *AppMetrics) Proxy(result string) {
	m.ProxyRequestsTotal.WithLabelValues(result).Inc()
}
