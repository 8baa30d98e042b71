package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TokensMinted     prometheus.Counter
	KeyExchanges     *prometheus.CounterVec
	ChatRequests     *prometheus.CounterVec
	UpstreamErrors   *prometheus.CounterVec
	ChatRelayLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TokensMinted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_tokens_minted_total",
			Help:      "Session tokens issued by the minting endpoint.",
		}),
		KeyExchanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_exchanges_total",
			Help:      "Ephemeral key exchanges by outcome.",
		}, []string{"outcome"}),
		ChatRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat relay requests by outcome.",
		}, []string{"outcome"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Provider errors by endpoint and status.",
		}, []string{"endpoint", "status"}),
		ChatRelayLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_relay_latency_ms",
			Help:      "Latency of chat relay round-trips in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000, 25000},
		}),
	}
}

func (m *Metrics) ObserveChatRelayLatency(d time.Duration) {
	m.ChatRelayLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
