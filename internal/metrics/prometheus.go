// ABOUTME: Prometheus-backed Recorder and the scrape handler
// ABOUTME: Metrics register once against the supplied registry

package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hvac"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	cacheLookups  *prom.CounterVec
	persistence   *prom.CounterVec
	messages      *prom.CounterVec
	deliveries    *prom.CounterVec
	degrees       prom.Histogram
	notifications prom.Counter
	relay         *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
// A nil reg uses a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		cacheLookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "state_cache_lookups_total",
			Help:      "State cache lookups by result",
		}, []string{"result"}),
		persistence: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "state_persistence_total",
			Help:      "Durable state writes and loads by operation and result",
		}, []string{"op", "result"}),
		messages: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "agent_messages_total",
			Help:      "Agent messages handled by kind and outcome",
		}, []string{"kind", "outcome"}),
		deliveries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Broadcast deliveries by message kind and result",
		}, []string{"kind", "result"}),
		degrees: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "correlation_degree",
			Help:      "Computed correlation degrees",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		notifications: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_notifications_total",
			Help:      "High-correlation notifications sent",
		}),
		relay: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "relay_messages_total",
			Help:      "Relay messages by direction and result",
		}, []string{"direction", "result"}),
	}
	reg.MustRegister(pr.cacheLookups, pr.persistence, pr.messages, pr.deliveries, pr.degrees, pr.notifications, pr.relay)
	return pr
}

func (p *PrometheusRecorder) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) ObservePersistence(op string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	p.persistence.WithLabelValues(op, result).Inc()
}

func (p *PrometheusRecorder) ObserveMessage(kind, outcome string) {
	p.messages.WithLabelValues(kind, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveBroadcast(kind string, delivered, dropped int) {
	p.deliveries.WithLabelValues(kind, "delivered").Add(float64(delivered))
	p.deliveries.WithLabelValues(kind, "dropped").Add(float64(dropped))
}

func (p *PrometheusRecorder) ObserveCorrelation(degree float64, notified bool) {
	p.degrees.Observe(degree)
	if notified {
		p.notifications.Inc()
	}
}

func (p *PrometheusRecorder) ObserveRelay(direction, result string) {
	p.relay.WithLabelValues(direction, result).Inc()
}

// HTTPHandler serves the metrics registered with reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

var _ Recorder = (*PrometheusRecorder)(nil)
