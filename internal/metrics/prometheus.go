package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus keeps its collectors in a private registry served by Handler.
type Prometheus struct {
	registry  *prometheus.Registry
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	dropped   *prometheus.CounterVec
}

// NewPrometheus registers the notification collectors under namespace.
func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Processed notifications by topic and outcome.",
		}, []string{"topic", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_duration_seconds",
			Help:      "Time spent processing a notification.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"topic"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped before processing.",
		}, []string{"reason"}),
	}
	p.registry.MustRegister(p.processed, p.duration, p.dropped)
	return p
}

func (p *Prometheus) ObserveNotification(_ context.Context, topic, outcome string, elapsed time.Duration) {
	p.processed.WithLabelValues(topic, outcome).Inc()
	p.duration.WithLabelValues(topic).Observe(elapsed.Seconds())
}

func (p *Prometheus) NotificationDropped(_ context.Context, reason string) {
	p.dropped.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
