package server

import (
	"net/http"

	"github.com/mbocsi/airlink/proto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the exchange counters on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	frames      *prometheus.CounterVec
	completed   *prometheus.CounterVec
	routed      *prometheus.CounterVec
	unsupported prometheus.Counter
	relays      *prometheus.CounterVec
	sessions    prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airlink",
			Name:      "frames_total",
			Help:      "Frames offered to the dispatcher, by accepting handler and outcome.",
		}, []string{"handler", "status"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airlink",
			Name:      "payloads_completed_total",
			Help:      "Payloads fully reassembled, by handler.",
		}, []string{"handler"}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airlink",
			Name:      "messages_routed_total",
			Help:      "Messages handed to kind handlers.",
		}, []string{"kind"}),
		unsupported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airlink",
			Name:      "batches_unsupported_total",
			Help:      "Decoded batches that could not be routed.",
		}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airlink",
			Name:      "relays_total",
			Help:      "Raw strings handed to the relay or clipboard.",
		}, []string{"target", "result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airlink",
			Name:      "sessions_open",
			Help:      "Decode sessions currently held by the registry.",
		}),
	}
	m.registry.MustRegister(m.frames, m.completed, m.routed, m.unsupported, m.relays, m.sessions)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Frame(handler string, status proto.Status) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(handler, status.String()).Inc()
}

func (m *Metrics) Completed(handler string) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(handler).Inc()
}

func (m *Metrics) Routed(kind proto.Kind, n int) {
	if m == nil {
		return
	}
	m.routed.WithLabelValues(kind.String()).Add(float64(n))
}

func (m *Metrics) Unsupported() {
	if m == nil {
		return
	}
	m.unsupported.Inc()
}

func (m *Metrics) Relayed(target string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.relays.WithLabelValues(target, result).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}
