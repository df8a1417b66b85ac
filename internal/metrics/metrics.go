// Package metrics exposes Prometheus metrics for practice sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prepy"

// Metrics holds the practice collectors and their registry.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive    prometheus.Gauge
	sessionsStarted   prometheus.Counter
	sessionsEnded     *prometheus.CounterVec
	turnsTotal        *prometheus.CounterVec
	chatLatency       prometheus.Histogram
	recognitionErrors *prometheus.CounterVec
	bridgeDropped     prometheus.Counter
	sweptSessions     prometheus.Counter
}

// New registers all collectors on a fresh registry, including Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return newWithRegistry(reg)
}

func newWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of practice sessions with a connected device bridge",
		}),
		sessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of practice loops started",
		}),
		sessionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of practice sessions ended",
		}, []string{"reason"}), // reason: completed, user
		turnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of candidate turns by outcome",
		}, []string{"status"}), // status: sent, answered, failed
		chatLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_request_duration_seconds",
			Help:      "Duration of chat service calls in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		recognitionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Total number of recognition device errors by kind",
		}, []string{"kind"}),
		bridgeDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_frames_dropped_total",
			Help:      "Inbound device frames dropped by rate limiting or decoding",
		}),
		sweptSessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Stale live session records removed by the sweeper",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// SessionStarted records a connected practice loop.
func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
}

// SessionDetached records a practice loop that stopped running.
func (m *Metrics) SessionDetached() {
	m.sessionsActive.Dec()
}

// SessionEnded records a terminal session end.
func (m *Metrics) SessionEnded(reason string) {
	m.sessionsEnded.WithLabelValues(reason).Inc()
}

// TurnSent records a candidate turn sent to the chat service.
func (m *Metrics) TurnSent() {
	m.turnsTotal.WithLabelValues("sent").Inc()
}

// TurnAnswered records a successful reply and its latency.
func (m *Metrics) TurnAnswered(latency time.Duration) {
	m.turnsTotal.WithLabelValues("answered").Inc()
	m.chatLatency.Observe(latency.Seconds())
}

// TurnFailed records a failed chat turn.
func (m *Metrics) TurnFailed() {
	m.turnsTotal.WithLabelValues("failed").Inc()
}

// RecognitionError records a classified recognition error.
func (m *Metrics) RecognitionError(kind string) {
	m.recognitionErrors.WithLabelValues(kind).Inc()
}

// BridgeFrameDropped records an inbound frame that was not delivered.
func (m *Metrics) BridgeFrameDropped() {
	m.bridgeDropped.Inc()
}

// SessionsSwept records stale records removed by the sweeper.
func (m *Metrics) SessionsSwept(n int64) {
	m.sweptSessions.Add(float64(n))
}
