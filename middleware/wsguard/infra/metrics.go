package infra

import (
	"context"
	"time"

	"ws-gateway/middleware/wsguard/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wsguard"

// Metrics espelha em Prometheus os eventos do pipeline. Não substitui o store de
// contadores (que é a fonte para /stats), serve para scraping por instância.
//
// Todos os métodos aceitam receiver nil.
type Metrics struct {
	Admissions         *prometheus.CounterVec
	ActiveConnections  prometheus.Gauge
	Messages           *prometheus.CounterVec
	ConnectionDuration prometheus.Histogram
	TelemetryErrors    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Admissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Connection admission decisions by result and reason.",
		}, []string{"result", "reason"}),
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Currently open WebSocket connections on this instance.",
		}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "WebSocket message frames by direction.",
		}, []string{"direction"}),
		ConnectionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_duration_seconds",
			Help:      "Lifetime of closed WebSocket connections.",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 3600},
		}),
		TelemetryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_errors_total",
			Help:      "Counter store failures swallowed by best-effort telemetry.",
		}, []string{"op"}),
	}
}

func (m *Metrics) Opened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) Closed(d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
	m.ConnectionDuration.Observe(d.Seconds())
}

func (m *Metrics) Sent() {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues("sent").Inc()
}

func (m *Metrics) Received() {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues("received").Inc()
}

func (m *Metrics) TelemetryError(op string) {
	if m == nil {
		return
	}
	m.TelemetryErrors.WithLabelValues(op).Inc()
}

// PrometheusStatsStore implementa domain.StatsStore sobre Metrics.Admissions.
type PrometheusStatsStore struct {
	m *Metrics
}

func NewPrometheusStatsStore(m *Metrics) *PrometheusStatsStore {
	return &PrometheusStatsStore{m: m}
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	if s == nil || s.m == nil {
		return nil
	}
	result := "denied"
	if ev.Allowed {
		result = "allowed"
	}
	reason := string(ev.Reason)
	if reason == "" {
		reason = "none"
	}
	s.m.Admissions.WithLabelValues(result, reason).Inc()
	return nil
}

// MultiStatsStore repassa o evento para todos os stores e devolve o primeiro erro.
type MultiStatsStore []domain.StatsStore

func (ms MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range ms {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
