// Package metrics exports run-loop counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/outreach-backend/internal/model"
)

const namespace = "outreach"

// EngineMetrics implements engine.Metrics on its own registry.
type EngineMetrics struct {
	registry *prometheus.Registry

	units      *prometheus.CounterVec
	followUps  *prometheus.CounterVec
	lifecycle  *prometheus.CounterVec
	activeRuns prometheus.Gauge
}

func New() *EngineMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &EngineMetrics{
		registry: reg,
		units: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_units_total",
			Help:      "Work units fired, by campaign type and outcome (sent, failed, skipped).",
		}, []string{"type", "outcome"}),
		followUps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_follow_ups_total",
			Help:      "Follow-up messages attempted, by success.",
		}, []string{"ok"}),
		lifecycle: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_events_total",
			Help:      "Run-loop lifecycle events.",
		}, []string{"event"}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "campaign_active_runs",
			Help:      "Run loops currently owned by this process.",
		}),
	}
}

func (m *EngineMetrics) UnitDone(t model.CampaignType, outcome string) {
	m.units.WithLabelValues(string(t), outcome).Inc()
}

func (m *EngineMetrics) FollowUpDone(ok bool) {
	m.followUps.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

func (m *EngineMetrics) Lifecycle(event string) {
	m.lifecycle.WithLabelValues(event).Inc()
}

func (m *EngineMetrics) ActiveRuns(n int) {
	m.activeRuns.Set(float64(n))
}

// Handler serves the /metrics endpoint.
func (m *EngineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
