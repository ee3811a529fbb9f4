// Package metrics exposes the policy service's counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/rr-matrix/internal/matrix/domain"
)

type Metrics struct {
	decisionsTotal  *prometheus.CounterVec
	mutationsTotal  *prometheus.CounterVec
	persistsTotal   *prometheus.CounterVec
	layerRules      *prometheus.GaugeVec
	snapshotSeconds prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "matrix_decisions_total", Help: "Total request decisions"},
			[]string{"type", "hue", "blocked", "cached"},
		),
		mutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "matrix_rule_mutations_total", Help: "Total rule mutations"},
			[]string{"layer", "op"},
		),
		persistsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "matrix_persists_total", Help: "Total permanent layer saves"},
			[]string{"result"},
		),
		layerRules: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "matrix_layer_rules", Help: "Explicit cells and switches per layer"},
			[]string{"layer"},
		),
		snapshotSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "matrix_snapshot_duration_seconds",
				Help:    "Snapshot aggregation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.decisionsTotal,
		m.mutationsTotal,
		m.persistsTotal,
		m.layerRules,
		m.snapshotSeconds,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDecision(t domain.RequestType, d domain.Decision, cached bool) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(t.String(), d.Hue.String(), strconv.FormatBool(d.Blocked), strconv.FormatBool(cached)).Inc()
}

func (m *Metrics) ObserveMutation(layer, op string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(layer, op).Inc()
}

// ObservePersist records one save attempt: "saved", "unchanged" or "error".
func (m *Metrics) ObservePersist(result string) {
	if m == nil {
		return
	}
	m.persistsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetLayerSize(layer string, n int) {
	if m == nil {
		return
	}
	m.layerRules.WithLabelValues(layer).Set(float64(n))
}

func (m *Metrics) ObserveSnapshot(d time.Duration) {
	if m == nil {
		return
	}
	m.snapshotSeconds.Observe(d.Seconds())
}
