// Package metrics exposes chain and portal counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	chainLength      prometheus.Gauge
	validations      *prometheus.CounterVec
	attacks          *prometheus.CounterVec
	submissions      *prometheus.CounterVec
	rebuildDuration  prometheus.Histogram
	archiveOutcomes  *prometheus.CounterVec
	validateDuration prometheus.Histogram
}

// New registers every collector on a private registry so several instances
// can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		chainLength: f.NewGauge(prometheus.GaugeOpts{
			Name: "portal_chain_length",
			Help: "Number of blocks in the live report chain, genesis included",
		}),
		validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_chain_validations_total",
			Help: "Chain validations by outcome",
		}, []string{"result"}),
		attacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_attack_simulations_total",
			Help: "Attack simulations by kind and whether the validator caught them",
		}, []string{"attack_type", "detected"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_report_submissions_total",
			Help: "Report submissions and updates by operation and status",
		}, []string{"operation", "status"}),
		rebuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "portal_chain_rebuild_duration_seconds",
			Help:    "Duration of sealed chain rebuilds",
			Buckets: prometheus.DefBuckets,
		}),
		archiveOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_archive_verifications_total",
			Help: "Archive integrity checks by status",
		}, []string{"status"}),
		validateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "portal_chain_validation_duration_seconds",
			Help:    "Duration of live chain validations",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
	}
}

func (m *Metrics) SetChainLength(n int) { m.chainLength.Set(float64(n)) }

func (m *Metrics) ObserveValidation(valid bool, took time.Duration) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.validations.WithLabelValues(result).Inc()
	m.validateDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveAttack(kind string, detected bool) {
	d := "false"
	if detected {
		d = "true"
	}
	m.attacks.WithLabelValues(kind, d).Inc()
}

// ObserveSubmission counts a submit or update; status is "ok" or "rejected".
func (m *Metrics) ObserveSubmission(operation, status string) {
	m.submissions.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) ObserveRebuild(took time.Duration) {
	m.rebuildDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveArchive(status string) {
	m.archiveOutcomes.WithLabelValues(status).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
