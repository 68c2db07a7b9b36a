package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "pentestd"

// Metrics holds the Prometheus collectors for scans, reports and the provider.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	scansTotal       *prometheus.CounterVec
	scansInFlight    prometheus.Gauge
	phasesTotal      *prometheus.CounterVec
	reportsTotal     *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	synthesisSeconds prometheus.Histogram
	retentionRemoved *prometheus.CounterVec
}

// NewMetrics builds the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scans_total",
			Help:      "Scans that reached a terminal status.",
		}, []string{"scan_type", "status"}),
		scansInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "scans_in_flight",
			Help:      "Scans currently being advanced.",
		}),
		phasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scan_phases_total",
			Help:      "Phase transitions applied to scans.",
		}, []string{"step"}),
		reportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reports_total",
			Help:      "Reports synthesized, by prose provenance.",
		}, []string{"provenance"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "provider_calls_total",
			Help:      "Text analysis provider calls by call kind and outcome.",
		}, []string{"call", "outcome"}),
		synthesisSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "report_synthesis_seconds",
			Help:      "Wall time of report synthesis.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		retentionRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retention_removed_total",
			Help:      "Entries removed by the retention sweep.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.scansTotal,
		m.scansInFlight,
		m.phasesTotal,
		m.reportsTotal,
		m.providerCalls,
		m.synthesisSeconds,
		m.retentionRemoved,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.scansInFlight.Inc()
}

func (m *Metrics) ScanFinished(scanType, status string) {
	if m == nil {
		return
	}
	m.scansInFlight.Dec()
	m.scansTotal.WithLabelValues(scanType, status).Inc()
}

// ScanCancelled counts a scan cancelled before an advance ever claimed it.
func (m *Metrics) ScanCancelled(scanType string) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(scanType, "cancelled").Inc()
}

func (m *Metrics) PhaseApplied(step string) {
	if m == nil {
		return
	}
	m.phasesTotal.WithLabelValues(step).Inc()
}

func (m *Metrics) ReportSynthesized(provenance string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reportsTotal.WithLabelValues(provenance).Inc()
	m.synthesisSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) ProviderCall(call, outcome string) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(call, outcome).Inc()
}

func (m *Metrics) RetentionRemoved(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.retentionRemoved.WithLabelValues(kind).Add(float64(n))
}
