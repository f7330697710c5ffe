package metrics

import (
	"context"
	"net/http"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports cycle and transfer counters
type Metrics struct {
	gatherer prometheus.Gatherer

	cycles         *prometheus.CounterVec
	transfers      *prometheus.CounterVec
	images         *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	seriesPending  *prometheus.GaugeVec
	lastCycleEpoch *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autosync_cycles_total",
			Help: "Sync cycles run, by result (done, failed).",
		}, []string{"node", "result"}),
		transfers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autosync_transfers_total",
			Help: "Series moves attempted, by result (succeeded, failed, skipped).",
		}, []string{"node", "result"}),
		images: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autosync_images_transferred_total",
			Help: "Images moved by successful series transfers.",
		}, []string{"node"}),
		cycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autosync_cycle_duration_seconds",
			Help:    "Wall time of a sync cycle.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"node"}),
		seriesPending: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autosync_series_pending",
			Help: "Eligible series not transferred at the end of the last cycle.",
		}, []string{"node"}),
		lastCycleEpoch: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autosync_last_cycle_timestamp_seconds",
			Help: "Unix time the last cycle finished.",
		}, []string{"node"}),
	}
}

// ReportCycle updates the collectors from one cycle
func (m *Metrics) ReportCycle(_ context.Context, stats *models.SyncCycleStats, _ models.Totals) error {
	node := stats.Node

	result := "done"
	if stats.Failed() {
		result = "failed"
	}
	m.cycles.WithLabelValues(node, result).Inc()

	m.transfers.WithLabelValues(node, "succeeded").Add(float64(stats.SeriesTransferred))
	m.transfers.WithLabelValues(node, "failed").Add(float64(stats.SeriesFailed))
	m.transfers.WithLabelValues(node, "skipped").Add(float64(stats.SeriesSkipped))
	m.images.WithLabelValues(node).Add(float64(stats.ImagesTransferred))

	m.cycleDuration.WithLabelValues(node).Observe(stats.Elapsed.Seconds())

	if !stats.Failed() {
		pending := stats.SeriesEligible - stats.SeriesTransferred
		if pending < 0 {
			pending = 0
		}
		m.seriesPending.WithLabelValues(node).Set(float64(pending))
	}
	if !stats.FinishedAt.IsZero() {
		m.lastCycleEpoch.WithLabelValues(node).Set(float64(stats.FinishedAt.Unix()))
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
