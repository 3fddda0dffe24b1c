package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ExportMetrics contains all Prometheus metrics related to export generation.
type ExportMetrics struct {
	ExportsGenerated prometheus.Counter
	ExportsFailed    prometheus.Counter
	RowsWritten      prometheus.Counter
	ArchiveSize      prometheus.Histogram
	registry         *prometheus.Registry
}

// NewExportMetrics creates a new instance of ExportMetrics.
func NewExportMetrics(registry *prometheus.Registry) (*ExportMetrics, error) {
	m := &ExportMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register export metrics: %w", err)
	}
	return m, nil
}

func (m *ExportMetrics) initMetrics() {
	m.ExportsGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_exports_generated_total",
		Help: "Total number of export archives generated successfully",
	})

	m.ExportsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_exports_failed_total",
		Help: "Total number of export generation runs that failed",
	})

	m.RowsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_export_rows_written_total",
		Help: "Total number of catalog rows written to export archives",
	})

	m.ArchiveSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vespa_export_archive_size_bytes",
		Help:    "Size of generated export archives in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
}

// Collect implements the prometheus.Collector interface.
func (m *ExportMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ExportsGenerated
	ch <- m.ExportsFailed
	ch <- m.RowsWritten
	ch <- m.ArchiveSize
}

// Describe implements the prometheus.Collector interface.
func (m *ExportMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ExportsGenerated.Desc()
	ch <- m.ExportsFailed.Desc()
	ch <- m.RowsWritten.Desc()
	ch <- m.ArchiveSize.Desc()
}
