// Package metrics provides custom Prometheus metrics for the aggregation pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains all Prometheus metrics related to release aggregation.
type PipelineMetrics struct {
	VotesIngested           prometheus.Counter
	VotesDiscarded          prometheus.Counter
	VotesDeduplicated       prometheus.Counter
	VotesMalformed          prometheus.Counter
	SubjectsAggregated      prometheus.Counter
	JunkConsensusDropped    prometheus.Counter
	JoinMisses              prometheus.Counter
	CandidatesCreated       prometheus.Counter
	CorrectionsStaged       prometheus.Counter
	ClassificationsAppended prometheus.Counter
	ReleasesActivated       prometheus.Counter
	AggregationDuration     prometheus.Histogram
	registry                *prometheus.Registry
}

// NewPipelineMetrics creates a new instance of PipelineMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for PipelineMetrics.
func (m *PipelineMetrics) initMetrics() {
	m.VotesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_votes_ingested_total",
		Help: "Total number of classification votes accepted from the export",
	})

	m.VotesDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_votes_discarded_total",
		Help: "Total number of export rows discarded by workflow or sentinel filters",
	})

	m.VotesDeduplicated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_votes_deduplicated_total",
		Help: "Total number of duplicate (user, subject) votes dropped",
	})

	m.VotesMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_votes_malformed_total",
		Help: "Total number of export rows skipped because they could not be parsed",
	})

	m.SubjectsAggregated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_subjects_aggregated_total",
		Help: "Total number of subjects reduced to a consensus classification",
	})

	m.JunkConsensusDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_junk_consensus_dropped_total",
		Help: "Total number of subjects dropped because their consensus was Junk",
	})

	m.JoinMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_join_misses_total",
		Help: "Total number of consensus rows without a subject lookup match",
	})

	m.CandidatesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_fold_candidates_created_total",
		Help: "Total number of fold candidates created during materialization",
	})

	m.CorrectionsStaged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_corrections_staged_total",
		Help: "Total number of fold candidates with period corrections staged",
	})

	m.ClassificationsAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_classifications_appended_total",
		Help: "Total number of aggregated classification rows written",
	})

	m.ReleasesActivated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vespa_releases_activated_total",
		Help: "Total number of data releases promoted to active",
	})

	m.AggregationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vespa_aggregation_duration_seconds",
		Help:    "Duration of full release aggregation runs in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})
}

// StartAggregationTimer starts a timer for measuring a full aggregation run.
func (m *PipelineMetrics) StartAggregationTimer() *AggregationTimer {
	return &AggregationTimer{
		startTime: time.Now(),
		metrics:   m,
	}
}

// AggregationTimer is a helper struct for measuring aggregation duration.
type AggregationTimer struct {
	startTime time.Time
	metrics   *PipelineMetrics
}

// ObserveDuration stops the timer and records the duration.
func (at *AggregationTimer) ObserveDuration() {
	at.metrics.AggregationDuration.Observe(time.Since(at.startTime).Seconds())
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.VotesIngested
	ch <- m.VotesDiscarded
	ch <- m.VotesDeduplicated
	ch <- m.VotesMalformed
	ch <- m.SubjectsAggregated
	ch <- m.JunkConsensusDropped
	ch <- m.JoinMisses
	ch <- m.CandidatesCreated
	ch <- m.CorrectionsStaged
	ch <- m.ClassificationsAppended
	ch <- m.ReleasesActivated
	ch <- m.AggregationDuration
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.VotesIngested.Desc()
	ch <- m.VotesDiscarded.Desc()
	ch <- m.VotesDeduplicated.Desc()
	ch <- m.VotesMalformed.Desc()
	ch <- m.SubjectsAggregated.Desc()
	ch <- m.JunkConsensusDropped.Desc()
	ch <- m.JoinMisses.Desc()
	ch <- m.CandidatesCreated.Desc()
	ch <- m.CorrectionsStaged.Desc()
	ch <- m.ClassificationsAppended.Desc()
	ch <- m.ReleasesActivated.Desc()
	ch <- m.AggregationDuration.Desc()
}
