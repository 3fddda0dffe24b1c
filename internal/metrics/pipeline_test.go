package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipelineMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()

	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	m.VotesIngested.Inc()
	m.SubjectsAggregated.Add(3)

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	names := make(map[string]bool)
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["vespa_votes_ingested_total"])
	assert.True(t, names["vespa_subjects_aggregated_total"])
}

func TestNewPipelineMetricsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()

	_, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	_, err = NewPipelineMetrics(registry)
	assert.Error(t, err, "double registration on one registry must fail")
}

func TestNewExportMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()

	m, err := NewExportMetrics(registry)
	require.NoError(t, err)

	m.ExportsGenerated.Inc()
	m.ArchiveSize.Observe(2048)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["vespa_exports_generated_total"])
	assert.True(t, names["vespa_export_archive_size_bytes"])
}
