package linker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superwasp/vespa/internal/aggregation"
	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/zooniverse"
)

func testLinker(t *testing.T, lookup, results string, limit int) *Linker {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lookup.dat"), []byte(lookup), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "results_total.dat"), []byte(results), 0o644))

	settings := &conf.Settings{}
	settings.Import.Root = dir
	settings.Import.LookupFile = "lookup.dat"
	settings.Import.ResultsFile = "results_total.dat"
	settings.Import.Limit = limit
	return New(settings, nil)
}

func consensusRow(subjectID int64) aggregation.Consensus {
	return aggregation.Consensus{
		SubjectID: subjectID,
		Class:     zooniverse.LabelPulsator,
		Certainty: zooniverse.CertaintyCorrect,
		VoteCount: 3,
	}
}

func TestEnrichJoinsBothTables(t *testing.T) {
	linker := testLinker(t,
		"101 1SWASPJ045245.63+214109.1 429000.123 1\n",
		"1 1SWASP J045245.63+214109.1 1 429000.125 0.31 2.4 0\n", 0)

	rows, stats, err := linker.Enrich([]aggregation.Consensus{consensusRow(101)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, stats.Enriched)

	row := rows[0]
	assert.Equal(t, "1SWASPJ045245.63+214109.1", row.WaspID)
	assert.Equal(t, 1, row.PeriodNumber)
	require.NotNil(t, row.Period)
	assert.InDelta(t, 429000.125, *row.Period, 1e-9,
		"the precise results-table period wins over the rounded lookup period")
	require.NotNil(t, row.Sigma)
	assert.InDelta(t, 0.31, *row.Sigma, 1e-9)
}

func TestEnrichTruncationBridgesRoundingDrift(t *testing.T) {
	// The lookup table rounded 12.9996 down to 12.345 while the results
	// table kept 12.9991; truncation to whole seconds makes them match.
	linker := testLinker(t,
		"101 1SWASPJ102030.40-112233.4 12.345 1\n",
		"1 1SWASP J102030.40-112233.4 1 12.3459 0.10 1.0 0\n", 0)

	rows, stats, err := linker.Enrich([]aggregation.Consensus{consensusRow(101)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, stats.ResultsMisses)
	require.NotNil(t, rows[0].Period)
	assert.InDelta(t, 12.3459, *rows[0].Period, 1e-9)
}

func TestEnrichLookupMissDropsRow(t *testing.T) {
	linker := testLinker(t,
		"101 1SWASPJ045245.63+214109.1 429000.123 1\n",
		"1 1SWASP J045245.63+214109.1 1 429000.125 0.31 2.4 0\n", 0)

	rows, stats, err := linker.Enrich([]aggregation.Consensus{
		consensusRow(101),
		consensusRow(999),
	})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "rows without a lookup entry cannot be placed in the catalog")
	assert.Equal(t, 1, stats.LookupMisses)
}

func TestEnrichResultsMissKeepsNilPeriods(t *testing.T) {
	linker := testLinker(t,
		"101 1SWASPJ045245.63+214109.1 429000.123 1\n",
		"1 1SWASP J999999.99+999999.9 1 1.0 0.1 1.0 0\n", 0)

	rows, stats, err := linker.Enrich([]aggregation.Consensus{consensusRow(101)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, stats.ResultsMisses)
	assert.Nil(t, rows[0].Period)
	assert.Nil(t, rows[0].Sigma)
	assert.Nil(t, rows[0].ChiSquared)
}

func TestEnrichRowCap(t *testing.T) {
	linker := testLinker(t,
		"101 1SWASPJ045245.63+214109.1 429000.123 1\n"+
			"102 1SWASPJ045245.63+214109.1 86400.5 2\n"+
			"103 1SWASPJ045245.63+214109.1 43200.5 3\n",
		"1 1SWASP J045245.63+214109.1 1 429000.125 0.31 2.4 0\n", 2)

	rows, stats, err := linker.Enrich([]aggregation.Consensus{
		consensusRow(101), consensusRow(102), consensusRow(103),
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.True(t, stats.Capped)
}

func TestEnrichPreservesInputOrder(t *testing.T) {
	linker := testLinker(t,
		"101 1SWASPJ045245.63+214109.1 429000.123 1\n"+
			"102 1SWASPJ045245.63+214109.1 86400.5 2\n",
		"1 1SWASP J045245.63+214109.1 1 429000.125 0.31 2.4 0\n", 0)

	rows, _, err := linker.Enrich([]aggregation.Consensus{
		consensusRow(101), consensusRow(102),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 101, rows[0].SubjectID)
	assert.EqualValues(t, 102, rows[1].SubjectID)
}
