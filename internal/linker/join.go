package linker

import (
	"path/filepath"

	"github.com/superwasp/vespa/internal/aggregation"
	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/logging"
	"github.com/superwasp/vespa/internal/metrics"
)

// EnrichedRow is a consensus verdict joined against the reference tables,
// carrying everything materialization needs.
type EnrichedRow struct {
	aggregation.Consensus

	WaspID       string
	PeriodNumber int

	// Precise values from the period search results; all nil when the
	// compound key missed the results table.
	Period     *float64
	Sigma      *float64
	ChiSquared *float64
}

// JoinStats summarizes a linking run.
type JoinStats struct {
	Enriched      int
	LookupMisses  int
	ResultsMisses int
	Capped        bool
}

// Linker joins consensus rows against the configured reference tables.
type Linker struct {
	lookupPath  string
	resultsPath string
	maxRows     int
	metrics     *metrics.PipelineMetrics
}

// New creates a linker over the configured import tables.
func New(settings *conf.Settings, pipelineMetrics *metrics.PipelineMetrics) *Linker {
	return &Linker{
		lookupPath:  filepath.Join(settings.Import.Root, settings.Import.LookupFile),
		resultsPath: filepath.Join(settings.Import.Root, settings.Import.ResultsFile),
		maxRows:     settings.Import.Limit,
		metrics:     pipelineMetrics,
	}
}

// Enrich joins each consensus row to its fold candidate identity (subject
// lookup table) and precise period search values (results table). Rows
// without a lookup entry cannot be placed in the catalog and are dropped;
// rows without a results entry keep nil period values. Input order is
// preserved, and the optional row cap truncates after joining.
func (l *Linker) Enrich(consensus []aggregation.Consensus) ([]EnrichedRow, *JoinStats, error) {
	logger := logging.ForService("linker")

	lookup, err := LoadLookupTable(l.lookupPath)
	if err != nil {
		return nil, nil, err
	}
	results, err := LoadResultsTable(l.resultsPath)
	if err != nil {
		return nil, nil, err
	}

	stats := &JoinStats{}
	rows := make([]EnrichedRow, 0, len(consensus))
	for _, c := range consensus {
		entry, ok := lookup[c.SubjectID]
		if !ok {
			stats.LookupMisses++
			continue
		}

		row := EnrichedRow{
			Consensus:    c,
			WaspID:       entry.WaspID,
			PeriodNumber: entry.PeriodNumber,
		}
		key := ResultKey{
			WaspID:       entry.WaspID,
			PeriodTrunc:  TruncatePeriod(entry.Period),
			PeriodNumber: entry.PeriodNumber,
		}
		if result, ok := results[key]; ok {
			period, sigma, chiSquared := result.Period, result.Sigma, result.ChiSquared
			row.Period = &period
			row.Sigma = &sigma
			row.ChiSquared = &chiSquared
		} else {
			stats.ResultsMisses++
		}
		rows = append(rows, row)

		if l.maxRows > 0 && len(rows) >= l.maxRows {
			stats.Capped = true
			break
		}
	}
	stats.Enriched = len(rows)

	if l.metrics != nil {
		l.metrics.JoinMisses.Add(float64(stats.LookupMisses))
	}

	logger.Info("consensus rows enriched",
		"enriched", stats.Enriched,
		"lookup_misses", stats.LookupMisses,
		"results_misses", stats.ResultsMisses,
		"capped", stats.Capped)

	return rows, stats, nil
}
