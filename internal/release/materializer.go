// Package release runs the aggregation pipeline for data releases and
// promotes finished releases to active.
package release

import (
	"context"
	"time"

	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/errors"
	"github.com/superwasp/vespa/internal/linker"
	"github.com/superwasp/vespa/internal/logging"
	"github.com/superwasp/vespa/internal/metrics"
	"github.com/superwasp/vespa/internal/zooniverse"
)

// classificationLookup maps vote labels to their stored enum values.
var classificationLookup = map[string]datastore.Classification{
	zooniverse.LabelEAEB:     datastore.ClassEAEB,
	zooniverse.LabelEW:       datastore.ClassEW,
	zooniverse.LabelPulsator: datastore.ClassPulsator,
	zooniverse.LabelRotator:  datastore.ClassRotator,
	zooniverse.LabelUnknown:  datastore.ClassUnknown,
	zooniverse.LabelJunk:     datastore.ClassJunk,
}

// certaintyLookup maps certainty labels to the stored two-value enum.
// "Half correct period" counts as uncertain: the folding found a harmonic
// of the true period, so the stored period is not correct as-is.
var certaintyLookup = map[string]datastore.PeriodUncertainty{
	zooniverse.CertaintyCorrect: datastore.PeriodCertain,
	zooniverse.CertaintyWrong:   datastore.PeriodUncertain,
	zooniverse.CertaintyHalf:    datastore.PeriodUncertain,
}

// Materializer writes enriched consensus rows into the catalog store.
type Materializer struct {
	store              datastore.Interface
	metrics            *metrics.PipelineMetrics
	checkpointInterval int
}

// NewMaterializer creates a materializer over the catalog store.
func NewMaterializer(store datastore.Interface, pipelineMetrics *metrics.PipelineMetrics, checkpointInterval int) *Materializer {
	if checkpointInterval <= 0 {
		checkpointInterval = 500
	}
	return &Materializer{
		store:              store,
		metrics:            pipelineMetrics,
		checkpointInterval: checkpointInterval,
	}
}

// MaterializeStats summarizes a materialization pass.
type MaterializeStats struct {
	Rows              int
	StarsCreated      int
	CandidatesCreated int
	SubjectsCreated   int
	CorrectionsStaged int
}

// Materialize upserts every enriched row for the release and stamps
// AggregationFinished when all rows are in. Each row commits independently,
// so an interrupted run leaves a prefix of the release in place and the
// finished stamp unset.
func (m *Materializer) Materialize(ctx context.Context, release *datastore.DataRelease, rows []linker.EnrichedRow) (*MaterializeStats, error) {
	logger := logging.ForService("release")
	stats := &MaterializeStats{}

	for i := range rows {
		row := &rows[i]
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		class, ok := classificationLookup[row.Class]
		if !ok {
			return stats, errors.Newf("unknown classification label %q", row.Class).
				Component("release").
				Category(errors.CategoryMaterialize).
				Context("subject_id", row.SubjectID).
				Build()
		}
		certainty, ok := certaintyLookup[row.Certainty]
		if !ok {
			return stats, errors.Newf("unknown period certainty label %q", row.Certainty).
				Component("release").
				Category(errors.CategoryMaterialize).
				Context("subject_id", row.SubjectID).
				Build()
		}

		outcome, err := m.store.MaterializeClassification(&datastore.MaterializedRow{
			DataReleaseID:       release.ID,
			WaspID:              row.WaspID,
			ZooniverseID:        row.SubjectID,
			PeriodNumber:        row.PeriodNumber,
			PeriodLength:        row.Period,
			Sigma:               row.Sigma,
			ChiSquared:          row.ChiSquared,
			Classification:      class,
			PeriodUncertainty:   certainty,
			ClassificationCount: row.VoteCount,
		})
		if err != nil {
			return stats, err
		}

		stats.Rows++
		if outcome.StarCreated {
			stats.StarsCreated++
		}
		if outcome.CandidateCreated {
			stats.CandidatesCreated++
		}
		if outcome.SubjectCreated {
			stats.SubjectsCreated++
		}
		if outcome.CorrectionStaged {
			stats.CorrectionsStaged++
		}

		if stats.Rows%m.checkpointInterval == 0 {
			logger.Info("materialization checkpoint",
				"release_version", release.Version,
				"rows", stats.Rows,
				"total", len(rows))
		}
	}

	if m.metrics != nil {
		m.metrics.CandidatesCreated.Add(float64(stats.CandidatesCreated))
		m.metrics.CorrectionsStaged.Add(float64(stats.CorrectionsStaged))
		m.metrics.ClassificationsAppended.Add(float64(stats.Rows))
	}

	if err := m.store.MarkAggregationFinished(release.ID, time.Now()); err != nil {
		return stats, err
	}

	logger.Info("release materialized",
		"release_version", release.Version,
		"rows", stats.Rows,
		"stars_created", stats.StarsCreated,
		"candidates_created", stats.CandidatesCreated,
		"subjects_created", stats.SubjectsCreated,
		"corrections_staged", stats.CorrectionsStaged)

	return stats, nil
}
