package datastore

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/superwasp/vespa/internal/errors"
)

// MaterializedRow is one enriched consensus row ready to be upserted into
// the catalog for a data release.
type MaterializedRow struct {
	DataReleaseID uint

	WaspID       string
	ZooniverseID int64
	PeriodNumber int

	// Joined values from the period search catalog; nil on a join miss
	PeriodLength *float64
	Sigma        *float64
	ChiSquared   *float64

	Classification      Classification
	PeriodUncertainty   PeriodUncertainty
	ClassificationCount int
}

// hasJoinedValues reports whether the period search join produced any
// authoritative values for this row.
func (r *MaterializedRow) hasJoinedValues() bool {
	return r.PeriodLength != nil || r.Sigma != nil || r.ChiSquared != nil
}

// MaterializeOutcome reports which entities a materialization created or changed.
type MaterializeOutcome struct {
	FoldCandidateID  uint
	StarCreated      bool
	CandidateCreated bool
	SubjectCreated   bool
	CorrectionStaged bool
}

// MaterializeClassification idempotently upserts the catalog entities for one
// enriched consensus row and appends the release's AggregatedClassification.
// The whole row runs in one transaction with the candidate row locked, so two
// releases materializing against the same fold candidate serialize instead of
// losing staged updates. (SQLite ignores FOR UPDATE; its writer lock covers
// the same case.)
func (ds *DataStore) MaterializeClassification(row *MaterializedRow) (*MaterializeOutcome, error) {
	if row.WaspID == "" {
		return nil, validationError("materialized row has no star identifier", "wasp_id", row.WaspID)
	}
	if row.DataReleaseID == 0 {
		return nil, validationError("materialized row has no data release", "data_release_id", row.DataReleaseID)
	}

	outcome := &MaterializeOutcome{}

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		// Resolve or create the star by natural identifier
		var star Star
		err := tx.Where(Star{WaspID: row.WaspID}).First(&star).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			star = Star{WaspID: row.WaspID}
			if err := tx.Create(&star).Error; err != nil {
				return err
			}
			outcome.StarCreated = true
		case err != nil:
			return err
		}

		// Prefer the existing subject link; fall back to the first candidate
		// for (star, period number). Historical imports contain duplicate
		// candidates, and taking the lowest id is the tolerated resolution.
		var candidate *FoldCandidate
		var subject CrowdSubject
		subjectLinked := false
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("zooniverse_id = ?", row.ZooniverseID).
			First(&subject).Error
		switch {
		case err == nil:
			subjectLinked = true
			var fc FoldCandidate
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&fc, subject.FoldCandidateID).Error; err != nil {
				return err
			}
			candidate = &fc
		case errors.Is(err, gorm.ErrRecordNotFound):
			var fc FoldCandidate
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("star_id = ? AND period_number = ?", star.ID, row.PeriodNumber).
				Order("id").
				First(&fc).Error
			switch {
			case err == nil:
				candidate = &fc
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		default:
			return err
		}

		if candidate == nil {
			candidate = &FoldCandidate{
				StarID:       star.ID,
				PeriodNumber: row.PeriodNumber,
				PeriodLength: row.PeriodLength,
				Sigma:        row.Sigma,
				ChiSquared:   row.ChiSquared,
				ImageState:   ImageMissing,
			}
			if err := tx.Create(candidate).Error; err != nil {
				return err
			}
			outcome.CandidateCreated = true
		} else if row.hasJoinedValues() &&
			(!floatPtrEqual(candidate.PeriodLength, row.PeriodLength) ||
				!floatPtrEqual(candidate.Sigma, row.Sigma) ||
				!floatPtrEqual(candidate.ChiSquared, row.ChiSquared)) {
			// Never overwrite live values mid-release: stage the correction
			// for promotion when the release is activated. A results-table
			// miss carries no values at all, so it stages nothing and an
			// earlier release's staged correction survives.
			if err := tx.Model(candidate).Updates(map[string]any{
				"updated_period_length": row.PeriodLength,
				"updated_sigma":         row.Sigma,
				"updated_chi_squared":   row.ChiSquared,
			}).Error; err != nil {
				return err
			}
			outcome.CorrectionStaged = true
		}

		if !subjectLinked {
			subject = CrowdSubject{
				ZooniverseID:    row.ZooniverseID,
				FoldCandidateID: candidate.ID,
			}
			if err := tx.Create(&subject).Error; err != nil {
				return err
			}
			outcome.SubjectCreated = true
		}

		outcome.FoldCandidateID = candidate.ID

		classification := AggregatedClassification{
			DataReleaseID:       row.DataReleaseID,
			FoldCandidateID:     candidate.ID,
			Classification:      row.Classification,
			PeriodUncertainty:   row.PeriodUncertainty,
			ClassificationCount: row.ClassificationCount,
		}
		return tx.Create(&classification).Error
	})
	if err != nil {
		return nil, dbError(err, "materialize_classification", "high",
			"wasp_id", row.WaspID,
			"zooniverse_id", row.ZooniverseID,
			"release_id", row.DataReleaseID)
	}

	return outcome, nil
}
