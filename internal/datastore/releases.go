package datastore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/superwasp/vespa/internal/errors"
)

// CreateDataRelease creates a new release. When version is nil the version
// defaults to the previous maximum plus one; the first release is version 1.
func (ds *DataStore) CreateDataRelease(version *float64) (*DataRelease, error) {
	var release DataRelease
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		v := 1.0
		if version != nil {
			v = *version
		} else {
			var latest DataRelease
			err := tx.Order("version DESC").First(&latest).Error
			switch {
			case err == nil:
				v = latest.Version + 1
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}
		release = DataRelease{Version: v}
		return tx.Create(&release).Error
	})
	if err != nil {
		return nil, dbError(err, "create_data_release", "")
	}
	return &release, nil
}

// GetDataRelease retrieves a release by id.
func (ds *DataStore) GetDataRelease(id uint) (*DataRelease, error) {
	var release DataRelease
	if err := ds.DB.First(&release, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("data release", id)
		}
		return nil, dbError(err, "get_data_release", "", "release_id", id)
	}
	return &release, nil
}

// GetDataReleaseByVersion retrieves a release by its version number.
func (ds *DataStore) GetDataReleaseByVersion(version float64) (*DataRelease, error) {
	var release DataRelease
	if err := ds.DB.Where("version = ?", version).First(&release).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("data release", version)
		}
		return nil, dbError(err, "get_data_release_by_version", "", "version", version)
	}
	return &release, nil
}

// LatestDataRelease returns the highest-versioned release, optionally
// restricted to active ones. Returns nil without error when none exist.
func (ds *DataStore) LatestDataRelease(activeOnly bool) (*DataRelease, error) {
	var release DataRelease
	query := ds.DB.Order("version DESC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.First(&release).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(err, "latest_data_release", "")
	}
	return &release, nil
}

// ListDataReleases returns all releases ordered by version.
func (ds *DataStore) ListDataReleases() ([]DataRelease, error) {
	var releases []DataRelease
	if err := ds.DB.Order("version").Find(&releases).Error; err != nil {
		return nil, dbError(err, "list_data_releases", "")
	}
	return releases, nil
}

// MarkAggregationFinished stamps the release once its aggregation pass has
// materialized every row. The stamp's presence signals readiness for review.
func (ds *DataStore) MarkAggregationFinished(releaseID uint, at time.Time) error {
	result := ds.DB.Model(&DataRelease{}).Where("id = ?", releaseID).
		Update("aggregation_finished", at)
	if result.Error != nil {
		return dbError(result.Error, "mark_aggregation_finished", "", "release_id", releaseID)
	}
	if result.RowsAffected == 0 {
		return notFoundError("data release", releaseID)
	}
	return nil
}

// ActivationResult reports what a promotion changed.
type ActivationResult struct {
	Release        *DataRelease
	AlreadyActive  bool   // ActiveAt was already set; nothing was changed
	PromotedIDs    []uint // fold candidates whose staged corrections went live
	ArchiveExport  *DataExport
}

// ActivateDataRelease promotes every fully-staged fold candidate correction
// into the live fields, clears the staging fields, invalidates rendered
// images, creates the unfiltered archive export record, and stamps the
// release's ActiveAt — all in a single transaction. A release whose ActiveAt
// is already set is left untouched.
func (ds *DataStore) ActivateDataRelease(releaseID uint, at time.Time) (*ActivationResult, error) {
	result := &ActivationResult{}

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		var release DataRelease
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&release, releaseID).Error; err != nil {
			return err
		}
		if release.ActiveAt != nil {
			// ActiveAt is set at most once; repeated toggles are no-ops
			result.Release = &release
			result.AlreadyActive = true
			return nil
		}

		stagedCond := "updated_period_length IS NOT NULL AND updated_sigma IS NOT NULL AND updated_chi_squared IS NOT NULL"

		var staged []FoldCandidate
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where(stagedCond).Find(&staged).Error; err != nil {
			return err
		}
		ids := make([]uint, 0, len(staged))
		for i := range staged {
			ids = append(ids, staged[i].ID)
		}

		if len(ids) > 0 {
			// Copy staged values into the live fields first, then clear the
			// staging fields in a second statement: SQL assignment evaluation
			// order differs between backends, so a single combined UPDATE is
			// not portable.
			if err := tx.Model(&FoldCandidate{}).Where("id IN ?", ids).
				Updates(map[string]any{
					"period_length": gorm.Expr("updated_period_length"),
					"sigma":         gorm.Expr("updated_sigma"),
					"chi_squared":   gorm.Expr("updated_chi_squared"),
					"image_version": nil,
					"image_state":   ImageStale,
				}).Error; err != nil {
				return err
			}
			if err := tx.Model(&FoldCandidate{}).Where("id IN ?", ids).
				Updates(map[string]any{
					"updated_period_length": nil,
					"updated_sigma":         nil,
					"updated_chi_squared":   nil,
				}).Error; err != nil {
				return err
			}
		}

		// Pre-generate the permanent, unfiltered archive snapshot
		archive := DataExport{
			ID:            uuid.New(),
			DataReleaseID: release.ID,
			DataVersion:   release.Version,
			InDataArchive: true,
			CertainPeriod: true, UncertainPeriod: true,
			TypePulsator: true, TypeRotator: true, TypeEW: true,
			TypeEAEB: true, TypeUnknown: true,
		}
		if err := tx.Create(&archive).Error; err != nil {
			return err
		}

		now := at
		release.Active = true
		release.ActiveAt = &now
		if err := tx.Model(&DataRelease{}).Where("id = ?", release.ID).
			Updates(map[string]any{"active": true, "active_at": now}).Error; err != nil {
			return err
		}

		result.Release = &release
		result.PromotedIDs = ids
		result.ArchiveExport = &archive
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("data release", releaseID)
		}
		return nil, dbError(err, "activate_data_release", "high", "release_id", releaseID)
	}
	return result, nil
}
