package datastore

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/superwasp/vespa/internal/errors"
)

// StarStats holds the derived photometric statistics for a star.
type StarStats struct {
	MinMagnitude  float64
	MeanMagnitude float64
	MaxMagnitude  float64
	Amplitude     float64
	Version       float64
}

// GetOrCreateStar resolves a star by its survey designation, creating it on
// first reference. The second return value reports whether a row was created.
func (ds *DataStore) GetOrCreateStar(waspID string) (*Star, bool, error) {
	if waspID == "" {
		return nil, false, validationError("wasp id must not be empty", "wasp_id", waspID)
	}

	var star Star
	err := ds.DB.Where(Star{WaspID: waspID}).First(&star).Error
	if err == nil {
		return &star, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, dbError(err, "get_star", "", "wasp_id", waspID)
	}

	star = Star{WaspID: waspID}
	// Another writer may race us to the insert; the unique index decides,
	// and the conflict clause turns the loser's insert into a fetch.
	err = ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wasp_id"}},
		DoNothing: true,
	}).Create(&star).Error
	if err != nil {
		return nil, false, dbError(err, "create_star", "", "wasp_id", waspID)
	}
	if star.ID == 0 {
		// Lost the race; fetch the winner's row
		if err := ds.DB.Where(Star{WaspID: waspID}).First(&star).Error; err != nil {
			return nil, false, dbError(err, "get_star", "", "wasp_id", waspID)
		}
		return &star, false, nil
	}
	return &star, true, nil
}

// GetStar retrieves a star by its survey designation.
func (ds *DataStore) GetStar(waspID string) (*Star, error) {
	var star Star
	if err := ds.DB.Where(Star{WaspID: waspID}).First(&star).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("star", waspID)
		}
		return nil, dbError(err, "get_star", "", "wasp_id", waspID)
	}
	return &star, nil
}

// SaveStarStats stores the derived magnitudes and stamps the stats version.
func (ds *DataStore) SaveStarStats(starID uint, stats StarStats) error {
	result := ds.DB.Model(&Star{}).Where("id = ?", starID).Updates(map[string]any{
		"min_magnitude":  stats.MinMagnitude,
		"mean_magnitude": stats.MeanMagnitude,
		"max_magnitude":  stats.MaxMagnitude,
		"amplitude":      stats.Amplitude,
		"stats_version":  stats.Version,
	})
	if result.Error != nil {
		return dbError(result.Error, "save_star_stats", "", "star_id", starID)
	}
	if result.RowsAffected == 0 {
		return notFoundError("star", starID)
	}
	return nil
}

// IncrementFitsErrorCount bumps the failed-fetch counter and returns the new value.
func (ds *DataStore) IncrementFitsErrorCount(starID uint) (int, error) {
	err := ds.DB.Model(&Star{}).Where("id = ?", starID).
		UpdateColumn("fits_error_count", gorm.Expr("fits_error_count + 1")).Error
	if err != nil {
		return 0, dbError(err, "increment_fits_error_count", "", "star_id", starID)
	}
	var star Star
	if err := ds.DB.Select("fits_error_count").First(&star, starID).Error; err != nil {
		return 0, dbError(err, "get_star", "", "star_id", starID)
	}
	return star.FitsErrorCount, nil
}

// StarsWithoutStats lists stars whose statistics have never been computed and
// whose raw photometry fetch has not permanently failed.
func (ds *DataStore) StarsWithoutStats(maxFitsErrors, limit int) ([]Star, error) {
	var stars []Star
	query := ds.DB.Where("stats_version IS NULL AND fits_error_count < ?", maxFitsErrors)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&stars).Error; err != nil {
		return nil, dbError(err, "stars_without_stats", "")
	}
	return stars, nil
}
