package datastore

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/superwasp/vespa/internal/errors"
)

// CreateDataExport persists a new export record, assigning its id if unset.
func (ds *DataStore) CreateDataExport(exp *DataExport) error {
	if exp.ID == uuid.Nil {
		exp.ID = uuid.New()
	}
	if err := ds.DB.Create(exp).Error; err != nil {
		return dbError(err, "create_data_export", "", "export_id", exp.ID)
	}
	return nil
}

// GetDataExport retrieves an export record by id.
func (ds *DataStore) GetDataExport(id uuid.UUID) (*DataExport, error) {
	var exp DataExport
	if err := ds.DB.Where("id = ?", id).First(&exp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("data export", id)
		}
		return nil, dbError(err, "get_data_export", "", "export_id", id)
	}
	return &exp, nil
}

// ArchiveExport returns the permanent archive snapshot for a release, or nil
// if the release has not been activated yet.
func (ds *DataStore) ArchiveExport(releaseID uint) (*DataExport, error) {
	var exp DataExport
	err := ds.DB.Where("data_release_id = ? AND in_data_archive = ?", releaseID, true).
		First(&exp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(err, "archive_export", "", "release_id", releaseID)
	}
	return &exp, nil
}

// UpdateExportStatus transitions an export's generation status.
func (ds *DataStore) UpdateExportStatus(id uuid.UUID, status int) error {
	result := ds.DB.Model(&DataExport{}).Where("id = ?", id).
		Update("export_status", status)
	if result.Error != nil {
		return dbError(result.Error, "update_export_status", "", "export_id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("data export", id)
	}
	return nil
}

// UpdateExportProgress records generation progress as a percentage.
func (ds *DataStore) UpdateExportProgress(id uuid.UUID, progress float64) error {
	err := ds.DB.Model(&DataExport{}).Where("id = ?", id).
		Update("progress", progress).Error
	if err != nil {
		return dbError(err, "update_export_progress", "", "export_id", id)
	}
	return nil
}

// SetExportFile records the path of the generated archive.
func (ds *DataStore) SetExportFile(id uuid.UUID, path string) error {
	err := ds.DB.Model(&DataExport{}).Where("id = ?", id).
		Update("file_path", path).Error
	if err != nil {
		return dbError(err, "set_export_file", "", "export_id", id)
	}
	return nil
}

// exportQuery builds the filtered row selection for an export.
func (ds *DataStore) exportQuery(exp *DataExport) *gorm.DB {
	query := ds.DB.Model(&AggregatedClassification{}).
		Joins("JOIN fold_candidates ON fold_candidates.id = aggregated_classifications.fold_candidate_id").
		Joins("JOIN stars ON stars.id = fold_candidates.star_id").
		Where("aggregated_classifications.data_release_id = ?", exp.DataReleaseID)

	var classes []Classification
	if exp.TypePulsator {
		classes = append(classes, ClassPulsator)
	}
	if exp.TypeEAEB {
		classes = append(classes, ClassEAEB)
	}
	if exp.TypeEW {
		classes = append(classes, ClassEW)
	}
	if exp.TypeRotator {
		classes = append(classes, ClassRotator)
	}
	if exp.TypeUnknown {
		classes = append(classes, ClassUnknown)
	}
	query = query.Where("aggregated_classifications.classification IN ?", classes)

	var certainties []PeriodUncertainty
	if exp.CertainPeriod {
		certainties = append(certainties, PeriodCertain)
	}
	if exp.UncertainPeriod {
		certainties = append(certainties, PeriodUncertain)
	}
	query = query.Where("aggregated_classifications.period_uncertainty IN ?", certainties)

	if exp.MinPeriod != nil {
		query = query.Where("fold_candidates.period_length >= ?", *exp.MinPeriod)
	}
	if exp.MaxPeriod != nil {
		query = query.Where("fold_candidates.period_length <= ?", *exp.MaxPeriod)
	}
	if exp.MinMagnitude != nil {
		query = query.Where("stars.mean_magnitude >= ?", *exp.MinMagnitude)
	}
	if exp.MaxMagnitude != nil {
		query = query.Where("stars.mean_magnitude <= ?", *exp.MaxMagnitude)
	}
	if exp.MinAmplitude != nil {
		query = query.Where("stars.amplitude >= ?", *exp.MinAmplitude)
	}
	if exp.MaxAmplitude != nil {
		query = query.Where("stars.amplitude <= ?", *exp.MaxAmplitude)
	}
	if exp.MinClassifications != nil {
		query = query.Where("aggregated_classifications.classification_count >= ?", *exp.MinClassifications)
	}
	if exp.MaxClassifications != nil {
		query = query.Where("aggregated_classifications.classification_count <= ?", *exp.MaxClassifications)
	}
	if exp.Search != nil && *exp.Search != "" {
		query = query.Where("stars.wasp_id LIKE ?", "%"+*exp.Search+"%")
	}

	return query
}

// CountExportRows returns how many rows an export's filters select.
func (ds *DataStore) CountExportRows(exp *DataExport) (int64, error) {
	var count int64
	if err := ds.exportQuery(exp).Count(&count).Error; err != nil {
		return 0, dbError(err, "count_export_rows", "", "export_id", exp.ID)
	}
	return count, nil
}

// ForEachExportRow streams the export's rows in batches with the fold
// candidate and star preloaded, in stable id order.
func (ds *DataStore) ForEachExportRow(exp *DataExport, batchSize int, fn func(*AggregatedClassification) error) error {
	var rows []AggregatedClassification
	var callbackErr error

	result := ds.exportQuery(exp).
		Preload("FoldCandidate").
		Preload("FoldCandidate.Star").
		Order("aggregated_classifications.id").
		FindInBatches(&rows, batchSize, func(tx *gorm.DB, batch int) error {
			for i := range rows {
				if err := fn(&rows[i]); err != nil {
					callbackErr = err
					return err
				}
			}
			return nil
		})
	if callbackErr != nil {
		return callbackErr
	}
	if result.Error != nil {
		return dbError(result.Error, "for_each_export_row", "", "export_id", exp.ID)
	}
	return nil
}
