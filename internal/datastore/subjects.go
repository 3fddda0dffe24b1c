package datastore

import (
	"gorm.io/gorm"

	"github.com/superwasp/vespa/internal/errors"
)

// GetCrowdSubject retrieves the subject link for a platform subject id,
// with its fold candidate preloaded. Returns nil without error when the
// subject has not been linked yet.
func (ds *DataStore) GetCrowdSubject(zooniverseID int64) (*CrowdSubject, error) {
	var subject CrowdSubject
	err := ds.DB.Preload("FoldCandidate").
		Where("zooniverse_id = ?", zooniverseID).
		First(&subject).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(err, "get_crowd_subject", "", "zooniverse_id", zooniverseID)
	}
	return &subject, nil
}

// StaleMetadataSubjects lists subjects whose pushed metadata predates the
// current metadata version, ordered by external id for deterministic sync runs.
func (ds *DataStore) StaleMetadataSubjects(currentVersion float64, limit int) ([]CrowdSubject, error) {
	var subjects []CrowdSubject
	query := ds.DB.Preload("FoldCandidate").Preload("FoldCandidate.Star").
		Where("metadata_version IS NULL OR metadata_version < ?", currentVersion).
		Order("zooniverse_id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&subjects).Error; err != nil {
		return nil, dbError(err, "stale_metadata_subjects", "")
	}
	return subjects, nil
}

// SetSubjectMetadataVersion stamps a subject after its metadata has been pushed.
func (ds *DataStore) SetSubjectMetadataVersion(id uint, version float64) error {
	result := ds.DB.Model(&CrowdSubject{}).Where("id = ?", id).
		Update("metadata_version", version)
	if result.Error != nil {
		return dbError(result.Error, "set_subject_metadata_version", "", "subject_id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("crowd subject", id)
	}
	return nil
}

// GetFoldCandidate retrieves a fold candidate with its star preloaded.
func (ds *DataStore) GetFoldCandidate(id uint) (*FoldCandidate, error) {
	var fc FoldCandidate
	if err := ds.DB.Preload("Star").First(&fc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("fold candidate", id)
		}
		return nil, dbError(err, "get_fold_candidate", "", "candidate_id", id)
	}
	return &fc, nil
}

// SetFoldCandidateImageState transitions the candidate's rendered image state
// and optionally stamps a new image version.
func (ds *DataStore) SetFoldCandidateImageState(id uint, state string, version *float64) error {
	updates := map[string]any{"image_state": state}
	if version != nil {
		updates["image_version"] = *version
	}
	result := ds.DB.Model(&FoldCandidate{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return dbError(result.Error, "set_image_state", "", "candidate_id", id, "state", state)
	}
	if result.RowsAffected == 0 {
		return notFoundError("fold candidate", id)
	}
	return nil
}
