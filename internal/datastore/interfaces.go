// interfaces.go: this code defines the interface for the catalog store operations
package datastore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/superwasp/vespa/internal/conf"
)

// Interface abstracts the underlying database implementation and defines
// the catalog store operations.
type Interface interface {
	Open() error
	Close() error

	// Stars
	GetOrCreateStar(waspID string) (*Star, bool, error)
	GetStar(waspID string) (*Star, error)
	SaveStarStats(starID uint, stats StarStats) error
	IncrementFitsErrorCount(starID uint) (int, error)
	StarsWithoutStats(maxFitsErrors, limit int) ([]Star, error)

	// Crowd subjects
	GetCrowdSubject(zooniverseID int64) (*CrowdSubject, error)
	StaleMetadataSubjects(currentVersion float64, limit int) ([]CrowdSubject, error)
	SetSubjectMetadataVersion(id uint, version float64) error

	// Fold candidates
	GetFoldCandidate(id uint) (*FoldCandidate, error)
	SetFoldCandidateImageState(id uint, state string, version *float64) error

	// Data releases
	CreateDataRelease(version *float64) (*DataRelease, error)
	GetDataRelease(id uint) (*DataRelease, error)
	GetDataReleaseByVersion(version float64) (*DataRelease, error)
	LatestDataRelease(activeOnly bool) (*DataRelease, error)
	ListDataReleases() ([]DataRelease, error)
	MarkAggregationFinished(releaseID uint, at time.Time) error
	ActivateDataRelease(releaseID uint, at time.Time) (*ActivationResult, error)

	// Materialization
	MaterializeClassification(row *MaterializedRow) (*MaterializeOutcome, error)

	// Exports
	CreateDataExport(exp *DataExport) error
	GetDataExport(id uuid.UUID) (*DataExport, error)
	ArchiveExport(releaseID uint) (*DataExport, error)
	UpdateExportStatus(id uuid.UUID, status int) error
	UpdateExportProgress(id uuid.UUID, progress float64) error
	SetExportFile(id uuid.UUID, path string) error
	CountExportRows(exp *DataExport) (int64, error)
	ForEachExportRow(exp *DataExport, batchSize int, fn func(*AggregatedClassification) error) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new store instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		// Settings validation rejects this before a store is constructed
		return nil
	}
}

// floatPtrEqual compares two nullable floats; two nils are equal, a nil
// never equals a value.
func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
