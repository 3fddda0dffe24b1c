// model.go this code defines the data model for the star catalog
package datastore

import (
	"time"

	"github.com/google/uuid"
)

// Classification is the consensus variable-star type for a fold candidate.
type Classification int

const (
	ClassPulsator Classification = 1
	ClassEAEB     Classification = 2
	ClassEW       Classification = 3
	ClassRotator  Classification = 4
	ClassUnknown  Classification = 5
	ClassJunk     Classification = 6
)

// String returns the display label used by exports and the web frontend.
func (c Classification) String() string {
	switch c {
	case ClassPulsator:
		return "Pulsator"
	case ClassEAEB:
		return "EA/EB"
	case ClassEW:
		return "EW"
	case ClassRotator:
		return "Rotator"
	case ClassUnknown:
		return "Unknown"
	case ClassJunk:
		return "Junk"
	default:
		return "Invalid"
	}
}

// PeriodUncertainty records whether the crowd judged the folding period correct.
type PeriodUncertainty int

const (
	PeriodCertain   PeriodUncertainty = 0
	PeriodUncertain PeriodUncertainty = 1
)

func (p PeriodUncertainty) String() string {
	switch p {
	case PeriodCertain:
		return "Certain"
	case PeriodUncertain:
		return "Uncertain"
	default:
		return "Invalid"
	}
}

// Image generation states for a fold candidate's rendered lightcurve plot.
// Generation is scheduled explicitly, never as a side effect of a read.
const (
	ImageMissing    = "missing"
	ImageStale      = "stale"
	ImageGenerating = "generating"
	ImageCurrent    = "current"
)

// Star represents a photometric survey source. Stars are created on first
// reference by their survey designation and never deleted.
type Star struct {
	ID     uint   `gorm:"primaryKey"`
	WaspID string `gorm:"uniqueIndex;not null;size:26"` // survey designation, encodes celestial coordinates

	FitsErrorCount int // failed raw photometry fetch attempts

	// Derived photometric statistics, computed lazily and versioned
	MinMagnitude  *float64
	MeanMagnitude *float64
	MaxMagnitude  *float64
	Amplitude     *float64
	StatsVersion  *float64

	FoldCandidates []FoldCandidate `gorm:"foreignKey:StarID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FoldCandidate is a candidate periodicity found for a star, represented by
// its folded lightcurve. Uniqueness on (StarID, PeriodNumber) is a soft
// invariant: historical imports contain duplicates, resolved by first match.
type FoldCandidate struct {
	ID           uint `gorm:"primaryKey"`
	StarID       uint `gorm:"index:idx_fold_star_period;not null"`
	Star         Star `gorm:"foreignKey:StarID"`
	PeriodNumber int  `gorm:"index:idx_fold_star_period"`

	// Live fields from the original period search
	PeriodLength *float64 // seconds
	Sigma        *float64
	ChiSquared   *float64

	// Staged corrections, promoted to the live fields when a data release
	// is activated. Either all null or all set.
	UpdatedPeriodLength *float64
	UpdatedSigma        *float64
	UpdatedChiSquared   *float64

	ImageState   string `gorm:"size:16;default:missing"`
	ImageVersion *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasStagedCorrection reports whether all three staged fields are set.
func (fc *FoldCandidate) HasStagedCorrection() bool {
	return fc.UpdatedPeriodLength != nil && fc.UpdatedSigma != nil && fc.UpdatedChiSquared != nil
}

// CrowdSubject links a fold candidate to the crowd-sourcing platform's unit
// of work. The external id is globally unique and maps to at most one
// fold candidate.
type CrowdSubject struct {
	ID              uint  `gorm:"primaryKey"`
	ZooniverseID    int64 `gorm:"uniqueIndex;not null"`
	FoldCandidateID uint  `gorm:"uniqueIndex;not null"`
	FoldCandidate   FoldCandidate `gorm:"foreignKey:FoldCandidateID"`

	SubjectSetID    *int64
	RetiredAt       *time.Time
	ImageLocation   *string
	MetadataVersion *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DataRelease is a versioned, point-in-time snapshot of aggregated
// classifications and corrected periods. Version is monotonically
// increasing; ActiveAt is set at most once, on first promotion.
type DataRelease struct {
	ID      uint    `gorm:"primaryKey"`
	Version float64 `gorm:"uniqueIndex;not null"`

	Active bool

	CreatedAt           time.Time
	AggregationFinished *time.Time // null until the aggregation pipeline completes
	ActiveAt            *time.Time // null until promoted
}

// AggregatedClassification is the consensus crowd verdict for one fold
// candidate in one data release. Rows are append-only: each release's
// aggregation pass creates fresh rows, forming a per-candidate history.
type AggregatedClassification struct {
	ID              uint `gorm:"primaryKey"`
	DataReleaseID   uint `gorm:"index;not null"`
	FoldCandidateID uint `gorm:"index;not null"`
	FoldCandidate   FoldCandidate `gorm:"foreignKey:FoldCandidateID"`

	Classification    Classification
	PeriodUncertainty PeriodUncertainty
	// Total votes received including Junk, not just votes for the winner
	ClassificationCount int

	CreatedAt time.Time
}

// Export generation states.
const (
	ExportPending  = 0
	ExportRunning  = 1
	ExportComplete = 2
	ExportFailed   = 3
)

// ExportStatusLabel maps an export status to its display label.
func ExportStatusLabel(status int) string {
	switch status {
	case ExportPending:
		return "Pending"
	case ExportRunning:
		return "Running"
	case ExportComplete:
		return "Complete"
	case ExportFailed:
		return "Failed"
	default:
		return "Invalid"
	}
}

// DataExport records a filtered CSV/ZIP export of a data release. The
// activation step creates one unfiltered export per release flagged
// InDataArchive as the permanent archive snapshot.
type DataExport struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	DataReleaseID uint      `gorm:"index;not null"`
	DataVersion   float64
	InDataArchive bool

	// Filter parameters; nil means unconstrained
	MinPeriod          *float64
	MaxPeriod          *float64
	MinMagnitude       *float64
	MaxMagnitude       *float64
	MinAmplitude       *float64
	MaxAmplitude       *float64
	MinClassifications *int
	MaxClassifications *int
	CertainPeriod      bool `gorm:"default:true"`
	UncertainPeriod    bool `gorm:"default:true"`
	TypePulsator       bool `gorm:"default:true"`
	TypeRotator        bool `gorm:"default:true"`
	TypeEW             bool `gorm:"default:true"`
	TypeEAEB           bool `gorm:"default:true"`
	TypeUnknown        bool `gorm:"default:true"`
	Search             *string
	SearchRadius       *float64

	ExportStatus int `gorm:"default:0"`
	Progress     float64
	FilePath     string

	CreatedAt time.Time
	UpdatedAt time.Time
}
