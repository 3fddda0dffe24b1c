package release

import (
	"time"

	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/logging"
	"github.com/superwasp/vespa/internal/metrics"
)

// ImageInvalidator receives fire-and-forget regeneration signals for fold
// candidates whose rendered images went stale during activation.
type ImageInvalidator interface {
	Signal(candidateID uint)
}

// Activator promotes data releases to active.
type Activator struct {
	store       datastore.Interface
	invalidator ImageInvalidator // optional
	metrics     *metrics.PipelineMetrics
}

// NewActivator creates an activator over the catalog store.
func NewActivator(store datastore.Interface, invalidator ImageInvalidator, pipelineMetrics *metrics.PipelineMetrics) *Activator {
	return &Activator{
		store:       store,
		invalidator: invalidator,
		metrics:     pipelineMetrics,
	}
}

// Activate promotes a release: staged period corrections go live, the
// permanent archive export is created and ActiveAt is stamped, all in one
// store transaction. Activating an already-active release is a no-op.
// Regeneration signals for promoted candidates are sent after the commit,
// never inside it.
func (a *Activator) Activate(releaseID uint) (*datastore.ActivationResult, error) {
	logger := logging.ForService("release")

	result, err := a.store.ActivateDataRelease(releaseID, time.Now())
	if err != nil {
		return nil, err
	}
	if result.AlreadyActive {
		logger.Info("release already active, nothing promoted",
			"release_version", result.Release.Version)
		return result, nil
	}

	if a.invalidator != nil {
		for _, candidateID := range result.PromotedIDs {
			a.invalidator.Signal(candidateID)
		}
	}
	if a.metrics != nil {
		a.metrics.ReleasesActivated.Inc()
	}

	logger.Info("release activated",
		"release_version", result.Release.Version,
		"promoted_candidates", len(result.PromotedIDs),
		"archive_export", result.ArchiveExport.ID)

	return result, nil
}
