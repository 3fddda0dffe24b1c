package zooniverse

import (
	"context"
	"fmt"

	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/logging"
)

// SyncStats counts the outcome of one metadata sync run.
type SyncStats struct {
	Examined int
	Pushed   int
	Failed   int
}

// SyncSubjectMetadata pushes the cross-reference links to every subject
// whose metadata predates the current version, up to limit subjects (0 for
// all). Subjects are only stamped when changes are committed, so a dry run
// selects the same subjects again.
func SyncSubjectMetadata(ctx context.Context, store datastore.Interface, client *Client, settings *conf.Settings, limit int) (*SyncStats, error) {
	logger := logging.ForService("ingest")

	subjects, err := store.StaleMetadataSubjects(CurrentMetadataVersion, limit)
	if err != nil {
		return nil, err
	}

	stats := &SyncStats{}
	for i := range subjects {
		subject := &subjects[i]
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Examined++

		candidatePath := fmt.Sprintf("/vespa/candidates/%d", subject.FoldCandidateID)
		metadata, err := SubjectMetadata(subject.FoldCandidate.Star.WaspID, settings.Zooniverse.CatalogHost, candidatePath)
		if err != nil {
			logger.Warn("subject metadata not built",
				"zooniverse_id", subject.ZooniverseID,
				"error", err)
			stats.Failed++
			continue
		}

		if err := client.UpdateSubjectMetadata(ctx, subject.ZooniverseID, metadata); err != nil {
			logger.Warn("subject metadata push failed",
				"zooniverse_id", subject.ZooniverseID,
				"error", err)
			stats.Failed++
			continue
		}
		stats.Pushed++

		// A dry run pushes nothing, so nothing is stamped either.
		if settings.Zooniverse.CommitChanges {
			if err := store.SetSubjectMetadataVersion(subject.ID, CurrentMetadataVersion); err != nil {
				return stats, err
			}
		}
	}

	logger.Info("subject metadata sync finished",
		"examined", stats.Examined,
		"pushed", stats.Pushed,
		"failed", stats.Failed,
		"committed", settings.Zooniverse.CommitChanges)
	return stats, nil
}
