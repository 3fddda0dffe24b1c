package release

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/superwasp/vespa/internal/aggregation"
	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/linker"
	"github.com/superwasp/vespa/internal/logging"
	"github.com/superwasp/vespa/internal/metrics"
	"github.com/superwasp/vespa/internal/zooniverse"
)

// ExportSource supplies the deduplicated vote table for a release. The
// production implementation downloads the platform's classification export;
// tests substitute fixtures.
type ExportSource interface {
	Votes(ctx context.Context, release *datastore.DataRelease) ([]zooniverse.Vote, error)
}

// ClientExportSource obtains votes from the platform client, with the
// optional local cache consulted first.
type ClientExportSource struct {
	Client   *zooniverse.Client
	Settings *conf.Settings
	Metrics  *metrics.PipelineMetrics
}

// Votes returns the deduplicated vote table, from cache when enabled and
// fresh from the classification export otherwise.
func (s *ClientExportSource) Votes(ctx context.Context, release *datastore.DataRelease) ([]zooniverse.Vote, error) {
	zs := s.Settings.Zooniverse
	if zs.CacheExport {
		if votes, ok := zooniverse.LoadCachedVotes(zs.CacheDir, release.Version); ok {
			return votes, nil
		}
	}

	stream, err := s.Client.ClassificationExport(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	votes, _, err := zooniverse.ParseVotes(stream, zooniverse.IngestOptions{
		MainWorkflowID: zs.MainWorkflowID,
		JunkWorkflowID: zs.JunkWorkflowID,
		Metrics:        s.Metrics,
	})
	if err != nil {
		return nil, err
	}

	if zs.CacheExport {
		zooniverse.StoreCachedVotes(zs.CacheDir, release.Version, votes)
	}
	return votes, nil
}

// Runner executes the aggregation pipeline for data releases.
type Runner struct {
	store    datastore.Interface
	source   ExportSource
	linker   *linker.Linker
	settings *conf.Settings
	metrics  *metrics.PipelineMetrics

	group singleflight.Group
	wg    sync.WaitGroup
}

// NewRunner creates a runner over the catalog store and vote source.
func NewRunner(store datastore.Interface, source ExportSource, settings *conf.Settings, pipelineMetrics *metrics.PipelineMetrics) *Runner {
	return &Runner{
		store:    store,
		source:   source,
		linker:   linker.New(settings, pipelineMetrics),
		settings: settings,
		metrics:  pipelineMetrics,
	}
}

// EnqueueAggregation starts the aggregation pipeline for a release in the
// background. A release that already finished aggregating, or whose run is
// still in flight, is not started again.
func (r *Runner) EnqueueAggregation(ctx context.Context, release *datastore.DataRelease) {
	logger := logging.ForService("release")

	if release.AggregationFinished != nil {
		logger.Info("aggregation already finished, not enqueued",
			"release_version", release.Version)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, err, shared := r.group.Do(fmt.Sprintf("aggregate-%d", release.ID), func() (any, error) {
			return r.Aggregate(ctx, release)
		})
		if shared {
			logger.Debug("aggregation already in flight", "release_version", release.Version)
		}
		if err != nil {
			logger.Error("aggregation failed",
				"release_version", release.Version,
				"error", err)
		}
	}()
}

// Wait blocks until every enqueued aggregation has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Aggregate runs the pipeline synchronously: ingest votes, reduce to
// consensus, enrich against the reference tables, materialize into the
// catalog. All network I/O happens before the first store write.
func (r *Runner) Aggregate(ctx context.Context, release *datastore.DataRelease) (*MaterializeStats, error) {
	logger := logging.ForService("release")

	// Re-read the release: the enqueue check races with a finishing run
	current, err := r.store.GetDataRelease(release.ID)
	if err != nil {
		return nil, err
	}
	if current.AggregationFinished != nil {
		logger.Info("aggregation already finished", "release_version", current.Version)
		return &MaterializeStats{}, nil
	}

	var timer *metrics.AggregationTimer
	if r.metrics != nil {
		timer = r.metrics.StartAggregationTimer()
	}

	votes, err := r.source.Votes(ctx, current)
	if err != nil {
		return nil, err
	}

	consensus, _ := aggregation.Aggregate(votes, r.metrics)

	rows, _, err := r.linker.Enrich(consensus)
	if err != nil {
		return nil, err
	}

	materializer := NewMaterializer(r.store, r.metrics, r.settings.Release.CheckpointInterval)
	stats, err := materializer.Materialize(ctx, current, rows)
	if err != nil {
		return stats, err
	}

	if timer != nil {
		timer.ObserveDuration()
	}
	return stats, nil
}
