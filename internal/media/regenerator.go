// Package media manages the rendered lightcurve images for fold candidates.
package media

import (
	"context"
	"log/slog"
	"sync"

	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/logging"
)

// CurrentImageVersion stamps candidates rendered with the current plot
// layout; bump it to force regeneration on the next signal.
const CurrentImageVersion = 1.0

// Renderer draws the folded lightcurve plot for a candidate.
type Renderer interface {
	Render(ctx context.Context, candidate *datastore.FoldCandidate) error
}

// Regenerator regenerates candidate images in the background. Signals are
// fire and forget: a full queue drops the signal, because a candidate left
// in the stale state is picked up by the next sweep anyway.
type Regenerator struct {
	store    datastore.Interface
	renderer Renderer
	jobs     chan uint
	logger   *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// mu guards closed, so a Signal racing Stop never sends on the
	// closed jobs channel.
	mu     sync.Mutex
	closed bool
}

// NewRegenerator creates a regenerator with the given queue depth.
func NewRegenerator(store datastore.Interface, renderer Renderer, queueDepth int) *Regenerator {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Regenerator{
		store:    store,
		renderer: renderer,
		jobs:     make(chan uint, queueDepth),
		logger:   logging.ForService("release"),
	}
}

// Start launches the worker goroutines. Calling Start more than once is a
// no-op.
func (r *Regenerator) Start(ctx context.Context, workers int) {
	r.startOnce.Do(func() {
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.run(ctx)
			}()
		}
	})
}

// Signal requests regeneration of a candidate's image. It never blocks.
// Signals racing or following Stop are dropped.
func (r *Regenerator) Signal(candidateID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.jobs <- candidateID:
	default:
		r.logger.Debug("regeneration queue full, signal dropped", "candidate_id", candidateID)
	}
}

// Stop drains outstanding signals and waits for the workers to exit.
func (r *Regenerator) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.jobs)
	})
	r.wg.Wait()
}

func (r *Regenerator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case candidateID, ok := <-r.jobs:
			if !ok {
				return
			}
			if err := r.regenerate(ctx, candidateID); err != nil {
				r.logger.Error("image regeneration failed",
					"candidate_id", candidateID,
					"error", err)
			}
		}
	}
}

// regenerate renders one candidate's image and advances its state machine:
// stale or missing → generating → current, back to stale on failure.
func (r *Regenerator) regenerate(ctx context.Context, candidateID uint) error {
	candidate, err := r.store.GetFoldCandidate(candidateID)
	if err != nil {
		return err
	}
	if candidate.ImageState == datastore.ImageCurrent &&
		candidate.ImageVersion != nil && *candidate.ImageVersion >= CurrentImageVersion {
		return nil
	}

	if err := r.store.SetFoldCandidateImageState(candidateID, datastore.ImageGenerating, nil); err != nil {
		return err
	}

	if err := r.renderer.Render(ctx, candidate); err != nil {
		if stateErr := r.store.SetFoldCandidateImageState(candidateID, datastore.ImageStale, nil); stateErr != nil {
			return stateErr
		}
		return err
	}

	version := CurrentImageVersion
	return r.store.SetFoldCandidateImageState(candidateID, datastore.ImageCurrent, &version)
}
