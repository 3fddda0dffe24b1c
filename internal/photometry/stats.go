package photometry

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/errors"
	"github.com/superwasp/vespa/internal/logging"
)

const (
	// FluxMaxClip removes instrumental artifacts before statistics.
	FluxMaxClip = 2e5
	// OutlierSigmaClip is the clip width of the iterative sigma clip.
	OutlierSigmaClip = 5
	// maxClipIterations bounds the sigma clip when it oscillates.
	maxClipIterations = 5

	// CurrentStatsVersion stamps stars whose statistics were computed with
	// the current algorithm; bump it to force recomputation.
	CurrentStatsVersion = 1.0
)

// OutlierClip removes flux samples outside the instrumental range and then
// sigma clips around the median until the sample converges.
func OutlierClip(flux []float64) []float64 {
	kept := make([]float64, 0, len(flux))
	for _, f := range flux {
		if f < -FluxMaxClip || f > FluxMaxClip {
			continue
		}
		kept = append(kept, f)
	}

	for iter := 0; iter < maxClipIterations; iter++ {
		if len(kept) == 0 {
			break
		}
		center := median(kept)
		sigma := stat.StdDev(kept, nil)
		if sigma == 0 {
			break
		}
		low, high := center-OutlierSigmaClip*sigma, center+OutlierSigmaClip*sigma

		next := kept[:0]
		for _, f := range kept {
			if f < low || f > high {
				continue
			}
			next = append(next, f)
		}
		if len(next) == len(kept) {
			break
		}
		kept = next
	}
	return kept
}

func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// ComputeStats derives the magnitude statistics from raw flux samples.
// Magnitudes follow the survey calibration 15 − 2.5·log10(flux); the
// minimum flux therefore yields the numerically largest magnitude.
func ComputeStats(flux []float64) (*datastore.StarStats, error) {
	clipped := OutlierClip(flux)
	if len(clipped) == 0 {
		return nil, errors.Newf("no usable flux samples after clipping").
			Component("photometry").
			Category(errors.CategoryPhotometry).
			Context("samples", len(flux)).
			Build()
	}

	minFlux, maxFlux := clipped[0], clipped[0]
	for _, f := range clipped[1:] {
		minFlux = math.Min(minFlux, f)
		maxFlux = math.Max(maxFlux, f)
	}
	meanFlux := stat.Mean(clipped, nil)
	if minFlux <= 0 || meanFlux <= 0 {
		return nil, errors.Newf("flux must be positive to compute magnitudes").
			Component("photometry").
			Category(errors.CategoryPhotometry).
			Context("min_flux", minFlux).
			Build()
	}

	minMagnitude := magnitude(minFlux)
	maxMagnitude := magnitude(maxFlux)

	return &datastore.StarStats{
		MinMagnitude:  minMagnitude,
		MeanMagnitude: magnitude(meanFlux),
		MaxMagnitude:  maxMagnitude,
		Amplitude:     minMagnitude - maxMagnitude,
		Version:       CurrentStatsVersion,
	}, nil
}

func magnitude(flux float64) float64 {
	return 15 - 2.5*math.Log10(flux)
}

// FluxSource fetches raw photometry for a star.
type FluxSource interface {
	Flux(ctx context.Context, waspID string) ([]float64, error)
}

// Updater computes and stores statistics for stars that lack them.
type Updater struct {
	store       datastore.Interface
	source      FluxSource
	maxAttempts int
}

// NewUpdater creates an updater over the catalog store and a flux source.
func NewUpdater(store datastore.Interface, source FluxSource, settings *conf.Settings) *Updater {
	return &Updater{
		store:       store,
		source:      source,
		maxAttempts: settings.Release.FitsAttempts,
	}
}

// UpdateStats result counters.
type UpdateResult struct {
	Updated      int
	FetchFailed  int
	Uncomputable int
}

// UpdateStats fetches flux and stores statistics for up to limit stars
// without them. Fetch failures increment the star's error counter; stars
// that reached the attempt limit are not selected again.
func (u *Updater) UpdateStats(ctx context.Context, limit int) (*UpdateResult, error) {
	logger := logging.ForService("release")

	stars, err := u.store.StarsWithoutStats(u.maxAttempts, limit)
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{}
	for i := range stars {
		star := &stars[i]
		if err := ctx.Err(); err != nil {
			return result, err
		}

		flux, err := u.source.Flux(ctx, star.WaspID)
		if err != nil {
			count, incErr := u.store.IncrementFitsErrorCount(star.ID)
			if incErr != nil {
				return result, incErr
			}
			logger.Warn("flux fetch failed",
				"wasp_id", star.WaspID,
				"attempts", count,
				"error", err)
			result.FetchFailed++
			continue
		}

		stats, err := ComputeStats(flux)
		if err != nil {
			logger.Warn("statistics not computable", "wasp_id", star.WaspID, "error", err)
			result.Uncomputable++
			continue
		}
		if err := u.store.SaveStarStats(star.ID, *stats); err != nil {
			return result, err
		}
		result.Updated++
	}

	logger.Info("star statistics updated",
		"updated", result.Updated,
		"fetch_failed", result.FetchFailed,
		"uncomputable", result.Uncomputable)
	return result, nil
}
