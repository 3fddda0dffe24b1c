package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superwasp/vespa/internal/datastore"
)

// recordingInvalidator collects regeneration signals.
type recordingInvalidator struct {
	signals []uint
}

func (r *recordingInvalidator) Signal(candidateID uint) {
	r.signals = append(r.signals, candidateID)
}

func floatPtr(v float64) *float64 { return &v }

func TestActivatePromotesAndSignals(t *testing.T) {
	settings := pipelineSettings(t, "", "")
	store := openStore(t, settings)

	release, err := store.CreateDataRelease(nil)
	require.NoError(t, err)

	// Materialize a candidate in one release, then stage a correction for
	// it from a second pass with drifted values.
	outcome, err := store.MaterializeClassification(&datastore.MaterializedRow{
		DataReleaseID:       release.ID,
		WaspID:              "1SWASP J045245.63+214109.1",
		ZooniverseID:        1,
		PeriodNumber:        1,
		PeriodLength:        floatPtr(429000),
		Sigma:               floatPtr(0.3),
		ChiSquared:          floatPtr(2.4),
		Classification:      datastore.ClassPulsator,
		PeriodUncertainty:   datastore.PeriodCertain,
		ClassificationCount: 3,
	})
	require.NoError(t, err)

	second, err := store.CreateDataRelease(nil)
	require.NoError(t, err)
	_, err = store.MaterializeClassification(&datastore.MaterializedRow{
		DataReleaseID:       second.ID,
		WaspID:              "1SWASP J045245.63+214109.1",
		ZooniverseID:        1,
		PeriodNumber:        1,
		PeriodLength:        floatPtr(430000),
		Sigma:               floatPtr(0.2),
		ChiSquared:          floatPtr(2.0),
		Classification:      datastore.ClassPulsator,
		PeriodUncertainty:   datastore.PeriodCertain,
		ClassificationCount: 4,
	})
	require.NoError(t, err)

	invalidator := &recordingInvalidator{}
	activator := NewActivator(store, invalidator, nil)

	result, err := activator.Activate(second.ID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyActive)
	assert.Equal(t, []uint{outcome.FoldCandidateID}, result.PromotedIDs)
	assert.Equal(t, []uint{outcome.FoldCandidateID}, invalidator.signals,
		"each promoted candidate gets a regeneration signal")

	fc, err := store.GetFoldCandidate(outcome.FoldCandidateID)
	require.NoError(t, err)
	require.NotNil(t, fc.PeriodLength)
	assert.InDelta(t, 430000, *fc.PeriodLength, 1e-9)
	assert.Equal(t, datastore.ImageStale, fc.ImageState)
}

func TestActivateAlreadyActiveSignalsNothing(t *testing.T) {
	settings := pipelineSettings(t, "", "")
	store := openStore(t, settings)

	release, err := store.CreateDataRelease(nil)
	require.NoError(t, err)

	invalidator := &recordingInvalidator{}
	activator := NewActivator(store, invalidator, nil)

	_, err = activator.Activate(release.ID)
	require.NoError(t, err)

	result, err := activator.Activate(release.ID)
	require.NoError(t, err)
	assert.True(t, result.AlreadyActive)
	assert.Empty(t, invalidator.signals)
}
