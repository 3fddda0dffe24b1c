package release

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/zooniverse"
)

// stubSource returns a fixed vote table.
type stubSource struct {
	votes []zooniverse.Vote
	calls int
}

func (s *stubSource) Votes(_ context.Context, _ *datastore.DataRelease) ([]zooniverse.Vote, error) {
	s.calls++
	return s.votes, nil
}

func pipelineSettings(t *testing.T, lookup, results string) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lookup.dat"), []byte(lookup), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "results_total.dat"), []byte(results), 0o644))

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"
	settings.Import.Root = dir
	settings.Import.LookupFile = "lookup.dat"
	settings.Import.ResultsFile = "results_total.dat"
	settings.Release.CheckpointInterval = 500
	return settings
}

func openStore(t *testing.T, settings *conf.Settings) datastore.Interface {
	t.Helper()
	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func vote(subjectID int64, user, class, certainty string) zooniverse.Vote {
	v := zooniverse.Vote{SubjectID: subjectID, UserName: user, Class: class}
	if certainty != "" {
		v.Certainty = class + " " + certainty
	}
	return v
}

func TestAggregateFullPipeline(t *testing.T) {
	settings := pipelineSettings(t,
		"1 1SWASPJ045245.63+214109.1 429000.123 1\n",
		"1 1SWASP J045245.63+214109.1 1 429000.125 0.31 2.4 0\n")
	store := openStore(t, settings)

	release, err := store.CreateDataRelease(nil)
	require.NoError(t, err)

	source := &stubSource{votes: []zooniverse.Vote{
		vote(1, "alice", zooniverse.LabelPulsator, zooniverse.CertaintyCorrect),
		vote(1, "bob", zooniverse.LabelPulsator, zooniverse.CertaintyCorrect),
		vote(1, "carol", zooniverse.LabelRotator, ""),
	}}
	runner := NewRunner(store, source, settings, nil)

	stats, err := runner.Aggregate(context.Background(), release)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rows)
	assert.Equal(t, 1, stats.StarsCreated)
	assert.Equal(t, 1, stats.CandidatesCreated)
	assert.Equal(t, 1, stats.SubjectsCreated)

	subject, err := store.GetCrowdSubject(1)
	require.NoError(t, err)
	require.NotNil(t, subject)

	fc, err := store.GetFoldCandidate(subject.FoldCandidateID)
	require.NoError(t, err)
	assert.Equal(t, "1SWASPJ045245.63+214109.1", fc.Star.WaspID)
	require.NotNil(t, fc.PeriodLength)
	assert.InDelta(t, 429000.125, *fc.PeriodLength, 1e-9)

	var classifications []datastore.AggregatedClassification
	ds := store.(*datastore.SQLiteStore)
	require.NoError(t, ds.DB.Where("data_release_id = ?", release.ID).Find(&classifications).Error)
	require.Len(t, classifications, 1)
	assert.Equal(t, datastore.ClassPulsator, classifications[0].Classification)
	assert.Equal(t, datastore.PeriodCertain, classifications[0].PeriodUncertainty)
	assert.Equal(t, 3, classifications[0].ClassificationCount, "all votes count, including the loser's")

	got, err := store.GetDataRelease(release.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.AggregationFinished)
}

func TestAggregateHalfCertaintyStoresUncertain(t *testing.T) {
	settings := pipelineSettings(t,
		"1 1SWASPJ045245.63+214109.1 429000.123 1\n",
		"1 1SWASP J045245.63+214109.1 1 429000.125 0.31 2.4 0\n")
	store := openStore(t, settings)

	release, err := store.CreateDataRelease(nil)
	require.NoError(t, err)

	source := &stubSource{votes: []zooniverse.Vote{
		vote(1, "alice", zooniverse.LabelEW, zooniverse.CertaintyHalf),
		vote(1, "bob", zooniverse.LabelEW, zooniverse.CertaintyHalf),
	}}
	runner := NewRunner(store, source, settings, nil)

	_, err = runner.Aggregate(context.Background(), release)
	require.NoError(t, err)

	var classifications []datastore.AggregatedClassification
	ds := store.(*datastore.SQLiteStore)
	require.NoError(t, ds.DB.Find(&classifications).Error)
	require.Len(t, classifications, 1)
	assert.Equal(t, datastore.ClassEW, classifications[0].Classification)
	assert.Equal(t, datastore.PeriodUncertain, classifications[0].PeriodUncertainty,
		"a half-correct period is not correct as stored")
}

func TestAggregateSkipsFinishedRelease(t *testing.T) {
	settings := pipelineSettings(t, "", "")
	store := openStore(t, settings)

	release, err := store.CreateDataRelease(nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkAggregationFinished(release.ID, time.Now()))

	source := &stubSource{}
	runner := NewRunner(store, source, settings, nil)

	stats, err := runner.Aggregate(context.Background(), release)
	require.NoError(t, err)
	assert.Zero(t, stats.Rows)
	assert.Zero(t, source.calls, "a finished release must not re-download the export")
}

func TestEnqueueAggregationRunsInBackground(t *testing.T) {
	settings := pipelineSettings(t,
		"1 1SWASPJ045245.63+214109.1 429000.123 1\n",
		"1 1SWASP J045245.63+214109.1 1 429000.125 0.31 2.4 0\n")
	store := openStore(t, settings)

	release, err := store.CreateDataRelease(nil)
	require.NoError(t, err)

	source := &stubSource{votes: []zooniverse.Vote{
		vote(1, "alice", zooniverse.LabelPulsator, zooniverse.CertaintyCorrect),
	}}
	runner := NewRunner(store, source, settings, nil)

	runner.EnqueueAggregation(context.Background(), release)
	runner.Wait()

	got, err := store.GetDataRelease(release.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.AggregationFinished)
}

func TestEnqueueAggregationSkipsFinished(t *testing.T) {
	settings := pipelineSettings(t, "", "")
	store := openStore(t, settings)

	release, err := store.CreateDataRelease(nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkAggregationFinished(release.ID, time.Now()))
	release, err = store.GetDataRelease(release.ID)
	require.NoError(t, err)

	source := &stubSource{}
	runner := NewRunner(store, source, settings, nil)

	runner.EnqueueAggregation(context.Background(), release)
	runner.Wait()
	assert.Zero(t, source.calls)
}
