package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/datastore"
)

func floatPtr(v float64) *float64 { return &v }

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"
	settings.Export.Dir = t.TempDir()
	return settings
}

func openStore(t *testing.T, settings *conf.Settings) datastore.Interface {
	t.Helper()
	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

// seedRelease materializes one classified candidate with star statistics
// and returns the release.
func seedRelease(t *testing.T, store datastore.Interface) *datastore.DataRelease {
	t.Helper()

	release, err := store.CreateDataRelease(nil)
	require.NoError(t, err)

	outcome, err := store.MaterializeClassification(&datastore.MaterializedRow{
		DataReleaseID:       release.ID,
		WaspID:              "1SWASP J045245.63+214109.1",
		ZooniverseID:        1,
		PeriodNumber:        1,
		PeriodLength:        floatPtr(429000.125),
		Sigma:               floatPtr(0.31),
		ChiSquared:          floatPtr(2.4),
		Classification:      datastore.ClassPulsator,
		PeriodUncertainty:   datastore.PeriodCertain,
		ClassificationCount: 3,
	})
	require.NoError(t, err)

	fc, err := store.GetFoldCandidate(outcome.FoldCandidateID)
	require.NoError(t, err)
	require.NoError(t, store.SaveStarStats(fc.StarID, datastore.StarStats{
		MinMagnitude:  12.5,
		MeanMagnitude: 12.0,
		MaxMagnitude:  11.5,
		Amplitude:     1.0,
		Version:       1.0,
	}))

	return release
}

func unfilteredExport(release *datastore.DataRelease) *datastore.DataExport {
	return &datastore.DataExport{
		DataReleaseID: release.ID,
		DataVersion:   release.Version,
		CertainPeriod: true, UncertainPeriod: true,
		TypePulsator: true, TypeRotator: true, TypeEW: true,
		TypeEAEB: true, TypeUnknown: true,
	}
}

func readArchiveFile(t *testing.T, archive *zip.Reader, name string) []byte {
	t.Helper()
	f, err := archive.Open(name)
	require.NoError(t, err, "archive must contain %s", name)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

func TestGenerateWritesArchive(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	release := seedRelease(t, store)

	exp := unfilteredExport(release)
	require.NoError(t, store.CreateDataExport(exp))

	generator := NewGenerator(store, settings, nil)
	require.NoError(t, generator.Generate(context.Background(), exp.ID))

	got, err := store.GetDataExport(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.ExportComplete, got.ExportStatus)
	assert.InDelta(t, 100, got.Progress, 1e-9)
	assert.Equal(t, filepath.Join(settings.Export.Dir, exp.ID.String(), ArchiveFileName), got.FilePath)

	reader, err := zip.OpenReader(got.FilePath)
	require.NoError(t, err)
	defer reader.Close()

	records, err := csv.NewReader(
		bytes.NewReader(readArchiveFile(t, &reader.Reader, "export.csv"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2, "header plus one row")
	assert.Equal(t, Header(), records[0])

	row := records[1]
	assert.Equal(t, "1SWASP J045245.63+214109.1", row[0])
	assert.Equal(t, "429000.125", row[1])
	assert.Equal(t, "11.5", row[4], "maximum magnitude is the brightest")
	assert.Equal(t, "12.5", row[5])
	assert.Equal(t, "Pulsator", row[8])
	assert.Equal(t, "3", row[9])
	assert.Equal(t, "Certain", row[10])
	assert.Equal(t, "0.31", row[11])

	var fields map[string]string
	require.NoError(t, yaml.Unmarshal(readArchiveFile(t, &reader.Reader, "fields.yaml"), &fields))
	assert.Len(t, fields, len(Fields))
	assert.Equal(t, "The period length in seconds", fields["Period Length"])

	var params map[string]any
	require.NoError(t, yaml.Unmarshal(readArchiveFile(t, &reader.Reader, "params.yaml"), &params))
	assert.EqualValues(t, 1, params["object_count"])
	assert.EqualValues(t, 1, params["data_version"])
	assert.Equal(t, true, params["type_pulsator"])
	assert.Nil(t, params["min_period"])
}

func TestGenerateAppliesFilters(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	release := seedRelease(t, store)

	exp := unfilteredExport(release)
	exp.TypePulsator = false // the only seeded row is a pulsator
	require.NoError(t, store.CreateDataExport(exp))

	generator := NewGenerator(store, settings, nil)
	require.NoError(t, generator.Generate(context.Background(), exp.ID))

	got, err := store.GetDataExport(exp.ID)
	require.NoError(t, err)

	reader, err := zip.OpenReader(got.FilePath)
	require.NoError(t, err)
	defer reader.Close()

	records, err := csv.NewReader(
		bytes.NewReader(readArchiveFile(t, &reader.Reader, "export.csv"))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1, "header only")
}

func TestGenerateNoOpWhenComplete(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	release := seedRelease(t, store)

	exp := unfilteredExport(release)
	require.NoError(t, store.CreateDataExport(exp))
	require.NoError(t, store.UpdateExportStatus(exp.ID, datastore.ExportComplete))

	generator := NewGenerator(store, settings, nil)
	require.NoError(t, generator.Generate(context.Background(), exp.ID))

	_, err := os.Stat(filepath.Join(settings.Export.Dir, exp.ID.String(), ArchiveFileName))
	assert.True(t, os.IsNotExist(err), "a complete export is not regenerated")
}

func TestGenerateNoOpWhenRunning(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	release := seedRelease(t, store)

	exp := unfilteredExport(release)
	require.NoError(t, store.CreateDataExport(exp))
	require.NoError(t, store.UpdateExportStatus(exp.ID, datastore.ExportRunning))

	generator := NewGenerator(store, settings, nil)
	require.NoError(t, generator.Generate(context.Background(), exp.ID))

	got, err := store.GetDataExport(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.ExportRunning, got.ExportStatus, "status is left alone")
}

func TestGenerateFailureMarksFailed(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	release := seedRelease(t, store)

	// A file where the export directory should be makes generation fail
	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte(""), 0o644))
	settings.Export.Dir = blocked

	exp := unfilteredExport(release)
	require.NoError(t, store.CreateDataExport(exp))

	generator := NewGenerator(store, settings, nil)
	err := generator.Generate(context.Background(), exp.ID)
	require.Error(t, err)

	got, err := store.GetDataExport(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.ExportFailed, got.ExportStatus)
}

func TestGenerateRetriesFailedExport(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	release := seedRelease(t, store)

	exp := unfilteredExport(release)
	require.NoError(t, store.CreateDataExport(exp))
	require.NoError(t, store.UpdateExportStatus(exp.ID, datastore.ExportFailed))

	generator := NewGenerator(store, settings, nil)
	require.NoError(t, generator.Generate(context.Background(), exp.ID))

	got, err := store.GetDataExport(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.ExportComplete, got.ExportStatus)
}
