package zooniverse

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superwasp/vespa/internal/conf"
)

func testClient(commit bool) *Client {
	settings := &conf.Settings{}
	settings.Zooniverse.BaseURL = "https://panoptes.example.org/api"
	settings.Zooniverse.ProjectID = 5432
	settings.Zooniverse.CommitChanges = commit
	return NewClient(settings)
}

func TestClassificationExport(t *testing.T) {
	client := testClient(false)
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	const body = "classification_id,user_name\n1,alice\n"
	httpmock.RegisterResponder(http.MethodGet,
		"https://panoptes.example.org/api/projects/5432/classifications_export",
		httpmock.NewStringResponder(http.StatusOK, body))

	stream, err := client.ClassificationExport(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestClassificationExportServerError(t *testing.T) {
	client := testClient(false)
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet,
		"https://panoptes.example.org/api/projects/5432/classifications_export",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "busy"))

	_, err := client.ClassificationExport(context.Background())
	assert.Error(t, err)
}

func TestUpdateSubjectMetadataDryRun(t *testing.T) {
	client := testClient(false)
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	// No responder registered: a real request would fail, proving the dry
	// run never sends one.
	err := client.UpdateSubjectMetadata(context.Background(), 42, map[string]string{
		MetadataKeySimbad: "http://simbad.example.org/",
	})
	assert.NoError(t, err)
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestUpdateSubjectMetadataCommit(t *testing.T) {
	client := testClient(true)
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPut,
		"https://panoptes.example.org/api/subjects/42",
		httpmock.NewStringResponder(http.StatusOK, "{}"))

	err := client.UpdateSubjectMetadata(context.Background(), 42, map[string]string{
		MetadataKeySimbad: "http://simbad.example.org/",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
