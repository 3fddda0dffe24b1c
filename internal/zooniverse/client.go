// Package zooniverse talks to the crowd-sourcing platform: it downloads
// classification exports and pushes subject metadata.
package zooniverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/errors"
	"github.com/superwasp/vespa/internal/logging"
)

const (
	ExportRequestTimeout = 10 * time.Minute
	APIRequestTimeout    = 30 * time.Second
	UserAgent            = "VeSPA"
)

// Client is an explicitly constructed handle on the platform API. It is
// owned by the invoking job; there is no package-level session state.
type Client struct {
	httpClient *http.Client
	baseURL    string
	projectID  int
	commit     bool
	logger     *slog.Logger
}

// NewClient creates a client from the platform settings.
func NewClient(settings *conf.Settings) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: ExportRequestTimeout},
		baseURL:    settings.Zooniverse.BaseURL,
		projectID:  settings.Zooniverse.ProjectID,
		commit:     settings.Zooniverse.CommitChanges,
		logger:     logging.ForService("ingest"),
	}
}

// ClassificationExport streams the project's classification export CSV.
// The caller owns the returned reader and must close it.
func (c *Client) ClassificationExport(ctx context.Context) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/projects/%d/classifications_export", c.baseURL, c.projectID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("zooniverse").
			Category(errors.CategoryIngest).
			Context("operation", "classification_export").
			Build()
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("zooniverse").
			Category(errors.CategoryNetwork).
			Context("operation", "classification_export").
			Context("url", url).
			Build()
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Newf("classification export returned status %d", resp.StatusCode).
			Component("zooniverse").
			Category(errors.CategoryNetwork).
			Context("operation", "classification_export").
			Context("status", resp.StatusCode).
			Build()
	}

	c.logger.Info("classification export stream opened", "project_id", c.projectID)
	return resp.Body, nil
}

// UpdateSubjectMetadata pushes a subject's metadata links to the platform.
// When commit changes is disabled the update is logged as a dry run and
// nothing is sent.
func (c *Client) UpdateSubjectMetadata(ctx context.Context, zooniverseID int64, metadata map[string]string) error {
	if !c.commit {
		c.logger.Info("dry run, subject metadata not pushed",
			"zooniverse_id", zooniverseID,
			"keys", len(metadata))
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"subjects": []map[string]any{
			{"metadata": metadata},
		},
	})
	if err != nil {
		return errors.New(err).
			Component("zooniverse").
			Category(errors.CategoryIngest).
			Context("operation", "update_subject_metadata").
			Build()
	}

	url := fmt.Sprintf("%s/subjects/%d", c.baseURL, zooniverseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return errors.New(err).
			Component("zooniverse").
			Category(errors.CategoryIngest).
			Context("operation", "update_subject_metadata").
			Build()
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: APIRequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return errors.New(err).
			Component("zooniverse").
			Category(errors.CategoryNetwork).
			Context("operation", "update_subject_metadata").
			Context("zooniverse_id", zooniverseID).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return errors.Newf("subject metadata update returned status %d", resp.StatusCode).
			Component("zooniverse").
			Category(errors.CategoryNetwork).
			Context("operation", "update_subject_metadata").
			Context("zooniverse_id", zooniverseID).
			Context("status", resp.StatusCode).
			Build()
	}

	c.logger.Debug("subject metadata pushed", "zooniverse_id", zooniverseID)
	return nil
}
