package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/errors"
)

// renderTimeout bounds one plot render request.
const renderTimeout = 2 * time.Minute

// ArchivePlotRenderer fetches the folded lightcurve plot for a candidate
// from the archive's render endpoint and stores it in the media directory.
type ArchivePlotRenderer struct {
	httpClient  *http.Client
	urlTemplate string
	dir         string
}

// NewArchivePlotRenderer creates a renderer writing plots under the
// configured media directory.
func NewArchivePlotRenderer(settings *conf.Settings) *ArchivePlotRenderer {
	return &ArchivePlotRenderer{
		httpClient:  &http.Client{Timeout: renderTimeout},
		urlTemplate: settings.Media.PlotURL,
		dir:         settings.Media.Dir,
	}
}

// PlotPath returns where a candidate's rendered plot is stored.
func (r *ArchivePlotRenderer) PlotPath(candidateID uint) string {
	return filepath.Join(r.dir, fmt.Sprintf("candidate-%d.png", candidateID))
}

// Render downloads the candidate's folded plot. The file is written to a
// temporary name first so readers never observe a partial image.
func (r *ArchivePlotRenderer) Render(ctx context.Context, candidate *datastore.FoldCandidate) error {
	if candidate.PeriodLength == nil {
		return renderError(fmt.Errorf("candidate has no period"), candidate.ID, "render plot")
	}

	designation := strings.TrimPrefix(candidate.Star.WaspID, "1SWASP")
	designation = strings.TrimPrefix(designation, " ")
	endpoint := fmt.Sprintf(r.urlTemplate, url.QueryEscape(designation), *candidate.PeriodLength)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return renderError(err, candidate.ID, "build render request")
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return renderError(err, candidate.ID, "fetch plot")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return renderError(fmt.Errorf("unexpected status %s", resp.Status), candidate.ID, "fetch plot")
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return renderError(err, candidate.ID, "create media directory")
	}

	path := r.PlotPath(candidate.ID)
	tmp, err := os.CreateTemp(r.dir, "plot-*.png")
	if err != nil {
		return renderError(err, candidate.ID, "create plot file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return renderError(err, candidate.ID, "write plot file")
	}
	if err := tmp.Close(); err != nil {
		return renderError(err, candidate.ID, "write plot file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return renderError(err, candidate.ID, "write plot file")
	}
	return nil
}

func renderError(err error, candidateID uint, operation string) error {
	return errors.New(err).
		Component("media").
		Category(errors.CategoryNetwork).
		Context("candidate_id", candidateID).
		Context("operation", operation).
		Build()
}
