package photometry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/errors"
)

// fetchTimeout bounds one photometry fetch from the archive.
const fetchTimeout = 2 * time.Minute

// ArchiveFluxSource fetches raw flux samples for a star from the public
// photometry archive.
type ArchiveFluxSource struct {
	httpClient  *http.Client
	urlTemplate string
}

// NewArchiveFluxSource creates a flux source using the configured archive
// URL template.
func NewArchiveFluxSource(settings *conf.Settings) *ArchiveFluxSource {
	return &ArchiveFluxSource{
		httpClient:  &http.Client{Timeout: fetchTimeout},
		urlTemplate: settings.Import.FluxURL,
	}
}

// Flux downloads the star's photometry document and returns its flux
// samples.
func (s *ArchiveFluxSource) Flux(ctx context.Context, waspID string) ([]float64, error) {
	designation := strings.TrimPrefix(waspID, "1SWASP")
	designation = strings.TrimPrefix(designation, " ")

	endpoint := fmt.Sprintf(s.urlTemplate, url.QueryEscape(designation))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fluxError(err, waspID, "build photometry request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fluxError(err, waspID, "fetch photometry")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fluxError(fmt.Errorf("unexpected status %s", resp.Status), waspID, "fetch photometry")
	}

	doc, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, fluxError(err, waspID, "decode photometry")
	}
	values, err := doc.GetValueArray("flux")
	if err != nil {
		return nil, fluxError(err, waspID, "decode photometry")
	}

	flux := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := v.Float64()
		if err != nil {
			return nil, fluxError(err, waspID, "decode photometry")
		}
		flux = append(flux, f)
	}
	return flux, nil
}

func fluxError(err error, waspID, operation string) error {
	return errors.New(err).
		Component("photometry").
		Category(errors.CategoryNetwork).
		Context("wasp_id", waspID).
		Context("operation", operation).
		Build()
}
