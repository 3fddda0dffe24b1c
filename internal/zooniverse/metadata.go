package zooniverse

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/superwasp/vespa/internal/photometry"
)

// Keys prefixed with "!" are visible to project volunteers on the platform.
const (
	MetadataKeyCERiT  = "!CERiT"
	MetadataKeySimbad = "!Simbad"
	MetadataKeyASASSN = "!ASAS-SN Photometry"
	MetadataKeyVeSPA  = "!VeSPA"

	// CurrentMetadataVersion stamps subjects whose metadata links match the
	// current set of keys; bump it when the links change shape.
	CurrentMetadataVersion = 1.0
)

// SubjectMetadata builds the cross-reference links pushed to a subject on
// the platform. catalogHost is the public host serving the star catalog,
// candidatePath the catalog page for the subject's fold candidate.
func SubjectMetadata(waspID, catalogHost, candidatePath string) (map[string]string, error) {
	coords, err := photometry.ParseDesignation(waspID)
	if err != nil {
		return nil, err
	}

	designation := strings.TrimPrefix(waspID, "1SWASP")
	designation = strings.TrimPrefix(designation, " ")
	objID := url.QueryEscape(designation)
	ra := url.QueryEscape(coords.RA)
	dec := url.QueryEscape(coords.Dec)

	return map[string]string{
		MetadataKeyCERiT: fmt.Sprintf(
			"https://wasp.cerit-sc.cz/search?objid=%s&radius=1&radiusUnit=deg&limit=10", objID),
		MetadataKeySimbad: fmt.Sprintf(
			"http://simbad.u-strasbg.fr/simbad/sim-coo?Coord=%s+%s&Radius=2&Radius.unit=arcmin&submit=submit+query", ra, dec),
		MetadataKeyASASSN: fmt.Sprintf(
			"https://asas-sn.osu.edu/photometry?ra=%s&dec=%s&radius=2", ra, dec),
		MetadataKeyVeSPA: fmt.Sprintf("https://%s%s", catalogHost, candidatePath),
	}, nil
}
