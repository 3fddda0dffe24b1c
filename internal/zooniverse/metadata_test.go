package zooniverse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectMetadata(t *testing.T) {
	metadata, err := SubjectMetadata(
		"1SWASP J045245.63+214109.1",
		"www.vespa.example.org",
		"/source/12/period/3/",
	)
	require.NoError(t, err)

	assert.Equal(t,
		"https://wasp.cerit-sc.cz/search?objid=J045245.63%2B214109.1&radius=1&radiusUnit=deg&limit=10",
		metadata[MetadataKeyCERiT])
	assert.Equal(t,
		"http://simbad.u-strasbg.fr/simbad/sim-coo?Coord=04%3A52%3A45.63+%2B21%3A41%3A09.1&Radius=2&Radius.unit=arcmin&submit=submit+query",
		metadata[MetadataKeySimbad])
	assert.Equal(t,
		"https://asas-sn.osu.edu/photometry?ra=04%3A52%3A45.63&dec=%2B21%3A41%3A09.1&radius=2",
		metadata[MetadataKeyASASSN])
	assert.Equal(t,
		"https://www.vespa.example.org/source/12/period/3/",
		metadata[MetadataKeyVeSPA])
}

func TestSubjectMetadataNegativeDeclination(t *testing.T) {
	metadata, err := SubjectMetadata(
		"1SWASP J102030.40-112233.4",
		"www.vespa.example.org",
		"/source/1/period/1/",
	)
	require.NoError(t, err)
	assert.Contains(t, metadata[MetadataKeyASASSN], "dec=-11%3A22%3A33.4")
}

func TestSubjectMetadataMalformedDesignation(t *testing.T) {
	_, err := SubjectMetadata("not-a-designation", "host", "/path")
	assert.Error(t, err)
}
