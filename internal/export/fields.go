// Package export generates the downloadable CSV/ZIP archives for data
// releases.
package export

// Field is one column of the export CSV, in output order.
type Field struct {
	Name        string
	Description string
}

// Fields defines the export CSV columns. fields.yaml in the archive
// documents them in the same order.
var Fields = []Field{
	{"SuperWASP ID", "The unique identifier for the source"},
	{"Period Length", "The period length in seconds"},
	{"RA", "Right ascension in hours"},
	{"Dec", "Declination in degrees"},
	{"Maximum magnitude", "The brightest magnitude for this source"},
	{"Minimum magnitude", "The least bright magnitude for this source"},
	{"Mean magnitude", "The mean magnitude for this source"},
	{"Amplitude", "The absolute difference between max and min magnitude"},
	{"Classification", "The candidate variable star type"},
	{"Classification count", "How many Zooniverse classifications this entry received"},
	{"Folding flag", "Whether the correctness of this period is certain or uncertain (based on Zooniverse classifications)"},
	{"Sigma", "Sigma error estimate from original period search"},
	{"Chi squared", "Chi squared error estimate from original period search"},
	{"FITS URL", "The URL of the FITS file containing unfolded photometry data"},
	{"JSON URL", "The URL of the JSON file containing unfolded photometry data"},
	{"Unfolded plot URL", "The URL of the PNG plot of the unfolded light curve"},
	{"Folded plot URL", "The URL of the PNG plot of the folded light curve"},
}

// Header returns the CSV header row.
func Header() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}
