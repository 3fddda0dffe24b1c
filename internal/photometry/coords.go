// Package photometry derives star statistics from raw survey photometry
// and decodes celestial coordinates from survey designations.
package photometry

import (
	"strconv"
	"strings"

	"github.com/superwasp/vespa/internal/errors"
)

// Coordinates is a star position decoded from its survey designation.
type Coordinates struct {
	RAHours    float64 // right ascension in decimal hours
	DecDegrees float64 // declination in decimal degrees

	// Sexagesimal forms as encoded in the designation, colon separated
	RA  string // "hh:mm:ss.ss"
	Dec string // "±dd:mm:ss.s"
}

// ParseDesignation decodes the coordinates encoded in a survey designation
// of the form "1SWASP Jhhmmss.ss±ddmmss.s". The space after the survey
// prefix is optional.
func ParseDesignation(waspID string) (*Coordinates, error) {
	coords := strings.TrimPrefix(waspID, "1SWASP")
	coords = strings.TrimPrefix(coords, " ")
	coords = strings.TrimPrefix(coords, "J")

	// hhmmss.ss = 9 characters, ±ddmmss.s = 9 characters
	if len(coords) != 18 {
		return nil, errors.Newf("malformed survey designation %q", waspID).
			Component("photometry").
			Category(errors.CategoryValidation).
			Context("wasp_id", waspID).
			Build()
	}

	raPart, decPart := coords[:9], coords[9:]

	raHours, err := parseSexagesimal(raPart[:2], raPart[2:4], raPart[4:])
	if err != nil {
		return nil, errors.New(err).
			Component("photometry").
			Category(errors.CategoryValidation).
			Context("wasp_id", waspID).
			Build()
	}

	sign := 1.0
	switch decPart[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return nil, errors.Newf("malformed declination sign in %q", waspID).
			Component("photometry").
			Category(errors.CategoryValidation).
			Context("wasp_id", waspID).
			Build()
	}
	decDegrees, err := parseSexagesimal(decPart[1:3], decPart[3:5], decPart[5:])
	if err != nil {
		return nil, errors.New(err).
			Component("photometry").
			Category(errors.CategoryValidation).
			Context("wasp_id", waspID).
			Build()
	}

	return &Coordinates{
		RAHours:    raHours,
		DecDegrees: sign * decDegrees,
		RA:         raPart[:2] + ":" + raPart[2:4] + ":" + raPart[4:],
		Dec:        decPart[:3] + ":" + decPart[3:5] + ":" + decPart[5:],
	}, nil
}

func parseSexagesimal(whole, minutes, seconds string) (float64, error) {
	w, err := strconv.ParseFloat(whole, 64)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseFloat(minutes, 64)
	if err != nil {
		return 0, err
	}
	s, err := strconv.ParseFloat(seconds, 64)
	if err != nil {
		return 0, err
	}
	return w + m/60 + s/3600, nil
}
