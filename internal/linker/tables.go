// Package linker joins consensus classifications against the period search
// reference tables to produce enriched rows ready for materialization.
package linker

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/superwasp/vespa/internal/errors"
	"github.com/superwasp/vespa/internal/logging"
)

// LookupEntry locates the fold candidate a platform subject was built from.
type LookupEntry struct {
	WaspID       string
	Period       float64 // as written in the lookup table, 3 dp
	PeriodNumber int
}

// ResultKey is the compound join key into the period search results.
// Periods in the reference tables were rounded to 3 dp but not always
// consistently, so the key truncates the period to whole seconds instead
// of rounding.
type ResultKey struct {
	WaspID       string
	PeriodTrunc  int64
	PeriodNumber int
}

// ResultEntry carries the precise period search values for a candidate.
type ResultEntry struct {
	Period     float64
	Sigma      float64
	ChiSquared float64
}

// TruncatePeriod converts a period to the integer seconds used in join keys.
func TruncatePeriod(period float64) int64 {
	return int64(period)
}

// Parsed reference tables are cached in-process keyed by path and mtime, so
// repeated releases against an unchanged table skip the parse.
var tableCache = gocache.New(1*time.Hour, 10*time.Minute)

func cacheKey(path string, info os.FileInfo) string {
	return fmt.Sprintf("%s|%d", path, info.ModTime().UnixNano())
}

// LoadLookupTable parses the subject lookup table (whitespace separated
// rows of subject id, survey designation, period, period number).
func LoadLookupTable(path string) (map[int64]LookupEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileError(err, "load_lookup_table", path)
	}
	if cached, ok := tableCache.Get(cacheKey(path, info)); ok {
		return cached.(map[int64]LookupEntry), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fileError(err, "load_lookup_table", path)
	}
	defer f.Close()

	table := make(map[int64]LookupEntry)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 4 {
			return nil, parseError("lookup table row has wrong field count", path, line)
		}
		subjectID, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, parseError("lookup table subject id is not numeric", path, line)
		}
		period, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, parseError("lookup table period is not numeric", path, line)
		}
		periodNumber, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, parseError("lookup table period number is not numeric", path, line)
		}
		table[subjectID] = LookupEntry{
			WaspID:       fields[1],
			Period:       period,
			PeriodNumber: periodNumber,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fileError(err, "load_lookup_table", path)
	}

	tableCache.Set(cacheKey(path, info), table, gocache.DefaultExpiration)
	logging.ForService("linker").Info("lookup table loaded", "path", path, "entries", len(table))
	return table, nil
}

// LoadResultsTable parses the period search results table (whitespace
// separated rows of camera, designation prefix, designation suffix, period
// number, period, sigma, chi squared, quality flag). Only rows with quality
// flag 0 are kept; duplicate keys keep the first occurrence.
func LoadResultsTable(path string) (map[ResultKey]ResultEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileError(err, "load_results_table", path)
	}
	if cached, ok := tableCache.Get(cacheKey(path, info)); ok {
		return cached.(map[ResultKey]ResultEntry), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fileError(err, "load_results_table", path)
	}
	defer f.Close()

	table := make(map[ResultKey]ResultEntry)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	kept := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 8 {
			return nil, parseError("results table row has wrong field count", path, line)
		}
		flag, err := strconv.Atoi(fields[7])
		if err != nil {
			return nil, parseError("results table quality flag is not numeric", path, line)
		}
		if flag != 0 {
			continue
		}
		periodNumber, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, parseError("results table period number is not numeric", path, line)
		}
		period, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, parseError("results table period is not numeric", path, line)
		}
		sigma, err := strconv.ParseFloat(fields[5], 64)
		if err != nil {
			return nil, parseError("results table sigma is not numeric", path, line)
		}
		chiSquared, err := strconv.ParseFloat(fields[6], 64)
		if err != nil {
			return nil, parseError("results table chi squared is not numeric", path, line)
		}

		key := ResultKey{
			WaspID:       fields[1] + fields[2],
			PeriodTrunc:  TruncatePeriod(period),
			PeriodNumber: periodNumber,
		}
		if _, dup := table[key]; dup {
			continue
		}
		table[key] = ResultEntry{
			Period:     period,
			Sigma:      sigma,
			ChiSquared: chiSquared,
		}
		kept++
	}
	if err := scanner.Err(); err != nil {
		return nil, fileError(err, "load_results_table", path)
	}

	tableCache.Set(cacheKey(path, info), table, gocache.DefaultExpiration)
	logging.ForService("linker").Info("results table loaded",
		"path", path, "rows", line, "kept", kept)
	return table, nil
}

func fileError(err error, operation, path string) error {
	return errors.New(err).
		Component("linker").
		Category(errors.CategoryFileIO).
		Context("operation", operation).
		Context("path", path).
		Build()
}

func parseError(message, path string, line int) error {
	return errors.Newf("%s", message).
		Component("linker").
		Category(errors.CategoryFileParsing).
		Context("path", path).
		Context("line", line).
		Build()
}
