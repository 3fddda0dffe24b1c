package zooniverse

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/superwasp/vespa/internal/logging"
)

// cacheFileName returns the vote table cache file for a release version.
func cacheFileName(dir string, version float64) string {
	return filepath.Join(dir, fmt.Sprintf("votes-%g.gob", version))
}

// LoadCachedVotes loads the deduplicated vote table cached for a release
// version. A missing or unreadable cache is not an error; the second return
// value reports whether the cache was usable.
func LoadCachedVotes(dir string, version float64) ([]Vote, bool) {
	logger := logging.ForService("ingest")

	f, err := os.Open(cacheFileName(dir, version))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var votes []Vote
	if err := gob.NewDecoder(f).Decode(&votes); err != nil {
		logger.Warn("vote cache unreadable, falling back to the export",
			"path", f.Name(), "error", err)
		return nil, false
	}

	logger.Info("vote cache hit", "path", f.Name(), "votes", len(votes))
	return votes, true
}

// StoreCachedVotes writes the deduplicated vote table for a release version.
// Failures are logged and swallowed; an unwritable cache must not fail the
// aggregation run.
func StoreCachedVotes(dir string, version float64, votes []Vote) {
	logger := logging.ForService("ingest")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("vote cache directory not writable", "dir", dir, "error", err)
		return
	}

	path := cacheFileName(dir, version)
	f, err := os.Create(path)
	if err != nil {
		logger.Warn("vote cache not writable", "path", path, "error", err)
		return
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(votes); err != nil {
		logger.Warn("vote cache write failed", "path", path, "error", err)
		os.Remove(path)
		return
	}

	logger.Info("vote cache written", "path", path, "votes", len(votes))
}
