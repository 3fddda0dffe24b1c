package zooniverse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoteCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()

	votes := []Vote{
		{SubjectID: 1, UserName: "alice", Class: LabelPulsator, Certainty: "Pulsator Correct period"},
		{SubjectID: 2, UserName: "bob", Class: LabelJunk, Certainty: "Junk Wrong period"},
	}
	StoreCachedVotes(dir, 2.0, votes)

	loaded, ok := LoadCachedVotes(dir, 2.0)
	require.True(t, ok)
	assert.Equal(t, votes, loaded)
}

func TestVoteCacheMissIsNotAnError(t *testing.T) {
	_, ok := LoadCachedVotes(t.TempDir(), 1.0)
	assert.False(t, ok)
}

func TestVoteCacheKeyedByVersion(t *testing.T) {
	dir := t.TempDir()

	StoreCachedVotes(dir, 1.0, []Vote{{SubjectID: 1, UserName: "alice", Class: LabelPulsator}})

	_, ok := LoadCachedVotes(dir, 2.0)
	assert.False(t, ok, "a different release version must not hit the cache")
}

func TestVoteCacheCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "votes-1.gob"), []byte("not gob"), 0o644))

	_, ok := LoadCachedVotes(dir, 1.0)
	assert.False(t, ok)
}

func TestVoteCacheUnwritableDirIsSwallowed(t *testing.T) {
	// A file where the cache directory should be makes MkdirAll fail
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte(""), 0o644))

	assert.NotPanics(t, func() {
		StoreCachedVotes(blocked, 1.0, []Vote{{SubjectID: 1}})
	})
}
