package zooniverse

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMainWorkflow = 100
	testJunkWorkflow = 200
)

// exportRow is a convenient shape for building classification export CSVs.
type exportRow struct {
	workflowID int
	userName   string
	subjectID  int64
	class      string
	certainty  string // empty to omit the second annotation
}

func buildExport(t *testing.T, rows []exportRow) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write([]string{
		"classification_id", "user_name", "workflow_id", "annotations", "subject_ids",
	}))
	for i, row := range rows {
		annotations := `[{"task":"T0","value":"` + row.class + `"}`
		if row.certainty != "" {
			annotations += `,{"task":"T1","value":"` + row.certainty + `"}`
		}
		annotations += `]`
		require.NoError(t, w.Write([]string{
			strconv.Itoa(i + 1),
			row.userName,
			strconv.Itoa(row.workflowID),
			annotations,
			strconv.FormatInt(row.subjectID, 10),
		}))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return &buf
}

func testOpts() IngestOptions {
	return IngestOptions{
		MainWorkflowID: testMainWorkflow,
		JunkWorkflowID: testJunkWorkflow,
	}
}

func TestParseVotesAcceptsBothWorkflows(t *testing.T) {
	export := buildExport(t, []exportRow{
		{testMainWorkflow, "alice", 1, LabelPulsator, CertaintyCorrect},
		{testJunkWorkflow, "bob", 1, LabelJunk, ""},
		{999, "carol", 1, LabelPulsator, CertaintyCorrect},
	})

	votes, stats, err := ParseVotes(export, testOpts())
	require.NoError(t, err)
	assert.Len(t, votes, 2)
	assert.Equal(t, 1, stats.WrongWorkflow)
	assert.Equal(t, 2, stats.Accepted)
}

func TestParseVotesDiscardsRealSentinel(t *testing.T) {
	export := buildExport(t, []exportRow{
		{testJunkWorkflow, "alice", 1, LabelReal, ""},
		{testMainWorkflow, "alice", 1, LabelPulsator, CertaintyCorrect},
	})

	votes, stats, err := ParseVotes(export, testOpts())
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, LabelPulsator, votes[0].Class)
	assert.Equal(t, 1, stats.RealSentinel)
}

func TestParseVotesCertaintyPrefixAndOverrides(t *testing.T) {
	export := buildExport(t, []exportRow{
		{testMainWorkflow, "alice", 1, LabelPulsator, CertaintyWrong},
		// Rotator and Unknown always count as correct period, Junk as wrong,
		// regardless of what was voted
		{testMainWorkflow, "alice", 2, LabelRotator, CertaintyWrong},
		{testMainWorkflow, "alice", 3, LabelUnknown, ""},
		{testMainWorkflow, "alice", 4, LabelJunk, CertaintyCorrect},
		// No certainty annotation and no override leaves the certainty empty
		{testMainWorkflow, "alice", 5, LabelEW, ""},
	})

	votes, _, err := ParseVotes(export, testOpts())
	require.NoError(t, err)
	require.Len(t, votes, 5)

	byCert := make(map[int64]string)
	for _, v := range votes {
		byCert[v.SubjectID] = v.Certainty
	}
	assert.Equal(t, "Pulsator Wrong period", byCert[1])
	assert.Equal(t, "Rotator Correct period", byCert[2])
	assert.Equal(t, "Unknown Correct period", byCert[3])
	assert.Equal(t, "Junk Wrong period", byCert[4])
	assert.Equal(t, "", byCert[5])
}

func TestParseVotesDeduplicatesFirstSeen(t *testing.T) {
	export := buildExport(t, []exportRow{
		{testMainWorkflow, "alice", 1, LabelPulsator, CertaintyCorrect},
		{testMainWorkflow, "alice", 1, LabelRotator, ""},
		{testMainWorkflow, "bob", 1, LabelRotator, ""},
		{testMainWorkflow, "alice", 2, LabelRotator, ""},
	})

	votes, stats, err := ParseVotes(export, testOpts())
	require.NoError(t, err)
	require.Len(t, votes, 3)
	assert.Equal(t, 1, stats.Duplicates)

	// First vote wins for (alice, 1)
	assert.Equal(t, LabelPulsator, votes[0].Class)
	assert.Equal(t, "alice", votes[0].UserName)
}

func TestParseVotesSkipsMalformedRows(t *testing.T) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write([]string{
		"classification_id", "user_name", "workflow_id", "annotations", "subject_ids",
	}))
	require.NoError(t, w.Write([]string{
		"1", "alice", "not-a-number", `[{"task":"T0","value":"Pulsator"}]`, "1",
	}))
	require.NoError(t, w.Write([]string{
		"2", "bob", "100", `{broken json`, "1",
	}))
	require.NoError(t, w.Write([]string{
		"3", "carol", "100", `[]`, "1",
	}))
	require.NoError(t, w.Write([]string{
		"4", "dave", "100", `[{"task":"T0","value":"Pulsator"}]`, "not-an-id",
	}))
	require.NoError(t, w.Write([]string{
		"5", "erin", "100", `[{"task":"T0","value":"Pulsator"}]`, "7",
	}))
	w.Flush()
	require.NoError(t, w.Error())

	votes, stats, err := ParseVotes(&buf, testOpts())
	require.NoError(t, err)
	require.Len(t, votes, 1, "only the well-formed row survives")
	assert.EqualValues(t, 7, votes[0].SubjectID)
	assert.Equal(t, 4, stats.Malformed)
}

func TestParseVotesMissingColumn(t *testing.T) {
	_, _, err := ParseVotes(strings.NewReader("user_name,workflow_id\nalice,100\n"), testOpts())
	assert.Error(t, err)
}

func TestParseVotesEmptyReader(t *testing.T) {
	_, _, err := ParseVotes(strings.NewReader(""), testOpts())
	assert.Error(t, err, "an export without a header is unusable")
}
