package zooniverse

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/antonholmquist/jason"

	"github.com/superwasp/vespa/internal/errors"
	"github.com/superwasp/vespa/internal/logging"
	"github.com/superwasp/vespa/internal/metrics"
)

// Vote class labels as they appear in the classification export.
const (
	LabelPulsator = "Pulsator"
	LabelEAEB     = "EA/EB type"
	LabelEW       = "EW type"
	LabelRotator  = "Rotator"
	LabelUnknown  = "Unknown"
	LabelJunk     = "Junk"

	// Sentinel emitted by the junk-review workflow; such subjects are
	// subsequently classified in the main workflow, so the vote is dropped.
	LabelReal = "Real"
)

// Period certainty labels.
const (
	CertaintyCorrect = "Correct period"
	CertaintyWrong   = "Wrong period"
	CertaintyHalf    = "Half correct period"
)

// certaintyOverrides replaces the voted certainty for classes where the
// question does not apply.
var certaintyOverrides = map[string]string{
	LabelRotator: CertaintyCorrect,
	LabelUnknown: CertaintyCorrect,
	LabelJunk:    CertaintyWrong,
}

// Vote is one volunteer's classification of one subject.
type Vote struct {
	SubjectID int64
	UserName  string
	Class     string
	// Certainty carries the voted (or overridden) period certainty prefixed
	// with the class, e.g. "Pulsator Correct period", so certainty votes for
	// each primary class count separately. Empty when no certainty was voted
	// and no override applies.
	Certainty string
}

// IngestStats summarizes an ingest run. Malformed rows are never reported
// individually, only in aggregate.
type IngestStats struct {
	RowsRead      int
	Accepted      int
	WrongWorkflow int
	RealSentinel  int
	Duplicates    int
	Malformed     int
}

// IngestOptions selects which export rows become votes.
type IngestOptions struct {
	MainWorkflowID int
	JunkWorkflowID int
	Metrics        *metrics.PipelineMetrics // optional
}

// ParseVotes reads a classification export CSV and reduces it to the
// deduplicated vote table: rows from the accepted workflows, "Real"
// sentinels discarded, one vote per (user, subject) with the first
// occurrence winning.
func ParseVotes(r io.Reader, opts IngestOptions) ([]Vote, *IngestStats, error) {
	logger := logging.ForService("ingest")
	stats := &IngestStats{}

	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, errors.New(err).
			Component("zooniverse").
			Category(errors.CategoryIngest).
			Context("operation", "parse_votes").
			Build()
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, required := range []string{"workflow_id", "annotations", "subject_ids", "user_name"} {
		if _, ok := columns[required]; !ok {
			return nil, nil, errors.Newf("classification export is missing column %q", required).
				Component("zooniverse").
				Category(errors.CategoryIngest).
				Context("operation", "parse_votes").
				Build()
		}
	}

	type voteKey struct {
		userName  string
		subjectID int64
	}
	seen := make(map[voteKey]struct{})
	var votes []Vote

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A short or overlong record is a malformed row, not a fatal
			// condition for the whole export.
			stats.Malformed++
			continue
		}
		stats.RowsRead++

		workflowID, err := strconv.Atoi(record[columns["workflow_id"]])
		if err != nil {
			stats.Malformed++
			continue
		}
		// Votes from both workflows count, so subjects filtered as junk
		// after receiving main-workflow classifications aggregate correctly.
		if workflowID != opts.MainWorkflowID && workflowID != opts.JunkWorkflowID {
			stats.WrongWorkflow++
			continue
		}

		subjectID, err := strconv.ParseInt(record[columns["subject_ids"]], 10, 64)
		if err != nil {
			stats.Malformed++
			continue
		}

		annotations, err := jason.NewValueFromBytes([]byte(record[columns["annotations"]]))
		if err != nil {
			stats.Malformed++
			continue
		}
		tasks, err := annotations.Array()
		if err != nil || len(tasks) == 0 {
			stats.Malformed++
			continue
		}
		task0, err := tasks[0].Object()
		if err != nil {
			stats.Malformed++
			continue
		}
		class, err := task0.GetString("value")
		if err != nil {
			stats.Malformed++
			continue
		}
		if class == LabelReal {
			stats.RealSentinel++
			continue
		}

		certainty := ""
		if len(tasks) > 1 {
			if task1, err := tasks[1].Object(); err == nil {
				if v, err := task1.GetString("value"); err == nil {
					certainty = v
				}
			}
		}
		if override, ok := certaintyOverrides[class]; ok {
			certainty = override
		}
		certaintyLabel := ""
		if certainty != "" {
			certaintyLabel = class + " " + certainty
		}

		userName := record[columns["user_name"]]
		key := voteKey{userName: userName, subjectID: subjectID}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		votes = append(votes, Vote{
			SubjectID: subjectID,
			UserName:  userName,
			Class:     class,
			Certainty: certaintyLabel,
		})
		stats.Accepted++
	}

	if opts.Metrics != nil {
		opts.Metrics.VotesIngested.Add(float64(stats.Accepted))
		opts.Metrics.VotesDiscarded.Add(float64(stats.WrongWorkflow + stats.RealSentinel))
		opts.Metrics.VotesDeduplicated.Add(float64(stats.Duplicates))
		opts.Metrics.VotesMalformed.Add(float64(stats.Malformed))
	}

	logger.Info("classification export parsed",
		"rows_read", stats.RowsRead,
		"accepted", stats.Accepted,
		"wrong_workflow", stats.WrongWorkflow,
		"real_sentinel", stats.RealSentinel,
		"duplicates", stats.Duplicates,
		"malformed", stats.Malformed)

	return votes, stats, nil
}
