// Package aggregation reduces per-user classification votes to one
// consensus verdict per subject.
package aggregation

import (
	"sort"

	"github.com/superwasp/vespa/internal/logging"
	"github.com/superwasp/vespa/internal/metrics"
	"github.com/superwasp/vespa/internal/zooniverse"
)

// classPriority is the tie-break order for the consensus class. The first
// class with the maximum vote count wins, so earlier entries beat later
// ones on a tie.
var classPriority = []string{
	zooniverse.LabelJunk,
	zooniverse.LabelPulsator,
	zooniverse.LabelRotator,
	zooniverse.LabelEW,
	zooniverse.LabelEAEB,
	zooniverse.LabelUnknown,
}

// certaintyPriority is the tie-break order for the period certainty vote.
var certaintyPriority = []string{
	zooniverse.CertaintyHalf,
	zooniverse.CertaintyCorrect,
	zooniverse.CertaintyWrong,
}

// certaintyOverrides fixes the certainty for classes where the crowd is not
// asked the period question meaningfully.
var certaintyOverrides = map[string]string{
	zooniverse.LabelRotator: zooniverse.CertaintyCorrect,
	zooniverse.LabelUnknown: zooniverse.CertaintyCorrect,
	zooniverse.LabelJunk:    zooniverse.CertaintyWrong,
}

// Consensus is the aggregated verdict for one subject.
type Consensus struct {
	SubjectID int64
	Class     string
	Certainty string
	// VoteCount is the total number of votes the subject received,
	// including Junk votes, not just votes for the winning class.
	VoteCount int
}

// subjectTally accumulates per-subject vote counts during the pivot.
type subjectTally struct {
	classVotes     map[string]int
	certaintyVotes map[string]int
	total          int
}

// Stats summarizes an aggregation run.
type Stats struct {
	Subjects    int
	JunkDropped int
}

// Aggregate pivots the deduplicated vote table into per-subject consensus
// rows. Subjects whose consensus is Junk are dropped. The result is ordered
// by ascending subject id so repeated runs over the same votes are
// byte-for-byte identical.
func Aggregate(votes []zooniverse.Vote, pipelineMetrics *metrics.PipelineMetrics) ([]Consensus, *Stats) {
	logger := logging.ForService("aggregation")

	tallies := make(map[int64]*subjectTally)
	for i := range votes {
		vote := &votes[i]
		tally, ok := tallies[vote.SubjectID]
		if !ok {
			tally = &subjectTally{
				classVotes:     make(map[string]int),
				certaintyVotes: make(map[string]int),
			}
			tallies[vote.SubjectID] = tally
		}
		tally.classVotes[vote.Class]++
		tally.total++
		if vote.Certainty != "" {
			tally.certaintyVotes[vote.Certainty]++
		}
	}

	stats := &Stats{}
	results := make([]Consensus, 0, len(tallies))
	for subjectID, tally := range tallies {
		class := argmax(tally.classVotes, classPriority, "")
		if class == zooniverse.LabelJunk {
			stats.JunkDropped++
			continue
		}

		certainty, override := certaintyOverrides[class]
		if !override {
			certainty = argmaxCertainty(tally.certaintyVotes, class)
		}

		results = append(results, Consensus{
			SubjectID: subjectID,
			Class:     class,
			Certainty: certainty,
			VoteCount: tally.total,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].SubjectID < results[j].SubjectID
	})
	stats.Subjects = len(results)

	if pipelineMetrics != nil {
		pipelineMetrics.SubjectsAggregated.Add(float64(stats.Subjects))
		pipelineMetrics.JunkConsensusDropped.Add(float64(stats.JunkDropped))
	}

	logger.Info("votes aggregated",
		"subjects", stats.Subjects,
		"junk_dropped", stats.JunkDropped)

	return results, stats
}

// argmax returns the first key in priority order holding the maximum count.
func argmax(counts map[string]int, priority []string, skip string) string {
	best := ""
	bestCount := -1
	for _, key := range priority {
		if key == skip {
			continue
		}
		if counts[key] > bestCount {
			best = key
			bestCount = counts[key]
		}
	}
	return best
}

// argmaxCertainty picks the winning certainty label for a class from the
// prefixed certainty tallies. "Half correct period" is not offered for
// Pulsator subjects.
func argmaxCertainty(counts map[string]int, class string) string {
	skip := ""
	if class == zooniverse.LabelPulsator {
		skip = zooniverse.CertaintyHalf
	}
	best := ""
	bestCount := -1
	for _, label := range certaintyPriority {
		if label == skip {
			continue
		}
		if counts[class+" "+label] > bestCount {
			best = label
			bestCount = counts[class+" "+label]
		}
	}
	return best
}
