// Package coverage computes transition coverage: which distinct
// (action type, next page) pairs of a benchmark trace a test trace exercised.
package coverage

import (
	"sort"

	"droidbench/internal/trace"
)

// Result is the transition coverage of one test trace against a benchmark.
// TotalCount counts distinct benchmark transitions, not benchmark steps.
type Result struct {
	CoveredCount int                   `json:"covered_count"`
	TotalCount   int                   `json:"total_count"`
	Percentage   float64               `json:"percentage"`
	Covered      []trace.TransitionKey `json:"covered"`
	Uncovered    []trace.TransitionKey `json:"uncovered"`
	// Occurrences of each covered transition in the test trace. Diagnostic
	// only; coverage is set membership.
	Counts []Count `json:"transition_counts,omitempty"`
}

// Count pairs a transition with how many test steps produced it.
type Count struct {
	Transition trace.TransitionKey `json:"transition"`
	Count      int                 `json:"count"`
}

// Empty reports whether there was nothing to cover.
func (r Result) Empty() bool { return r.TotalCount == 0 }

func zero() Result {
	return Result{Covered: []trace.TransitionKey{}, Uncovered: []trace.TransitionKey{}}
}

// Compute returns the coverage of bench's distinct transitions by test.
// An empty test or benchmark trace yields the zero result.
func Compute(test, bench trace.Sequence) Result {
	if len(test) == 0 || len(bench) == 0 {
		return zero()
	}

	occurrences := make(map[trace.TransitionKey]int, len(test))
	for _, k := range test.Transitions() {
		occurrences[k]++
	}

	res := zero()
	for k := range bench.TransitionSet() {
		if n := occurrences[k]; n > 0 {
			res.Covered = append(res.Covered, k)
			res.Counts = append(res.Counts, Count{Transition: k, Count: n})
		} else {
			res.Uncovered = append(res.Uncovered, k)
		}
	}
	sortKeys(res.Covered)
	sortKeys(res.Uncovered)
	sort.Slice(res.Counts, func(i, j int) bool {
		return res.Counts[i].Transition.Less(res.Counts[j].Transition)
	})

	res.CoveredCount = len(res.Covered)
	res.TotalCount = len(res.Covered) + len(res.Uncovered)
	res.Percentage = float64(res.CoveredCount) / float64(res.TotalCount) * 100
	return res
}

func sortKeys(keys []trace.TransitionKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// Comparison is a symmetric set comparison of two traces' transitions.
// Precision is relative to A, recall to B.
type Comparison struct {
	Jaccard   float64 `json:"jaccard_similarity"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Common    int     `json:"common_transitions"`
	DistinctA int     `json:"unique_transitions_seq1"`
	DistinctB int     `json:"unique_transitions_seq2"`
}

// Compare returns set-overlap statistics of the distinct transitions of a and b.
func Compare(a, b trace.Sequence) Comparison {
	sa, sb := a.TransitionSet(), b.TransitionSet()
	c := Comparison{DistinctA: len(sa), DistinctB: len(sb)}
	for k := range sa {
		if _, ok := sb[k]; ok {
			c.Common++
		}
	}
	if union := len(sa) + len(sb) - c.Common; union > 0 {
		c.Jaccard = float64(c.Common) / float64(union)
	}
	if len(sa) > 0 {
		c.Precision = float64(c.Common) / float64(len(sa))
	}
	if len(sb) > 0 {
		c.Recall = float64(c.Common) / float64(len(sb))
	}
	if c.Precision+c.Recall > 0 {
		c.F1 = 2 * c.Precision * c.Recall / (c.Precision + c.Recall)
	}
	return c
}
