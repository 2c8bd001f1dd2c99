package match

import "droidbench/internal/trace"

// Similarity holds order-aware and order-free similarity of two traces.
// Every percentage is in [0,100].
type Similarity struct {
	// 2*M/T over matching blocks, as a percentage.
	Ratio                  float64 `json:"exact_match_percentage"`
	Jaccard                float64 `json:"jaccard_similarity"`
	EditDistance           int     `json:"edit_distance"`
	NormalizedEditDistance float64 `json:"normalized_edit_distance"`
}

// Measure computes all similarity metrics. An empty input yields zeros.
func Measure(test, bench trace.Sequence) Similarity {
	if len(test) == 0 || len(bench) == 0 {
		return Similarity{}
	}
	a, b := symbols(test, bench)

	var matched int
	for _, blk := range matchingBlocks(a, b) {
		matched += blk.Size
	}
	s := Similarity{Ratio: 2 * float64(matched) / float64(len(a)+len(b)) * 100}

	sa, sb := set(a), set(b)
	common := 0
	for v := range sa {
		if _, ok := sb[v]; ok {
			common++
		}
	}
	s.Jaccard = float64(common) / float64(len(sa)+len(sb)-common) * 100

	s.EditDistance = levenshtein(a, b)
	s.NormalizedEditDistance = (1 - float64(s.EditDistance)/float64(max(len(a), len(b)))) * 100
	return s
}

func set(xs []int) map[int]struct{} {
	out := make(map[int]struct{}, len(xs))
	for _, x := range xs {
		out[x] = struct{}{}
	}
	return out
}
