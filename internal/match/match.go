// Package match scores how literally a test trace replays a benchmark trace.
// Steps are compared as full records (type, next page and params), which is
// stricter than transition coverage.
package match

import (
	"sort"

	"droidbench/internal/trace"
)

// Block is a maximal run of equal steps: test[Test:Test+Size] equals
// bench[Bench:Bench+Size].
type Block struct {
	Test  int `json:"test_start"`
	Bench int `json:"benchmark_start"`
	Size  int `json:"size"`
}

// Result is the exact-match score of a test trace against a benchmark.
// TotalSteps is the raw benchmark length, so the percentage denominator
// differs from transition coverage's distinct-transition count.
type Result struct {
	ExactMatches    int     `json:"exact_matches"`
	TotalSteps      int     `json:"total_steps"`
	MatchPercentage float64 `json:"match_percentage"`
	MatchingBlocks  []Block `json:"matching_blocks"`
	// Size of the single longest block.
	LongestBlock int `json:"longest_block"`
}

// Compute decomposes the pair into matching blocks: the longest common
// contiguous run is taken first, then the regions left and right of it are
// solved recursively. An empty input yields the zero result.
func Compute(test, bench trace.Sequence) Result {
	res := Result{MatchingBlocks: []Block{}}
	if len(test) == 0 || len(bench) == 0 {
		return res
	}
	a, b := symbols(test, bench)
	res.MatchingBlocks = matchingBlocks(a, b)
	for _, blk := range res.MatchingBlocks {
		res.ExactMatches += blk.Size
		res.LongestBlock = max(res.LongestBlock, blk.Size)
	}
	res.TotalSteps = len(bench)
	res.MatchPercentage = float64(res.ExactMatches) / float64(res.TotalSteps) * 100
	return res
}

// symbols maps every distinct action to a small integer so the algorithms
// below compare ints. Two actions share a symbol iff they are Equal.
func symbols(test, bench trace.Sequence) ([]int, []int) {
	ids := make(map[string]int)
	conv := func(s trace.Sequence) []int {
		out := make([]int, len(s))
		for i, act := range s {
			k := act.String()
			id, ok := ids[k]
			if !ok {
				id = len(ids)
				ids[k] = id
			}
			out[i] = id
		}
		return out
	}
	return conv(test), conv(bench)
}

// longestMatch returns the longest block within a[alo:ahi] and b[blo:bhi].
// Among equally long blocks it picks the one starting earliest in a, then
// earliest in b.
func longestMatch(a, b []int, b2j map[int][]int, alo, ahi, blo, bhi int) Block {
	best := Block{Test: alo, Bench: blo}
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range b2j[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > best.Size {
				best = Block{Test: i - k + 1, Bench: j - k + 1, Size: k}
			}
		}
		j2len = next
	}
	return best
}

func matchingBlocks(a, b []int) []Block {
	b2j := make(map[int][]int)
	for j, v := range b {
		b2j[v] = append(b2j[v], j)
	}

	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(a), 0, len(b)}}
	var found []Block
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		m := longestMatch(a, b, b2j, s.alo, s.ahi, s.blo, s.bhi)
		if m.Size == 0 {
			continue
		}
		found = append(found, m)
		if s.alo < m.Test && s.blo < m.Bench {
			queue = append(queue, span{s.alo, m.Test, s.blo, m.Bench})
		}
		if m.Test+m.Size < s.ahi && m.Bench+m.Size < s.bhi {
			queue = append(queue, span{m.Test + m.Size, s.ahi, m.Bench + m.Size, s.bhi})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Test != found[j].Test {
			return found[i].Test < found[j].Test
		}
		return found[i].Bench < found[j].Bench
	})

	// Adjacent blocks produced by separate subproblems are merged.
	out := []Block{}
	for _, blk := range found {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Test+last.Size == blk.Test && last.Bench+last.Size == blk.Bench {
				last.Size += blk.Size
				continue
			}
		}
		out = append(out, blk)
	}
	return out
}
