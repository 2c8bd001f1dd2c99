package match

import "droidbench/internal/trace"

// Aligned is one step of a longest common subsequence.
type Aligned struct {
	TestIndex  int          `json:"test_index"`
	BenchIndex int          `json:"benchmark_index"`
	Action     trace.Action `json:"action"`
}

// LongestCommonSubsequence returns one optimal, not necessarily contiguous,
// alignment. When several exist, backtracking prefers stepping back in the
// benchmark on ties, so only the length is canonical.
func LongestCommonSubsequence(test, bench trace.Sequence) []Aligned {
	a, b := symbols(test, bench)
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	out := make([]Aligned, dp[m][n])
	k := len(out)
	for i, j := m, n; i > 0 && j > 0; {
		switch {
		case a[i-1] == b[j-1]:
			k--
			out[k] = Aligned{TestIndex: i - 1, BenchIndex: j - 1, Action: test[i-1]}
			i--
			j--
		case dp[i-1][j] > dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return out
}

// EditDistance is the Levenshtein distance between the traces with whole
// actions as symbols.
func EditDistance(test, bench trace.Sequence) int {
	a, b := symbols(test, bench)
	return levenshtein(a, b)
}

func levenshtein(a, b []int) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	cur := make([]int, len(b)+1)
	for i, x := range a {
		cur[0] = i + 1
		for j, y := range b {
			sub := prev[j]
			if x != y {
				sub++
			}
			cur[j+1] = min(prev[j+1]+1, cur[j]+1, sub)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
