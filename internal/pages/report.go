package pages

import "sort"

// Summary is the headline of a page coverage report.
type Summary struct {
	CoveredPages int     `json:"covered_pages"`
	TotalPages   int     `json:"total_pages"`
	Percentage   float64 `json:"coverage_percentage"`
	Threshold    float64 `json:"similarity_threshold"`
	Model        string  `json:"model_used"`
}

// TestMatch is one test screenshot matched to a benchmark page.
type TestMatch struct {
	TestImage  string  `json:"test_image"`
	Similarity float64 `json:"similarity"`
}

// CoveredPage groups the test screenshots assigned to one benchmark page.
type CoveredPage struct {
	BenchPage     string      `json:"benchmark_page"`
	Matches       []TestMatch `json:"matches"`
	MatchCount    int         `json:"match_count"`
	AvgSimilarity float64     `json:"avg_similarity"`
}

// Report is the page-centric view of a Result.
type Report struct {
	Summary   Summary       `json:"summary"`
	Covered   []CoveredPage `json:"covered_benchmark_pages"`
	Uncovered []string      `json:"uncovered_benchmark_pages"`
	Skipped   []Skipped     `json:"skipped_images,omitempty"`
}

// BuildReport groups matches by benchmark page, in benchmark order.
func BuildReport(r Result) Report {
	rep := Report{
		Summary: Summary{
			CoveredPages: r.CoveredCount,
			TotalPages:   r.TotalCount,
			Percentage:   r.Percentage,
			Threshold:    r.Threshold,
			Model:        r.Model,
		},
		Covered:   []CoveredPage{},
		Uncovered: append([]string{}, r.Uncovered...),
		Skipped:   r.Skipped,
	}
	byPage := make(map[string][]TestMatch)
	for _, m := range r.Matches {
		byPage[m.BenchImage] = append(byPage[m.BenchImage], TestMatch{TestImage: m.TestImage, Similarity: m.Similarity})
	}
	for _, page := range r.Covered {
		ms := byPage[page]
		sort.SliceStable(ms, func(i, j int) bool { return ms[i].Similarity > ms[j].Similarity })
		var sum float64
		for _, m := range ms {
			sum += m.Similarity
		}
		cp := CoveredPage{BenchPage: page, Matches: ms, MatchCount: len(ms)}
		if len(ms) > 0 {
			cp.AvgSimilarity = sum / float64(len(ms))
		}
		rep.Covered = append(rep.Covered, cp)
	}
	return rep
}

// Similarities returns the similarity of every match, for histograms.
func (r Result) Similarities() []float64 {
	out := make([]float64, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Similarity
	}
	return out
}
