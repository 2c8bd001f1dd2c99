package scoring

import (
	"context"
	"os"
	"path/filepath"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"droidbench/internal/embed"
	"droidbench/internal/logging"
	"droidbench/internal/report"
	"droidbench/internal/store"
)

var _ = ginkgo.Describe("Run", func() {
	var (
		ctx    context.Context
		runDir string
		opts   Options
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		root := ginkgo.GinkgoT().TempDir()
		c, dir := fixture(root)
		runDir = dir
		threshold := 0.8
		opts = Options{
			RunDir:    runDir,
			Case:      c,
			Embedder:  fixtureVectors,
			Threshold: &threshold,
			Workers:   2,
			Logger:    logging.Discard(),
		}
	})

	ginkgo.It("scores every engine and writes results.json", func() {
		rep, err := Run(ctx, opts)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(rep.Warnings).To(gomega.BeEmpty())

		gomega.Expect(rep.ActionCoverage).NotTo(gomega.BeNil())
		gomega.Expect(rep.ActionCoverage.CoveredCount).To(gomega.Equal(2))
		gomega.Expect(rep.ActionCoverage.TotalCount).To(gomega.Equal(3))

		gomega.Expect(rep.ExactMatch).NotTo(gomega.BeNil())
		gomega.Expect(rep.ExactMatch.ExactMatches).To(gomega.Equal(2))
		gomega.Expect(rep.ExactMatch.MatchPercentage).To(gomega.BeNumerically("~", 66.67, 0.01))

		gomega.Expect(rep.PageCoverage).NotTo(gomega.BeNil())
		gomega.Expect(rep.PageCoverage.Summary.CoveredPages).To(gomega.Equal(2))
		gomega.Expect(rep.PageCoverage.Summary.TotalPages).To(gomega.Equal(3))
		gomega.Expect(rep.PageCoverage.Summary.Model).To(gomega.Equal("fixed"))
		gomega.Expect(rep.PageCoverage.Uncovered).To(gomega.HaveLen(1))
		gomega.Expect(filepath.Base(rep.PageCoverage.Uncovered[0])).To(gomega.Equal("profile.png"))

		onDisk, err := report.ReadFile(filepath.Join(runDir, ResultsFile))
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(onDisk.Scores()).To(gomega.Equal(rep.Scores()))
	})

	ginkgo.It("honours a zero page threshold", func() {
		zero := 0.0
		opts.Threshold = &zero
		opts.Engines = []Engine{PageCoverage}
		rep, err := Run(ctx, opts)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(rep.PageCoverage.Summary.Threshold).To(gomega.Equal(0.0))
	})

	ginkgo.It("uses the default threshold when none is given", func() {
		opts.Threshold = nil
		opts.Engines = []Engine{PageCoverage}
		rep, err := Run(ctx, opts)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(rep.PageCoverage.Summary.Threshold).To(gomega.Equal(0.8))
	})

	ginkgo.It("runs only the selected engines", func() {
		opts.Engines = []Engine{ExactMatch}
		rep, err := Run(ctx, opts)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(rep.ExactMatch).NotTo(gomega.BeNil())
		gomega.Expect(rep.ActionCoverage).To(gomega.BeNil())
		gomega.Expect(rep.PageCoverage).To(gomega.BeNil())
		gomega.Expect(rep.Scores().PageCoverage).To(gomega.Equal(store.NotRun))
	})

	ginkgo.It("skips engines whose benchmark input is missing", func() {
		opts.Case.Actions = nil
		opts.Case.Screenshots = nil
		rep, err := Run(ctx, opts)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(rep.ActionCoverage).To(gomega.BeNil())
		gomega.Expect(rep.PageCoverage).To(gomega.BeNil())
		gomega.Expect(rep.Warnings).To(gomega.HaveLen(2))
	})

	ginkgo.It("scores a run without actions.json as zero", func() {
		gomega.Expect(os.Remove(filepath.Join(runDir, RunActionsFile))).To(gomega.Succeed())
		rep, err := Run(ctx, opts)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(rep.ActionCoverage.Percentage).To(gomega.BeZero())
		gomega.Expect(rep.ExactMatch.ExactMatches).To(gomega.BeZero())
	})

	ginkgo.It("records the run in the history store and writes the graph", func() {
		s := store.NewMemStore()
		opts.Store = s
		opts.GraphPath = filepath.Join(runDir, "graph.dot")
		rep, err := Run(ctx, opts)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(rep.RunID).NotTo(gomega.BeEmpty())
		gomega.Expect(rep.Graph).To(gomega.Equal(opts.GraphPath))
		gomega.Expect(opts.GraphPath).To(gomega.BeAnExistingFile())

		got, err := s.GetRun(rep.RunID)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(got.CaseID).To(gomega.Equal(1))
		gomega.Expect(got.Model).To(gomega.Equal("fixed"))
		gomega.Expect(got.PageCoverage).To(gomega.BeNumerically("~", 66.67, 0.01))

		onDisk, err := report.ReadFile(filepath.Join(runDir, ResultsFile))
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(onDisk.RunID).To(gomega.Equal(rep.RunID))
	})

	ginkgo.It("reuses cached embeddings", func() {
		opts.Cache = embed.NewCache("fixed")
		_, err := Run(ctx, opts)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(opts.Cache.Len()).To(gomega.Equal(5))
	})
})
