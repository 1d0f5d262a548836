package install

import (
	"context"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openpackage/openpackage/internal/index"
	"github.com/openpackage/openpackage/internal/model"
	"github.com/openpackage/openpackage/internal/strategy"
)

func TestInstaller(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Installer Suite")
}

func freshIndex() *index.Index {
	dir, err := os.MkdirTemp("", "openpackage-installer-suite-*")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { os.RemoveAll(dir) })
	return index.New(dir)
}

var _ = Describe("Engine.Install", func() {
	var (
		w       *fakeWriter
		planner *directCopyPlanner
	)

	BeforeEach(func() {
		w = newFakeWriter()
		planner = newDirectCopyPlanner(w)
	})

	Context("a marketplace node in wave 0", func() {
		It("is skipped without ever reaching the planner", func() {
			engine := NewEngine(planner, freshIndex(), Options{})
			graph := graphOf(&model.WaveNode{ID: "mp", DisplayName: "mp", Wave: 0, IsMarketplace: true})

			By("running the install")
			report, err := engine.Install(context.Background(), graph, map[string]bool{})

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Installed).To(BeZero())
			Expect(report.Outcomes).To(BeEmpty())
			Expect(w.written).To(BeEmpty())
		})
	})

	Context("two independent packages sharing a wave", func() {
		It("preserves install-order indexing in the outcome slice regardless of completion order", func() {
			engine := NewEngine(planner, freshIndex(), Options{ConcurrencyLimit: 2})
			graph := graphOf(
				&model.WaveNode{ID: "x", DisplayName: "x", Wave: 0},
				&model.WaveNode{ID: "y", DisplayName: "y", Wave: 0},
			)

			By("installing the wave concurrently")
			report, err := engine.Install(context.Background(), graph, map[string]bool{})

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Outcomes).To(HaveLen(2))
			Expect(report.Outcomes[0].Node.ID).To(Equal("x"))
			Expect(report.Outcomes[1].Node.ID).To(Equal("y"))
			Expect(w.written).To(HaveKey("x.md"))
			Expect(w.written).To(HaveKey("y.md"))
		})
	})

	Context("a package already recorded installed", func() {
		It("is skipped unless force is set", func() {
			graph := graphOf(&model.WaveNode{ID: "a", DisplayName: "a", Wave: 0})

			By("installing without force")
			engine := NewEngine(planner, freshIndex(), Options{})
			report, err := engine.Install(context.Background(), graph, map[string]bool{"a": true})
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Installed).To(BeZero())

			By("installing with force")
			forced := NewEngine(planner, freshIndex(), Options{Force: true})
			report, err = forced.Install(context.Background(), graph, map[string]bool{"a": true})
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Installed).To(Equal(1))
		})
	})

	Context("a pre-converted universal file planned as a direct copy", func() {
		It("writes it under its own path with its universal fields kept and no vendor fields added", func() {
			writer := newFakeWriter()
			claudePlanner := &vendorConvertPlanner{writer: writer}
			engine := NewEngine(claudePlanner, freshIndex(), Options{})

			graph := graphOf(&model.WaveNode{ID: "reviewer", DisplayName: "reviewer", Wave: 0})

			By("running the install")
			report, err := engine.Install(context.Background(), graph, map[string]bool{})

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Installed).To(Equal(1))
			Expect(writer.written).To(HaveKey("agents/reviewer.md"))
			tools, _ := writer.written["agents/reviewer.md"].Frontmatter["tools"].([]string)
			Expect(tools).To(Equal([]string{"read", "write"}))
			_, hasPermissionMode := writer.written["agents/reviewer.md"].Frontmatter["permissionMode"]
			Expect(hasPermissionMode).To(BeFalse())
		})
	})
})

// vendorConvertPlanner plans a single node as a pre-converted universal
// file, standing in for a real format.Detector/strategy.Select pass so
// this suite can assert on the installer's write path without wiring
// internal/plan end to end.
type vendorConvertPlanner struct {
	writer strategy.Writer
}

func (p *vendorConvertPlanner) Plan(_ context.Context, node *model.WaveNode) (PackagePlan, error) {
	return PackagePlan{
		StrategyName: strategy.DirectCopy,
		StrategyCtx: strategy.Context{
			Files: []model.PackageFile{{
				Path: "agents/reviewer.md",
				Frontmatter: map[string]any{
					"tools": []string{"read", "write"},
				},
			}},
			Writer: p.writer,
		},
	}, nil
}
