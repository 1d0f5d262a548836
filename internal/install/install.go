// Package install executes a resolved wave graph: for each wave in
// ascending order, it plans and runs every installable node, bounding
// parallelism within the wave, buffering output so it can be flushed in
// deterministic install order, and deferring index mutations to a single
// atomic write per wave.
package install

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/openpackage/openpackage/internal/index"
	"github.com/openpackage/openpackage/internal/model"
	"github.com/openpackage/openpackage/internal/ownership"
	"github.com/openpackage/openpackage/internal/strategy"
)

// DefaultConcurrencyLimit bounds how many packages install in parallel
// within one wave.
const DefaultConcurrencyLimit = 5

// PackagePlan is everything the installer needs to run one node's
// install: the chosen strategy and the context to run it with, or a
// skip instruction.
type PackagePlan struct {
	StrategyName strategy.Name
	StrategyCtx  strategy.Context
	Skip         bool
	SkipReason   string
}

// Planner builds a PackagePlan for one resolved node. Format detection,
// reading the node's content root into model.PackageFile values, and
// selecting import/export flow tables are all upstream concerns
// implemented outside this package.
type Planner interface {
	Plan(ctx context.Context, node *model.WaveNode) (PackagePlan, error)
}

// OutputSink buffers one package's user-visible log lines so a parallel
// wave's output can be flushed in deterministic install order after the
// wave joins, rather than interleaving as tasks complete.
type OutputSink struct {
	mu    sync.Mutex
	lines []string
}

// Write appends one line to the sink.
func (s *OutputSink) Write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

// Lines returns a snapshot of everything written so far.
func (s *OutputSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// IndexWriteCollector accumulates per-package file-ownership mutations
// produced during a wave, for a single atomic flush at the wave
// boundary. Safe for concurrent use by every task in a wave.
type IndexWriteCollector struct {
	mu        sync.Mutex
	mutations map[string]*index.PackageEntry
}

// NewIndexWriteCollector creates an empty collector.
func NewIndexWriteCollector() *IndexWriteCollector {
	return &IndexWriteCollector{mutations: map[string]*index.PackageEntry{}}
}

// Record queues pkgName's file mapping (source path -> target path) and
// resolved version for the next Flush.
func (c *IndexWriteCollector) Record(pkgName, version string, fileMapping map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.mutations[pkgName]
	if !ok {
		entry = &index.PackageEntry{Files: map[string][]index.FileTarget{}}
		c.mutations[pkgName] = entry
	}
	if version != "" {
		entry.Version = version
	}
	for src, target := range fileMapping {
		entry.Files[src] = append(entry.Files[src], index.FileTarget{Target: target})
	}
}

// Snapshot returns base overlaid with every mutation queued so far,
// without mutating base. Ownership queries made mid-wave consult this
// union of committed state and in-flight mutations, so two packages in
// the same wave never both believe a path they are both about to write
// is unowned.
func (c *IndexWriteCollector) Snapshot(base *index.Document) *index.Document {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := &index.Document{Packages: make(map[string]*index.PackageEntry, len(base.Packages)+len(c.mutations))}
	for name, entry := range base.Packages {
		merged.Packages[name] = entry
	}
	for name, entry := range c.mutations {
		merged.Packages[name] = entry
	}
	return merged
}

// Flush merges every queued mutation into doc, reporting whether
// anything changed so the caller can skip a no-op Save.
func (c *IndexWriteCollector) Flush(doc *index.Document) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.mutations) == 0 {
		return false
	}
	if doc.Packages == nil {
		doc.Packages = map[string]*index.PackageEntry{}
	}
	for name, entry := range c.mutations {
		doc.Packages[name] = entry
	}
	c.mutations = map[string]*index.PackageEntry{}
	return true
}

// Outcome is one package's install result within a run.
type Outcome struct {
	Node       *model.WaveNode
	Result     strategy.Result
	Output     []string
	Skipped    bool
	SkipReason string
}

// Report is a full install run's result. RunID is a unique identifier
// for the run; it is reported only and is not written into the index.
type Report struct {
	RunID     string
	Installed int
	Failed    int
	Skipped   int
	Outcomes  []Outcome
	Warnings  []string
}

// Options configures one Engine run.
type Options struct {
	ConcurrencyLimit int
	Force            bool
	FailFast         bool
}

// Engine installs a resolved WaveGraph wave by wave.
type Engine struct {
	planner Planner
	idx     *index.Index
	opts    Options
}

// NewEngine creates an Engine. idx must already be constructed over the
// target workspace (see internal/index.New).
func NewEngine(planner Planner, idx *index.Index, opts Options) *Engine {
	if opts.ConcurrencyLimit <= 0 {
		opts.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	return &Engine{planner: planner, idx: idx, opts: opts}
}

// Install runs every installable node in graph, wave by wave in
// ascending order, then best-effort persists resolved versions and
// child edges for every node once installation is done.
func (e *Engine) Install(ctx context.Context, graph *model.WaveGraph, alreadyInstalled map[string]bool) (*Report, error) {
	if err := e.idx.Lock(); err != nil {
		return nil, fmt.Errorf("failed to acquire workspace index lock: %w", err)
	}
	defer func() { _ = e.idx.Unlock() }()

	readResult, err := e.idx.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace index: %w", err)
	}
	doc := readResult.Index

	report := &Report{RunID: uuid.NewString()}
	waves := groupByWave(graph, e.opts.Force, alreadyInstalled)

	for _, nodes := range waves {
		if len(nodes) == 0 {
			continue
		}

		collector := NewIndexWriteCollector()
		outcomes := e.runWave(ctx, nodes, doc, collector)

		failedThisWave := false
		for _, o := range outcomes {
			report.Outcomes = append(report.Outcomes, o)
			report.Warnings = append(report.Warnings, o.Result.Warnings...)
			switch {
			case o.Skipped:
				report.Skipped++
			case !o.Result.Success:
				report.Failed++
				failedThisWave = true
			default:
				report.Installed++
			}
		}

		if collector.Flush(doc) {
			if err := e.idx.Save(doc); err != nil {
				report.Warnings = append(report.Warnings, fmt.Sprintf("failed to flush workspace index: %v", err))
			}
		}

		if e.opts.FailFast && failedThisWave {
			break
		}
	}

	e.finalizeIndex(graph)

	return report, nil
}

// runWave decides parallel vs sequential execution for one wave:
// parallel only when there is more than one installable node and the
// configured concurrency limit allows it.
func (e *Engine) runWave(ctx context.Context, nodes []*model.WaveNode, doc *index.Document, collector *IndexWriteCollector) []Outcome {
	if len(nodes) <= 1 || e.opts.ConcurrencyLimit <= 1 {
		outcomes := make([]Outcome, 0, len(nodes))
		for _, node := range nodes {
			outcomes = append(outcomes, e.runOne(ctx, node, doc, collector))
		}
		return outcomes
	}
	return e.runWaveParallel(ctx, nodes, doc, collector)
}

// runWaveParallel runs nodes concurrently under a bounded semaphore,
// with continue-on-error semantics: one node failing never stops its
// siblings, since a wave's members have no dependency on each other by
// construction. Results land at their original index so the caller
// flushes output in install order rather than completion order.
func (e *Engine) runWaveParallel(ctx context.Context, nodes []*model.WaveNode, doc *index.Document, collector *IndexWriteCollector) []Outcome {
	sem := semaphore.NewWeighted(int64(e.opts.ConcurrencyLimit))
	outcomes := make([]Outcome, len(nodes))
	var wg sync.WaitGroup

	for i, node := range nodes {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = Outcome{Node: node, Skipped: true, SkipReason: err.Error()}
			continue
		}
		wg.Add(1)
		go func(i int, node *model.WaveNode) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = e.runOne(ctx, node, doc, collector)
		}(i, node)
	}
	wg.Wait()
	return outcomes
}

// runOne plans and executes a single node's install. Every package
// builds its own ownership resolver over a fresh snapshot of committed
// plus in-flight index state; this is never shared across packages in
// the wave, since sharing one context keyed to a synthetic "wave"
// package would misclassify a reinstall's own files as belonging to
// someone else.
func (e *Engine) runOne(ctx context.Context, node *model.WaveNode, doc *index.Document, collector *IndexWriteCollector) Outcome {
	sink := &OutputSink{}

	plan, err := e.planner.Plan(ctx, node)
	if err != nil {
		sink.Write(fmt.Sprintf("%s: plan failed: %v", node.DisplayName, err))
		return Outcome{Node: node, Skipped: true, SkipReason: err.Error(), Output: sink.Lines()}
	}
	if plan.Skip {
		sink.Write(fmt.Sprintf("%s: skipped (%s)", node.DisplayName, plan.SkipReason))
		return Outcome{Node: node, Skipped: true, SkipReason: plan.SkipReason, Output: sink.Lines()}
	}

	stratCtx := plan.StrategyCtx
	stratCtx.PackageName = node.DisplayName
	stratCtx.Force = e.opts.Force
	stratCtx.Resolver = ownership.NewResolver(ownership.NewIndex(collector.Snapshot(doc)))

	result := strategy.Run(plan.StrategyName, stratCtx)
	sink.Write(fmt.Sprintf("%s: %s strategy, %d files written", node.DisplayName, plan.StrategyName, len(result.FilesWritten)))
	for _, c := range result.Conflicts {
		sink.Write(fmt.Sprintf("%s: conflict on %q, owned by %q", node.DisplayName, c.Pair.TargetPath, c.OwnerPackage))
	}

	if result.Success {
		collector.Record(node.DisplayName, node.ResolvedVersion, result.FileMapping)
	}

	return Outcome{Node: node, Result: result, Output: sink.Lines()}
}

// finalizeIndex best-effort persists resolved versions and dependency
// edges for every node in graph, independent of whether that node's
// strategy wrote any files this run (e.g. a skipped already-installed
// node whose version was re-resolved still needs its edges recorded).
// Failures warn rather than fail the overall run. Called while Install
// still holds the index lock, so it reads and writes directly.
func (e *Engine) finalizeIndex(graph *model.WaveGraph) {
	readResult, err := e.idx.Load()
	if err != nil {
		slog.Warn("failed to load workspace index for finalization", "error", err)
		return
	}
	doc := readResult.Index

	for _, id := range graph.InstallOrder {
		node, ok := graph.Nodes[id]
		if !ok {
			continue
		}
		entry, ok := doc.Packages[node.DisplayName]
		if !ok {
			entry = &index.PackageEntry{Files: map[string][]index.FileTarget{}}
			doc.Packages[node.DisplayName] = entry
		}
		if node.ResolvedVersion != "" {
			entry.Version = node.ResolvedVersion
		}
		entry.Dependencies = node.Children
	}

	if err := e.idx.Save(doc); err != nil {
		slog.Warn("failed to persist workspace index after install", "error", err)
	}
}

// groupByWave partitions graph's nodes into install batches along
// graph.Layers — the topological depth computed from the dependency
// edges — rather than node.Wave, which is only BFS discovery depth and
// can place a dependency in a later batch than a dependent that was
// discovered first (e.g. a shared diamond dependency). Marketplace
// terminals are skipped (they have no files of their own to install),
// as are, unless force is set, nodes already recorded installed.
// Within a batch, relative order is preserved from the layer, which is
// already stable by id.
func groupByWave(graph *model.WaveGraph, force bool, alreadyInstalled map[string]bool) [][]*model.WaveNode {
	waves := make([][]*model.WaveNode, 0, len(graph.Layers))

	for _, layer := range graph.Layers {
		var nodes []*model.WaveNode
		for _, id := range layer {
			node, ok := graph.Nodes[id]
			if !ok || node.IsMarketplace {
				continue
			}
			if !force && alreadyInstalled[id] {
				continue
			}
			nodes = append(nodes, node)
		}
		waves = append(waves, nodes)
	}
	return waves
}
