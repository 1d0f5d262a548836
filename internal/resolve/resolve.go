// Package resolve walks a dependency frontier wave by wave, fetching each
// unique node once, merging declarations from every parent that requests
// it, and detecting cycles along the way. It is the BFS engine that turns a
// set of root declarations into a model.WaveResult, driven by
// internal/graph for the underlying topology and internal/semverx for
// per-package version solving.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	openerrors "github.com/openpackage/openpackage/internal/errs"
	"github.com/openpackage/openpackage/internal/gitfetch"
	"github.com/openpackage/openpackage/internal/graph"
	"github.com/openpackage/openpackage/internal/model"
	"github.com/openpackage/openpackage/internal/semverx"
	"github.com/openpackage/openpackage/internal/source"
)

// DefaultNodeCap is the safety valve on total distinct nodes a single
// resolve run may create, guarding against runaway or adversarial manifests.
const DefaultNodeCap = 10_000

// ManifestReader reads the child dependency declarations out of a resolved
// content root (a package's own manifest file). Implemented by
// internal/manifest.
type ManifestReader interface {
	ReadManifest(ctx context.Context, contentRoot string) ([]source.Declaration, error)
}

// RegistryContent is what a registry lookup yields for one name: a content
// root to walk for child declarations and a version to record.
type RegistryContent struct {
	ContentRoot     string
	ResolvedVersion string
}

// RegistryResolver fetches package content and lists locally known versions
// for name. Implemented by internal/registryclient.
type RegistryResolver interface {
	ResolveRegistry(ctx context.Context, name string, ranges []string, mode semverx.Mode) (RegistryContent, error)
	LocalVersions(ctx context.Context, name string) ([]string, error)
}

// Options configures one Walker run.
type Options struct {
	NodeCap int
	Mode    semverx.Mode
	// RootOverrides maps a package name to a constraint that replaces every
	// descendant-supplied range for that package (see semverx.ReplaceWithRootOverride).
	RootOverrides map[string]string
	Remote        semverx.RemoteLister
}

// Walker runs the wave-by-wave frontier walk described above.
type Walker struct {
	git      *gitfetch.Cache
	registry RegistryResolver
	manifest ManifestReader
	opts     Options
}

// NewWalker creates a Walker. git, registry, and manifest may be nil only
// if the root declarations never exercise the corresponding source kind.
func NewWalker(git *gitfetch.Cache, registry RegistryResolver, manifest ManifestReader, opts Options) *Walker {
	if opts.NodeCap <= 0 {
		opts.NodeCap = DefaultNodeCap
	}
	if opts.Mode == "" {
		opts.Mode = semverx.ModeDefault
	}
	return &Walker{git: git, registry: registry, manifest: manifest, opts: opts}
}

// frontierEntry is one pending (declaration, origin) pair waiting to be
// grouped, fetched, and expanded.
type frontierEntry struct {
	decl      source.Declaration
	declDir   string
	depth     int
	parentID  string
	ancestors []string
}

// Resolve walks roots (declared in rootDir, typically the workspace
// manifest) to completion and returns the resolved wave graph plus its
// version solution. Per-node fetch failures become warnings and missing
// entries; an unsatisfiable version constraint is fatal.
func (w *Walker) Resolve(ctx context.Context, roots []source.Declaration, rootDir string) (*model.WaveResult, error) {
	nodes := make(map[string]*model.WaveNode)
	localVersionsByID := make(map[string][]string)
	var warnings []string
	var missing []string
	var cycles [][]string

	g := graph.NewResolver()

	frontier := make([]frontierEntry, 0, len(roots))
	for _, d := range roots {
		frontier = append(frontier, frontierEntry{decl: d, declDir: rootDir, depth: 0})
	}

	for len(frontier) > 0 {
		groups, order := groupByID(frontier)
		var next []frontierEntry

		for _, id := range order {
			group := filterCycles(groups[id], id, &cycles, &warnings)
			if len(group) == 0 {
				continue
			}

			addr := source.Address(group[0].decl, group[0].declDir)
			node, exists := nodes[id]
			freshlyCreated := !exists
			if freshlyCreated {
				if len(nodes) >= w.opts.NodeCap {
					warnings = append(warnings, fmt.Sprintf("node cap (%d) reached, skipping %s", w.opts.NodeCap, id))
					continue
				}
				node = &model.WaveNode{
					ID:            id,
					DisplayName:   addr.DisplayName,
					SourceType:    model.SourceType(addr.SourceType),
					NormalizedURL: addr.NormalizedURL,
					Ref:           addr.Ref,
					AbsPath:       addr.AbsPath,
					Metadata:      map[string]string{},
					Wave:          group[0].depth,
				}
				nodes[id] = node
				g.AddNode(graph.NodeID(id))
			}

			for _, f := range group {
				node.Declarations = append(node.Declarations, model.DependencyDeclaration{
					Name:       f.decl.Name,
					Constraint: f.decl.Constraint,
					URL:        f.decl.URL,
					Path:       f.decl.Path,
					Dev:        f.decl.Dev,
				})
				if f.parentID == "" {
					continue
				}
				if !containsStr(node.Parents, f.parentID) {
					node.Parents = append(node.Parents, f.parentID)
				}
				if parent, ok := nodes[f.parentID]; ok && !containsStr(parent.Children, id) {
					parent.Children = append(parent.Children, id)
				}
				g.AddEdge(graph.NodeID(f.parentID), graph.NodeID(id))
			}

			if !freshlyCreated {
				continue
			}

			childDeclDir, childDecls, err := w.fetch(ctx, id, addr, node, &localVersionsByID)
			if err != nil {
				warnings = append(warnings, err.Error())
				missing = append(missing, addr.DisplayName)
				continue
			}

			childAncestors := append(append([]string{}, group[0].ancestors...), id)
			for _, cd := range childDecls {
				if cd.Dev && group[0].depth != 0 {
					continue
				}
				next = append(next, frontierEntry{
					decl:      cd,
					declDir:   childDeclDir,
					depth:     group[0].depth + 1,
					parentID:  id,
					ancestors: childAncestors,
				})
			}
		}

		frontier = next
	}

	solution, err := w.solveVersions(nodes, localVersionsByID)
	if err != nil {
		return nil, err
	}

	waveGraph, err := w.buildWaveGraph(nodes, g, cycles, warnings)
	if err != nil {
		return nil, err
	}

	return &model.WaveResult{
		Graph:           waveGraph,
		VersionSolution: solution,
		MissingPackages: dedupeStrings(missing),
	}, nil
}

// fetch resolves id's content root and lists its child declarations,
// populating node's content-related fields as a side effect.
func (w *Walker) fetch(
	ctx context.Context,
	id string,
	addr source.Addressed,
	node *model.WaveNode,
	localVersionsByID *map[string][]string,
) (childDeclDir string, childDecls []source.Declaration, err error) {
	switch addr.SourceType {
	case source.KindRegistry:
		if w.registry == nil {
			return "", nil, fmt.Errorf("no registry resolver configured for %s", addr.DisplayName)
		}
		localVersions, lerr := w.registry.LocalVersions(ctx, addr.DisplayName)
		if lerr == nil {
			(*localVersionsByID)[id] = localVersions
		}
		ranges := declRanges(node.Declarations)
		content, rerr := w.registry.ResolveRegistry(ctx, addr.DisplayName, ranges, w.opts.Mode)
		if rerr != nil {
			return "", nil, rerr
		}
		node.ContentRoot = content.ContentRoot
		node.ResolvedVersion = content.ResolvedVersion
		childDeclDir = content.ContentRoot

	case source.KindGit:
		if w.git == nil {
			return "", nil, fmt.Errorf("no git fetcher configured for %s", id)
		}
		res, gerr := w.git.Resolve(ctx, gitfetch.Key{URL: addr.NormalizedURL, Ref: addr.Ref, Subpath: addr.Subpath})
		if gerr != nil {
			return "", nil, gerr
		}
		node.ContentRoot = res.ContentRoot
		node.RepoRoot = res.RepoRoot
		node.CommitSHA = res.CommitSHA
		node.IsMarketplace = res.IsMarketplace
		if res.IsMarketplace {
			// Marketplace results are terminal: no content root to walk, no
			// children to enumerate, regardless of what a manifest reader
			// might find if pointed at one.
			return "", nil, nil
		}
		childDeclDir = res.ContentRoot

	case source.KindPath:
		node.ContentRoot = addr.AbsPath
		childDeclDir = addr.AbsPath
	}

	if w.manifest != nil {
		decls, merr := w.manifest.ReadManifest(ctx, childDeclDir)
		if merr != nil {
			return childDeclDir, nil, nil
		}
		childDecls = decls
	}
	return childDeclDir, childDecls, nil
}

// solveVersions runs the per-package version solver over every registry
// node's accumulated declarations, once the frontier has fully drained and
// every parent's constraint has been merged in.
func (w *Walker) solveVersions(nodes map[string]*model.WaveNode, localVersions map[string][]string) (model.VersionSolution, error) {
	solution := model.VersionSolution{Resolved: make(map[string]string)}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := nodes[id]
		if node.SourceType != model.SourceRegistry {
			continue
		}

		ranges := make([]string, 0, len(node.Declarations))
		requestedBy := make([]string, 0, len(node.Declarations))
		for _, d := range node.Declarations {
			c := d.Constraint
			if override, ok := w.opts.RootOverrides[node.DisplayName]; ok {
				c = semverx.ReplaceWithRootOverride(override, []string{c})[0]
			}
			ranges = append(ranges, c)
			requestedBy = append(requestedBy, d.Name)
		}

		res, err := semverx.Solve(semverx.Request{
			PackageName: node.DisplayName,
			Ranges:      ranges,
			RequestedBy: requestedBy,
		}, localVersions[id], w.opts.Mode, w.opts.Remote)
		if err != nil {
			return solution, err
		}
		if res.Conflict != nil {
			return solution, openerrors.NewVersionConflictError(res.Conflict.PackageName, res.Conflict.Ranges, res.Conflict.RequestedBy)
		}
		if res.Missing {
			continue
		}
		node.ResolvedVersion = res.Version
		solution.Resolved[node.DisplayName] = res.Version
	}

	return solution, nil
}

// buildWaveGraph computes the final install order from the underlying
// topology and assembles the public WaveGraph. Per-node Wave numbers were
// already assigned at discovery time (BFS frontier depth); installOrder is
// a separate reverse-topological traversal so dependencies always precede
// their dependents regardless of how deep either sits in the BFS.
func (w *Walker) buildWaveGraph(nodes map[string]*model.WaveNode, g graph.Resolver, cycles [][]string, warnings []string) (*model.WaveGraph, error) {
	layers, err := g.Resolve()
	if err != nil {
		if cycleErr, ok := err.(*graph.CycleError); ok {
			return nil, cycleErr.AsTaxonomyError()
		}
		return nil, err
	}

	installOrder := make([]string, 0, len(nodes))
	layerIDs := make([][]string, 0, len(layers))
	for _, layer := range layers {
		ids := make([]string, 0, len(layer.Nodes))
		for _, n := range layer.Nodes {
			installOrder = append(installOrder, n.ID.String())
			ids = append(ids, n.ID.String())
		}
		layerIDs = append(layerIDs, ids)
	}

	maxWave := 0
	for _, node := range nodes {
		if node.Wave > maxWave {
			maxWave = node.Wave
		}
	}

	var roots []string
	for id, node := range nodes {
		if len(node.Parents) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	waveCount := 0
	if len(nodes) > 0 {
		waveCount = maxWave + 1
	}

	return &model.WaveGraph{
		Nodes:        nodes,
		Roots:        roots,
		InstallOrder: installOrder,
		Layers:       layerIDs,
		Cycles:       cycles,
		WaveCount:    waveCount,
		Warnings:     warnings,
	}, nil
}

func groupByID(frontier []frontierEntry) (map[string][]frontierEntry, []string) {
	groups := make(map[string][]frontierEntry)
	var order []string
	for _, f := range frontier {
		addr := source.Address(f.decl, f.declDir)
		if _, ok := groups[addr.ID]; !ok {
			order = append(order, addr.ID)
		}
		groups[addr.ID] = append(groups[addr.ID], f)
	}
	sort.Strings(order)
	return groups, order
}

// filterCycles drops any entry whose ancestor chain already contains id,
// recording the cycle and a warning for each. Entries from other parents
// that are not cyclic still proceed.
func filterCycles(group []frontierEntry, id string, cycles *[][]string, warnings *[]string) []frontierEntry {
	ok := make([]frontierEntry, 0, len(group))
	for _, f := range group {
		cyclic := false
		for _, a := range f.ancestors {
			if a == id {
				cyclic = true
				break
			}
		}
		if !cyclic {
			ok = append(ok, f)
			continue
		}
		chain := append(append([]string{}, f.ancestors...), id)
		*cycles = append(*cycles, chain)
		*warnings = append(*warnings, fmt.Sprintf("cycle detected: %s", strings.Join(chain, " -> ")))
	}
	return ok
}

func declRanges(decls []model.DependencyDeclaration) []string {
	out := make([]string, 0, len(decls))
	for _, d := range decls {
		out = append(out, d.Constraint)
	}
	return out
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
