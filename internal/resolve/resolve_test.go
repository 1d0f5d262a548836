package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpackage/openpackage/internal/gitfetch"
	"github.com/openpackage/openpackage/internal/model"
	"github.com/openpackage/openpackage/internal/semverx"
	"github.com/openpackage/openpackage/internal/source"
)

// fakeCloner returns a fixed Result for every key, standing in for a real
// clone + marketplace-marker detection pass.
type fakeCloner struct {
	result gitfetch.Result
}

func (f *fakeCloner) Clone(_ context.Context, _ gitfetch.Key, _ string) (gitfetch.Result, error) {
	return f.result, nil
}

// fakeRegistry is an in-memory RegistryResolver keyed by package name. Each
// entry's declarations list describes the package's own manifest.
type fakeRegistry struct {
	packages map[string]fakePackage
}

type fakePackage struct {
	versions     []string
	declarations map[string][]source.Declaration // version -> children
}

func (f *fakeRegistry) LocalVersions(_ context.Context, name string) ([]string, error) {
	pkg, ok := f.packages[name]
	if !ok {
		return nil, nil
	}
	return pkg.versions, nil
}

func (f *fakeRegistry) ResolveRegistry(_ context.Context, name string, ranges []string, mode semverx.Mode) (RegistryContent, error) {
	pkg, ok := f.packages[name]
	if !ok {
		return RegistryContent{}, assert.AnError
	}
	version := pkg.versions[len(pkg.versions)-1]
	return RegistryContent{ContentRoot: "registry://" + name + "@" + version, ResolvedVersion: version}, nil
}

// fakeManifest reads child declarations based on the content root string
// produced by fakeRegistry.
type fakeManifest struct {
	byRoot map[string][]source.Declaration
}

func (f *fakeManifest) ReadManifest(_ context.Context, contentRoot string) ([]source.Declaration, error) {
	return f.byRoot[contentRoot], nil
}

func TestWalker_DiamondDependency(t *testing.T) {
	// root -> a, root -> b; both a and b depend on shared@^1.0.0.
	registry := &fakeRegistry{packages: map[string]fakePackage{
		"a":      {versions: []string{"1.0.0"}},
		"b":      {versions: []string{"1.0.0"}},
		"shared": {versions: []string{"1.0.0", "1.2.0"}},
	}}
	manifest := &fakeManifest{byRoot: map[string][]source.Declaration{
		"registry://a@1.0.0": {{Name: "shared", Constraint: "^1.0.0"}},
		"registry://b@1.0.0": {{Name: "shared", Constraint: "^1.0.0"}},
	}}

	w := NewWalker(nil, registry, manifest, Options{})

	roots := []source.Declaration{
		{Name: "a", Constraint: "^1.0.0"},
		{Name: "b", Constraint: "^1.0.0"},
	}

	result, err := w.Resolve(context.Background(), roots, "/workspace")
	require.NoError(t, err)

	shared, ok := result.Graph.Nodes["registry:shared"]
	require.True(t, ok)
	assert.Equal(t, "1.2.0", shared.ResolvedVersion)
	assert.ElementsMatch(t, []string{"registry:a", "registry:b"}, shared.Parents)

	// a and b are root declarations (wave 0); shared is discovered one BFS
	// frontier level later, from both of them at once.
	a := result.Graph.Nodes["registry:a"]
	b := result.Graph.Nodes["registry:b"]
	assert.Equal(t, 0, a.Wave)
	assert.Equal(t, 0, b.Wave)
	assert.Equal(t, 1, shared.Wave)

	// installOrder is leaf-first: shared (the dependency) must precede
	// both a and b (its dependents) regardless of BFS discovery depth.
	sharedIdx := indexOf(result.Graph.InstallOrder, "registry:shared")
	aIdx := indexOf(result.Graph.InstallOrder, "registry:a")
	bIdx := indexOf(result.Graph.InstallOrder, "registry:b")
	assert.Less(t, sharedIdx, aIdx)
	assert.Less(t, sharedIdx, bIdx)

	assert.Equal(t, "1.2.0", result.VersionSolution.Resolved["shared"])
	assert.Empty(t, result.VersionSolution.Conflicts)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestWalker_UnsatisfiableConstraint(t *testing.T) {
	// root pins shared@1.0.0; a separately requires shared@^2.0.0 — no
	// single version can satisfy both.
	registry := &fakeRegistry{packages: map[string]fakePackage{
		"a":      {versions: []string{"1.0.0"}},
		"shared": {versions: []string{"1.0.0"}},
	}}
	manifest := &fakeManifest{byRoot: map[string][]source.Declaration{
		"registry://a@1.0.0": {{Name: "shared", Constraint: "^2.0.0"}},
	}}

	w := NewWalker(nil, registry, manifest, Options{})

	roots := []source.Declaration{
		{Name: "a", Constraint: "^1.0.0"},
		{Name: "shared", Constraint: "1.0.0"},
	}

	_, err := w.Resolve(context.Background(), roots, "/workspace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared")
}

func TestWalker_CycleDoesNotInfiniteLoop(t *testing.T) {
	// a depends on b, b depends back on a: must terminate and report a cycle.
	registry := &fakeRegistry{packages: map[string]fakePackage{
		"a": {versions: []string{"1.0.0"}},
		"b": {versions: []string{"1.0.0"}},
	}}
	manifest := &fakeManifest{byRoot: map[string][]source.Declaration{
		"registry://a@1.0.0": {{Name: "b", Constraint: "*"}},
		"registry://b@1.0.0": {{Name: "a", Constraint: "*"}},
	}}

	w := NewWalker(nil, registry, manifest, Options{})

	result, err := w.Resolve(context.Background(), []source.Declaration{{Name: "a", Constraint: "*"}}, "/workspace")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Graph.Cycles)
	assert.NotEmpty(t, result.Graph.Warnings)
}

func TestWalker_DevDependencyOnlyAtRootDepth(t *testing.T) {
	// a is a direct (depth-0) dependency of the workspace; its own dev
	// dependency is honored. mid is a's ordinary (non-dev) dependency, so
	// mid sits at depth 1 — mid's dev dependency must NOT be pulled in.
	registry := &fakeRegistry{packages: map[string]fakePackage{
		"a":         {versions: []string{"1.0.0"}},
		"dev-only":  {versions: []string{"1.0.0"}},
		"mid":       {versions: []string{"1.0.0"}},
		"grand-dev": {versions: []string{"1.0.0"}},
	}}
	manifest := &fakeManifest{byRoot: map[string][]source.Declaration{
		"registry://a@1.0.0": {
			{Name: "dev-only", Constraint: "*", Dev: true},
			{Name: "mid", Constraint: "*"},
		},
		"registry://mid@1.0.0": {
			{Name: "grand-dev", Constraint: "*", Dev: true},
		},
	}}

	w := NewWalker(nil, registry, manifest, Options{})

	result, err := w.Resolve(context.Background(), []source.Declaration{{Name: "a", Constraint: "*"}}, "/workspace")
	require.NoError(t, err)

	_, ok := result.Graph.Nodes["registry:dev-only"]
	assert.True(t, ok, "a depth-0 node's own dev dependency should be included")

	_, ok = result.Graph.Nodes["registry:grand-dev"]
	assert.False(t, ok, "a depth-1 node's dev dependency should be excluded")
}

func TestWalker_NodeCapStopsExpansion(t *testing.T) {
	registry := &fakeRegistry{packages: map[string]fakePackage{
		"a": {versions: []string{"1.0.0"}},
		"b": {versions: []string{"1.0.0"}},
		"c": {versions: []string{"1.0.0"}},
	}}
	manifest := &fakeManifest{byRoot: map[string][]source.Declaration{}}

	w := NewWalker(nil, registry, manifest, Options{NodeCap: 1})

	roots := []source.Declaration{
		{Name: "a", Constraint: "*"},
		{Name: "b", Constraint: "*"},
		{Name: "c", Constraint: "*"},
	}

	result, err := w.Resolve(context.Background(), roots, "/workspace")
	require.NoError(t, err)
	assert.Len(t, result.Graph.Nodes, 1)
	assert.NotEmpty(t, result.Graph.Warnings)
}

func TestWalker_MarketplaceNodeIsTerminalEvenWithReadableManifest(t *testing.T) {
	// The cloned content root carries both a marketplace marker and a
	// readable manifest listing further dependencies. A marketplace node
	// must stay terminal: its "sub-packages" are never enumerated as real
	// graph children.
	cloner := &fakeCloner{result: gitfetch.Result{
		ContentRoot:   "",
		IsMarketplace: true,
		RepoRoot:      "/cache/repo",
		CommitSHA:     "deadbeef",
	}}
	cache := gitfetch.NewCache(cloner, t.TempDir())
	manifest := &fakeManifest{byRoot: map[string][]source.Declaration{
		"": {{Name: "sub-a", Constraint: "*"}},
	}}

	w := NewWalker(cache, nil, manifest, Options{})

	roots := []source.Declaration{
		{Name: "mp", URL: "https://github.com/foo/marketplace"},
	}

	result, err := w.Resolve(context.Background(), roots, "/workspace")
	require.NoError(t, err)
	require.Len(t, result.Graph.Nodes, 1)

	var node *model.WaveNode
	for _, n := range result.Graph.Nodes {
		node = n
	}
	require.NotNil(t, node)
	assert.True(t, node.IsMarketplace)
	assert.Empty(t, node.Children)
}

func TestWalker_PathDependency(t *testing.T) {
	manifest := &fakeManifest{byRoot: map[string][]source.Declaration{}}
	w := NewWalker(nil, nil, manifest, Options{})

	roots := []source.Declaration{
		{Name: "local-tool", Path: "./tools/local-tool"},
	}

	result, err := w.Resolve(context.Background(), roots, "/workspace")
	require.NoError(t, err)
	require.Len(t, result.Graph.Nodes, 1)

	for _, n := range result.Graph.Nodes {
		assert.Equal(t, "/workspace/tools/local-tool", n.ContentRoot)
	}
}
