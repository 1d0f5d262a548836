package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Load_MissingFileIsEmptyNotFatal(t *testing.T) {
	dir := t.TempDir()
	idx := New(dir)

	result, err := idx.Load()
	require.NoError(t, err)
	assert.NotNil(t, result.Index.Packages)
	assert.Empty(t, result.Index.Packages)
}

func TestIndex_SaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	idx := New(dir)
	require.NoError(t, idx.Lock())
	defer idx.Unlock()

	doc := &Document{Packages: map[string]*PackageEntry{
		"ripgrep": {
			Path:    "agents/ripgrep",
			Version: "14.1.0",
			Files: map[string][]FileTarget{
				"registry:ripgrep": {{Target: "agents/ripgrep/AGENT.md"}},
			},
		},
	}}
	require.NoError(t, idx.Save(doc))

	loaded, err := idx.Load()
	require.NoError(t, err)
	require.Contains(t, loaded.Index.Packages, "ripgrep")
	entry := loaded.Index.Packages["ripgrep"]
	assert.Equal(t, "agents/ripgrep", entry.Path)
	assert.Equal(t, "14.1.0", entry.Version)
	assert.Equal(t, "agents/ripgrep/AGENT.md", entry.Files["registry:ripgrep"][0].Target)
}

func TestIndex_Load_DefaultsFilesToEmptyMap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".openpackage"), 0o755))
	raw := "packages:\n  foo:\n    path: agents/foo\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultRelativePath), []byte(raw), 0o644))

	idx := New(dir)
	result, err := idx.Load()
	require.NoError(t, err)
	require.Contains(t, result.Index.Packages, "foo")
	assert.NotNil(t, result.Index.Packages["foo"].Files)
	assert.Empty(t, result.Index.Packages["foo"].Files)
}

func TestIndex_Load_MigratesLegacyGitKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".openpackage"), 0o755))
	raw := "packages:\n  foo:\n    path: agents/foo\n    files:\n      \"git:https://github.com/example/foo\":\n        - agents/foo/AGENT.md\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultRelativePath), []byte(raw), 0o644))

	idx := New(dir)
	result, err := idx.Load()
	require.NoError(t, err)

	entry := result.Index.Packages["foo"]
	_, hasLegacy := entry.Files["git:https://github.com/example/foo"]
	assert.False(t, hasLegacy)
	targets, hasNew := entry.Files["url:https://github.com/example/foo"]
	require.True(t, hasNew)
	assert.Equal(t, "agents/foo/AGENT.md", targets[0].Target)
}

func TestIndex_Lock_RejectsSecondLocker(t *testing.T) {
	dir := t.TempDir()
	first := New(dir)
	require.NoError(t, first.Lock())
	defer first.Unlock()

	second := New(dir)
	err := second.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace index")
}

func TestIndex_Save_CreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	idx := New(filepath.Join(dir, "nested", "workspace"))

	err := idx.Save(&Document{Packages: map[string]*PackageEntry{}})
	require.NoError(t, err)

	_, err = os.Stat(idx.Path())
	require.NoError(t, err)
}

func TestSortedPackageNames(t *testing.T) {
	doc := &Document{Packages: map[string]*PackageEntry{
		"zeta":  {},
		"alpha": {},
		"mid":   {},
	}}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, SortedPackageNames(doc))
}
