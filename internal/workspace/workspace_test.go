package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ResolvesDefaultLayout(t *testing.T) {
	dir := t.TempDir()
	p, err := New(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, p.Root())
	assert.Equal(t, filepath.Join(dir, ".openpackage", "openpackage.index.yml"), p.IndexPath())
	assert.Equal(t, filepath.Join(dir, ".openpackage", "cache"), p.CacheDir())
	assert.Equal(t, filepath.Join(dir, ".openpackage", "config.yml"), p.ConfigPath())
}

func TestNew_WithIndexPathOverride(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "custom-index.yml")
	p, err := New(dir, WithIndexPath(custom))
	require.NoError(t, err)
	assert.Equal(t, custom, p.IndexPath())
}

func TestNew_ExpandsHomeInRoot(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	p, err := New("~/ws")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "ws"), p.Root())
}

func TestEnsureCacheDir_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	p, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, p.EnsureCacheDir())
	info, err := os.Stat(p.CacheDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExpand_LeavesAbsolutePathUnchanged(t *testing.T) {
	expanded, err := Expand("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", expanded)
}
