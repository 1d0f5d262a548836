package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoConfigFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	opts, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrencyLimit, opts.ConcurrencyLimit)
	assert.Equal(t, ResolutionStrict, opts.ResolutionMode)
	assert.False(t, opts.FailFast)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".openpackage"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".openpackage", FileName), []byte(`
concurrencyLimit: 10
failFast: true
resolutionMode: newest
`), 0o644))

	opts, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 10, opts.ConcurrencyLimit)
	assert.True(t, opts.FailFast)
	assert.Equal(t, ResolutionNewest, opts.ResolutionMode)
}

func TestLoad_RejectsInvalidResolutionMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".openpackage"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".openpackage", FileName), []byte(`
resolutionMode: bogus
`), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_EnvVarsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".openpackage"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".openpackage", FileName), []byte(`
concurrencyLimit: 10
`), 0o644))
	t.Setenv(EnvConcurrencyLimit, "3")

	opts, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, opts.ConcurrencyLimit)
}

func TestExpandTilde_ExpandsLeadingHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expanded, err := ExpandTilde("~/foo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "foo"), expanded)
}

func TestExpandTilde_LeavesOtherPathsUnchanged(t *testing.T) {
	expanded, err := ExpandTilde("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", expanded)
}
