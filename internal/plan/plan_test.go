package plan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpackage/openpackage/internal/format"
	"github.com/openpackage/openpackage/internal/model"
	"github.com/openpackage/openpackage/internal/strategy"
)

type nopWriter struct{}

func (nopWriter) Write(targetPath string, file model.PackageFile) error { return nil }

func universalDetector() *format.Detector {
	return format.NewDetector(
		[]format.Marker{{FormatID: UniversalFormat, Path: "plugin.json"}},
		nil,
	)
}

func TestPlan_NoContentRootSkips(t *testing.T) {
	p := New(Tables{Detector: universalDetector()}, nopWriter{})
	node := &model.WaveNode{DisplayName: "demo"}

	got, err := p.Plan(context.Background(), node)
	require.NoError(t, err)
	assert.True(t, got.Skip)
	assert.Equal(t, "no content root resolved", got.SkipReason)
}

func TestPlan_EmptyContentRootSkips(t *testing.T) {
	dir := t.TempDir()
	p := New(Tables{Detector: universalDetector()}, nopWriter{})
	node := &model.WaveNode{DisplayName: "demo", ContentRoot: dir}

	got, err := p.Plan(context.Background(), node)
	require.NoError(t, err)
	assert.True(t, got.Skip)
}

func TestPlan_SameFormatNoExportFlowsSelectsDirectCopy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(`{"name":"demo"}`), 0o644))

	p := New(Tables{Detector: universalDetector(), TargetFormat: UniversalFormat}, nopWriter{})
	node := &model.WaveNode{DisplayName: "demo", ContentRoot: dir}

	got, err := p.Plan(context.Background(), node)
	require.NoError(t, err)
	assert.False(t, got.Skip)
	assert.Equal(t, strategy.DirectCopy, got.StrategyName)
	assert.Equal(t, dir, got.StrategyCtx.SourceCwd)
	assert.Len(t, got.StrategyCtx.Files, 1)
}

func TestPlan_DifferentFormatSelectsConvertThenInstall(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o644))

	detector := format.NewDetector(
		[]format.Marker{{FormatID: "other", Path: "other.json"}},
		nil,
	)
	p := New(Tables{Detector: detector, TargetFormat: UniversalFormat}, nopWriter{})
	node := &model.WaveNode{DisplayName: "demo", ContentRoot: dir}

	got, err := p.Plan(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, strategy.ConvertThenInstall, got.StrategyName)
}

func TestReadPackageFiles_ParsesFrontmatter(t *testing.T) {
	dir := t.TempDir()
	content := "---\nname: demo\ndescription: a skill\n---\n# Demo\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644))

	files, err := ReadPackageFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "SKILL.md", files[0].Path)
	assert.Equal(t, "demo", files[0].Frontmatter["name"])
}

func TestReadPackageFiles_NoFrontmatterLeavesFrontmatterNil(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# no frontmatter here"), 0o644))

	files, err := ReadPackageFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Nil(t, files[0].Frontmatter)
}

func TestReadPackageFiles_NestedDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "logo.png"), []byte("binary"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(`{}`), 0o644))

	files, err := ReadPackageFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Contains(t, paths, "plugin.json")
	assert.Contains(t, paths, "assets/logo.png")
}

func TestParseFrontmatter_MissingClosingDelimiterReturnsFalse(t *testing.T) {
	_, ok := parseFrontmatter([]byte("---\nname: demo\nno closing delimiter"))
	assert.False(t, ok)
}

func TestParseFrontmatter_NoLeadingDelimiterReturnsFalse(t *testing.T) {
	_, ok := parseFrontmatter([]byte("# just a heading"))
	assert.False(t, ok)
}
