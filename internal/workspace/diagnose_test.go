package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpackage/openpackage/internal/index"
)

func TestDiagnose_NoIssuesWhenAllFilesPresent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))

	doc := &index.Document{
		Packages: map[string]*index.PackageEntry{
			"pkg-a": {
				Files: map[string][]index.FileTarget{
					"a.md": {{Target: target}},
				},
			},
		},
	}

	report, err := Diagnose(doc)
	require.NoError(t, err)
	assert.False(t, report.HasIssues())
}

func TestDiagnose_ReportsMissingFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "gone.md")

	doc := &index.Document{
		Packages: map[string]*index.PackageEntry{
			"pkg-a": {
				Files: map[string][]index.FileTarget{
					"gone.md": {{Target: missing}},
				},
			},
		},
	}

	report, err := Diagnose(doc)
	require.NoError(t, err)
	require.True(t, report.HasIssues())
	require.Len(t, report.StaleFiles, 1)
	assert.Equal(t, "pkg-a", report.StaleFiles[0].Package)
	assert.Equal(t, StaleFileMissing, report.StaleFiles[0].Kind)
}

func TestDiagnose_ReportsBrokenSymlinkAsMissing(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link.md")
	require.NoError(t, os.Symlink(filepath.Join(dir, "nonexistent"), link))

	doc := &index.Document{
		Packages: map[string]*index.PackageEntry{
			"pkg-a": {
				Files: map[string][]index.FileTarget{
					"link.md": {{Target: link}},
				},
			},
		},
	}

	report, err := Diagnose(doc)
	require.NoError(t, err)
	require.Len(t, report.StaleFiles, 1)
	assert.Equal(t, StaleFileMissing, report.StaleFiles[0].Kind)
}

func TestDiagnose_ReportsDirectoryAsNotRegular(t *testing.T) {
	dir := t.TempDir()
	subdir := filepath.Join(dir, "oops")
	require.NoError(t, os.Mkdir(subdir, 0o755))

	doc := &index.Document{
		Packages: map[string]*index.PackageEntry{
			"pkg-a": {
				Files: map[string][]index.FileTarget{
					"oops": {{Target: subdir}},
				},
			},
		},
	}

	report, err := Diagnose(doc)
	require.NoError(t, err)
	require.Len(t, report.StaleFiles, 1)
	assert.Equal(t, StaleFileNotRegular, report.StaleFiles[0].Kind)
}

func TestDiagnose_NilPackageEntrySkipped(t *testing.T) {
	doc := &index.Document{
		Packages: map[string]*index.PackageEntry{
			"pkg-a": nil,
		},
	}

	report, err := Diagnose(doc)
	require.NoError(t, err)
	assert.False(t, report.HasIssues())
}
