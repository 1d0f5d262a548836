// Package plan wires format detection, frontmatter-driven conversion,
// and installer-strategy selection into one internal/install.Planner
// implementation, so the wave installer never has to know how a
// package's format was detected or which strategy fits it.
package plan

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/openpackage/openpackage/internal/convert"
	"github.com/openpackage/openpackage/internal/format"
	"github.com/openpackage/openpackage/internal/install"
	"github.com/openpackage/openpackage/internal/model"
	"github.com/openpackage/openpackage/internal/strategy"
)

// UniversalFormat is the package format id a workspace's own layout is
// written in. Any package already detected as this format skips
// conversion entirely.
const UniversalFormat = "universal"

// Tables bundles the per-platform configuration the planner needs:
// the format detector, the formats a package's files are converted
// from on their way to universal shape, and the flows a universal-shape
// file is exported through to reach the target platform's layout.
type Tables struct {
	Detector      *format.Detector
	ImportFlows   map[string][]convert.ImportFlow
	ExportFlows   map[string][]convert.ImportFlow
	Transforms    map[string]convert.TransformFunc
	MetadataFiles []string
	TargetFormat  string
}

// Planner implements internal/install.Planner against a content root on
// disk, using Tables to detect format and pick a strategy.
type Planner struct {
	tables Tables
	writer strategy.Writer
}

// New creates a Planner. If tables.TargetFormat is empty, UniversalFormat
// is used.
func New(tables Tables, writer strategy.Writer) *Planner {
	if tables.TargetFormat == "" {
		tables.TargetFormat = UniversalFormat
	}
	return &Planner{tables: tables, writer: writer}
}

var _ install.Planner = (*Planner)(nil)

// Plan reads node's content root, detects its format, and selects a
// strategy. Nodes with no content root (a registry lookup that failed
// to resolve to a fetched directory) are skipped rather than erroring,
// since install.Engine treats a Plan error the same way.
func (p *Planner) Plan(ctx context.Context, node *model.WaveNode) (install.PackagePlan, error) {
	if node.ContentRoot == "" {
		return install.PackagePlan{Skip: true, SkipReason: "no content root resolved"}, nil
	}

	files, err := ReadPackageFiles(node.ContentRoot)
	if err != nil {
		return install.PackagePlan{}, fmt.Errorf("failed to read package files for %s: %w", node.DisplayName, err)
	}
	if len(files) == 0 {
		return install.PackagePlan{Skip: true, SkipReason: "content root has no files"}, nil
	}

	observations := make([]format.FileObservation, len(files))
	for i, f := range files {
		observations[i] = format.FileObservation{Path: f.Path, Frontmatter: f.Frontmatter}
	}
	detection := p.tables.Detector.Detect(observations)

	sourceFormat := detection.PackageFormat
	targetFormat := p.tables.TargetFormat
	pathsDiffer := sourceFormat == targetFormat && len(p.tables.ExportFlows[targetFormat]) > 0

	name := strategy.Select(sourceFormat, targetFormat, pathsDiffer)

	stratCtx := strategy.Context{
		TargetRoot:    node.Metadata["targetRoot"],
		SourceCwd:     node.ContentRoot,
		SourceFormat:  sourceFormat,
		TargetFormat:  targetFormat,
		Files:         files,
		Detection:     detection,
		ExportFlows:   p.tables.ExportFlows,
		ImportFlows:   p.tables.ImportFlows,
		Transforms:    p.tables.Transforms,
		MetadataFiles: p.tables.MetadataFiles,
		Writer:        p.writer,
	}

	return install.PackagePlan{StrategyName: name, StrategyCtx: stratCtx}, nil
}

// ReadPackageFiles walks root and reads every regular file into a
// model.PackageFile, parsing a leading "---\n...\n---" YAML block as
// frontmatter for markdown files.
func ReadPackageFiles(root string) ([]model.PackageFile, error) {
	var files []model.PackageFile

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", path, err)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		pf := model.PackageFile{Path: filepath.ToSlash(rel), Content: data}
		if strings.HasSuffix(rel, ".md") {
			if fm, ok := parseFrontmatter(data); ok {
				pf.Frontmatter = fm
			}
		}
		files = append(files, pf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

const frontmatterDelim = "---"

// parseFrontmatter extracts a leading YAML frontmatter block from
// content, returning ok=false if content has none.
func parseFrontmatter(content []byte) (model.Frontmatter, bool) {
	text := string(content)
	if !strings.HasPrefix(text, frontmatterDelim) {
		return nil, false
	}

	rest := text[len(frontmatterDelim):]
	rest = strings.TrimPrefix(rest, "\n")
	rest = strings.TrimPrefix(rest, "\r\n")

	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return nil, false
	}

	block := rest[:end]
	var fm model.Frontmatter
	if err := yaml.Unmarshal(bytes.TrimSpace([]byte(block)), &fm); err != nil {
		return nil, false
	}
	return fm, true
}
