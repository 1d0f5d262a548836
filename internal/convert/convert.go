// Package convert turns a package's platform-native files into the
// universal format: group by detected format, run each group through its
// platform's import flows, then merge the converted groups back into one
// file set, resolving duplicate targets by a fixed conflict rule.
package convert

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/openpackage/openpackage/internal/flow"
	"github.com/openpackage/openpackage/internal/model"
)

// FieldOpKind names one frontmatter field-pipeline operation.
type FieldOpKind string

const (
	OpSet       FieldOpKind = "set"
	OpRename    FieldOpKind = "rename"
	OpUnset     FieldOpKind = "unset"
	OpSwitch    FieldOpKind = "switch"
	OpTransform FieldOpKind = "transform"
	OpCopy      FieldOpKind = "copy"
)

// FieldOp is one step of a flow's frontmatter map pipeline.
type FieldOp struct {
	Kind FieldOpKind
	// Field is the field written by set/rename/switch/transform/copy.
	Field string
	// From is the source field read by rename/copy.
	From string
	// Value is the literal written by set.
	Value any
	// Switch resolves Field's new value using flow's switch semantics.
	Switch *flow.SwitchExpr
	// TransformFunc names a function in the Converter's transform
	// registry, applied to Field's current value.
	TransformFunc string
}

// TransformFunc mutates one frontmatter field's value.
type TransformFunc func(any) any

// ApplyFieldOps runs ops over fm in order, returning a new Frontmatter
// (the input is never mutated in place).
func ApplyFieldOps(fm model.Frontmatter, ops []FieldOp, transforms map[string]TransformFunc) model.Frontmatter {
	out := make(model.Frontmatter, len(fm))
	for k, v := range fm {
		out[k] = v
	}

	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			out[op.Field] = op.Value
		case OpRename:
			if v, ok := out[op.From]; ok {
				out[op.Field] = v
				delete(out, op.From)
			}
		case OpUnset:
			delete(out, op.Field)
		case OpCopy:
			if v, ok := out[op.From]; ok {
				out[op.Field] = v
			}
		case OpSwitch:
			if op.Switch != nil {
				if value, matched := flow.EvalSwitch(*op.Switch, out, ""); matched {
					out[op.Field] = value
				}
			}
		case OpTransform:
			if fn, ok := transforms[op.TransformFunc]; ok {
				out[op.Field] = fn(out[op.Field])
			}
		}
	}
	return out
}

// ImportFlow pairs a flow.Flow's path rewrite with the field-level
// frontmatter operations the converter applies after the rewrite.
type ImportFlow struct {
	flow.Flow
	Map []FieldOp
}

// Converter runs the import direction of the flow engine per detected
// format and merges the results into one universal-format file set.
type Converter struct {
	// ImportFlows maps a detected format id to its ordered list of
	// import flows. A format absent from this map is assumed to already
	// be in universal shape and passes through unconverted.
	ImportFlows map[string][]ImportFlow
	Transforms  map[string]TransformFunc
	// VendorExclusiveFields lists frontmatter field names that only ever
	// appear in a platform-native format, used to recognize a file that
	// already satisfies the universal shape.
	VendorExclusiveFields []string
	TargetRoot            string
	PackageName           string
	SourceCwd             string
}

// NewConverter creates a Converter from its import flow table.
func NewConverter(importFlows map[string][]ImportFlow) *Converter {
	return &Converter{ImportFlows: importFlows, Transforms: map[string]TransformFunc{}}
}

// Result is the converter's output: the merged universal-format files,
// the paths of files that could not be converted, and any non-fatal
// warnings surfaced along the way.
type Result struct {
	Files       []model.PackageFile
	FailedFiles []string
	Warnings    []string
}

// Convert runs files through import flows according to detection and
// merges the result.
func (c *Converter) Convert(files []model.PackageFile, detection model.EnhancedPackageFormat) Result {
	byPath := make(map[string]model.PackageFile, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}

	groups := make(map[string][]model.PackageFile)
	for filePath, pf := range byPath {
		format := detection.FileFormats[filePath]
		if format == "" {
			format = detection.PackageFormat
		}
		groups[format] = append(groups[format], pf)
	}

	result := Result{}
	targetBuckets := make(map[string][]convertedFile)

	order := detection.FormatOrder
	if len(order) == 0 {
		for format := range groups {
			order = append(order, format)
		}
		sort.Strings(order)
	}

	for groupIndex, format := range order {
		groupFiles := groups[format]
		sort.Slice(groupFiles, func(i, j int) bool { return groupFiles[i].Path < groupFiles[j].Path })

		if format == string(model.FormatUnknown) {
			for _, f := range groupFiles {
				result.FailedFiles = append(result.FailedFiles, f.Path)
				result.Warnings = append(result.Warnings, fmt.Sprintf("file %q has unknown format and cannot be converted", f.Path))
			}
			continue
		}

		flows, hasFlows := c.ImportFlows[format]
		for _, f := range groupFiles {
			if !hasFlows {
				targetBuckets[f.Path] = append(targetBuckets[f.Path], convertedFile{file: f, groupIndex: groupIndex})
				continue
			}
			converted, matched, warnings := c.applyFlows(flows, f)
			result.Warnings = append(result.Warnings, warnings...)
			if !matched {
				targetBuckets[f.Path] = append(targetBuckets[f.Path], convertedFile{file: f, groupIndex: groupIndex})
				continue
			}
			targetBuckets[converted.Path] = append(targetBuckets[converted.Path], convertedFile{file: converted, groupIndex: groupIndex})
		}
	}

	targets := make([]string, 0, len(targetBuckets))
	for t := range targetBuckets {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	for _, target := range targets {
		candidates := targetBuckets[target]
		if len(candidates) > 1 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("multiple groups produced target %q, resolving by conflict rule", target))
		}
		result.Files = append(result.Files, c.resolveConflict(candidates).file)
	}

	return result
}

type convertedFile struct {
	file       model.PackageFile
	groupIndex int
}

// applyFlows finds the first flow whose from-pattern matches f's path,
// rewrites its path and frontmatter, and returns the converted file. A
// file matching no flow passes through unchanged with matched=false.
func (c *Converter) applyFlows(flows []ImportFlow, f model.PackageFile) (model.PackageFile, bool, []string) {
	for _, fl := range flows {
		match := flow.ResolveFrom(fl.From, f.Path, f.Frontmatter)
		if !match.Matched {
			continue
		}

		ctx := flow.Context{
			Filename:    baseName(f.Path),
			Dirname:     dirName(f.Path),
			Path:        f.Path,
			Ext:         extName(f.Path),
			SourceCwd:   c.SourceCwd,
			TargetRoot:  c.TargetRoot,
			PackageName: c.PackageName,
			Frontmatter: f.Frontmatter,
		}
		target, targetWarnings := flow.ResolveTarget(fl.Flow, ctx, match.Captures)

		converted := model.PackageFile{
			Path:        target,
			Content:     f.Content,
			Frontmatter: ApplyFieldOps(f.Frontmatter, fl.Map, c.Transforms),
		}
		return converted, true, append(match.Warnings, targetWarnings...)
	}
	return f, false, nil
}

// resolveConflict picks the surviving file when multiple groups produced
// the same target path: prefer the one whose frontmatter already
// satisfies the universal shape, otherwise prefer the earlier group in
// detector distribution order.
func (c *Converter) resolveConflict(candidates []convertedFile) convertedFile {
	best := candidates[0]
	bestUniversal := c.isUniversalShape(best.file.Frontmatter)
	for _, candidate := range candidates[1:] {
		universal := c.isUniversalShape(candidate.file.Frontmatter)
		switch {
		case universal && !bestUniversal:
			best, bestUniversal = candidate, universal
		case universal == bestUniversal && candidate.groupIndex < best.groupIndex:
			best = candidate
		}
	}
	return best
}

// isUniversalShape reports whether fm's tools field (if present) is an
// array and fm carries none of the configured vendor-exclusive fields.
func (c *Converter) isUniversalShape(fm model.Frontmatter) bool {
	if fm == nil {
		return true
	}
	if tools, ok := fm["tools"]; ok {
		switch tools.(type) {
		case []any, []string:
		default:
			return false
		}
	}
	for _, field := range c.VendorExclusiveFields {
		if _, present := fm[field]; present {
			return false
		}
	}
	return true
}

func baseName(p string) string { return path.Base(p) }

func dirName(p string) string {
	d := path.Dir(p)
	if d == "." {
		return ""
	}
	return d
}

func extName(p string) string { return strings.TrimPrefix(path.Ext(p), ".") }
