// Package strategy selects and runs one of the four ways a package's
// files are placed into a target workspace: a straight copy, a path
// remap with no content changes, a conversion pass followed by a remap,
// or the full flow-engine treatment. Strategies are pure with respect to
// the workspace index: they return the pairs they wrote and the
// conflicts they hit, and leave committing those to the caller.
package strategy

import (
	"fmt"
	"path"
	"strings"

	"github.com/openpackage/openpackage/internal/convert"
	"github.com/openpackage/openpackage/internal/flow"
	"github.com/openpackage/openpackage/internal/model"
	"github.com/openpackage/openpackage/internal/ownership"
)

// Name identifies one of the four install strategies.
type Name string

const (
	DirectCopy        Name = "direct-copy"
	PathMapping        Name = "path-mapping"
	ConvertThenInstall Name = "convert-then-install"
	FlowBased          Name = "flow-based"
)

// Select picks a strategy, first match wins: same format and no path
// change is a direct copy; same format but the flow engine would move
// files is a path-only remap; different formats need conversion first;
// anything else falls back to the full flow-based treatment.
func Select(sourceFormat, targetFormat string, pathsDiffer bool) Name {
	switch {
	case sourceFormat == targetFormat && !pathsDiffer:
		return DirectCopy
	case sourceFormat == targetFormat && pathsDiffer:
		return PathMapping
	case sourceFormat != targetFormat:
		return ConvertThenInstall
	default:
		return FlowBased
	}
}

// Writer is the filesystem boundary a strategy writes through. Atomic
// writes and directory creation are a filesystem-primitives concern
// that lives outside this package.
type Writer interface {
	Write(targetPath string, file model.PackageFile) error
}

// Context carries everything one package install needs from its
// strategy.
type Context struct {
	PackageName  string
	TargetRoot   string
	SourceCwd    string
	SourceFormat string
	TargetFormat string
	Files        []model.PackageFile
	Detection    model.EnhancedPackageFormat

	// ExportFlows map a target platform id to the ordered flow list that
	// places neutral-or-native files into that platform's layout. Used
	// by path-mapping (path resolution only) and flow-based (path plus
	// field ops).
	ExportFlows map[string][]convert.ImportFlow
	// ImportFlows map a detected source format to the ordered flow list
	// that lifts its files into the neutral format, used by
	// convert-then-install.
	ImportFlows map[string][]convert.ImportFlow
	Transforms  map[string]convert.TransformFunc

	// MetadataFiles lists base filenames a direct copy skips: plugin
	// manifests and other package metadata never materialize verbatim
	// into the target workspace.
	MetadataFiles []string

	Resolver *ownership.Resolver
	Force    bool
	Writer   Writer
}

// Result is a strategy's outcome.
type Result struct {
	Strategy       Name
	Success        bool
	FilesProcessed int
	FilesWritten   []string
	Conflicts      []ownership.Verdict
	Errors         []error
	TargetPaths    []string
	FileMapping    map[string]string // source path -> target path
	Warnings       []string
}

// Run executes name against ctx.
func Run(name Name, ctx Context) Result {
	switch name {
	case DirectCopy:
		return runDirectCopy(ctx)
	case PathMapping:
		return runPathMapping(ctx)
	case ConvertThenInstall:
		return runConvertThenInstall(ctx)
	default:
		return runFlowBased(ctx)
	}
}

func runDirectCopy(ctx Context) Result {
	result := Result{Strategy: DirectCopy, FileMapping: map[string]string{}}

	skip := make(map[string]bool, len(ctx.MetadataFiles))
	for _, name := range ctx.MetadataFiles {
		skip[name] = true
	}

	var pairs []ownership.Pair
	filesByTarget := make(map[string]model.PackageFile)

	for _, f := range ctx.Files {
		if skip[baseOf(f.Path)] {
			continue
		}
		result.FilesProcessed++
		target := path.Join(ctx.TargetRoot, f.Path)
		pairs = append(pairs, ownership.Pair{TargetPath: target, SourcePath: f.Path})
		filesByTarget[target] = f
		result.FileMapping[f.Path] = target
	}

	applyOwnershipAndWrite(ctx, pairs, filesByTarget, &result)
	return result
}

func runPathMapping(ctx Context) Result {
	result := Result{Strategy: PathMapping, FileMapping: map[string]string{}}
	flows := ctx.ExportFlows[ctx.TargetFormat]

	var pairs []ownership.Pair
	filesByTarget := make(map[string]model.PackageFile)

	for _, f := range ctx.Files {
		result.FilesProcessed++
		target, warnings := resolveExportPath(flows, f, ctx)
		result.Warnings = append(result.Warnings, warnings...)
		pairs = append(pairs, ownership.Pair{TargetPath: target, SourcePath: f.Path})
		filesByTarget[target] = f // content and frontmatter unchanged
		result.FileMapping[f.Path] = target
	}

	applyOwnershipAndWrite(ctx, pairs, filesByTarget, &result)
	return result
}

func runFlowBased(ctx Context) Result {
	result := Result{Strategy: FlowBased, FileMapping: map[string]string{}}
	flows := ctx.ExportFlows[ctx.TargetFormat]

	var pairs []ownership.Pair
	filesByTarget := make(map[string]model.PackageFile)

	for _, f := range ctx.Files {
		result.FilesProcessed++
		converted, target, warnings := applyExportFlow(flows, f, ctx)
		result.Warnings = append(result.Warnings, warnings...)
		pairs = append(pairs, ownership.Pair{TargetPath: target, SourcePath: f.Path})
		filesByTarget[target] = converted
		result.FileMapping[f.Path] = target
	}

	applyOwnershipAndWrite(ctx, pairs, filesByTarget, &result)
	return result
}

// runConvertThenInstall lifts ctx.Files into the neutral format and
// recurses with the flow-based strategy over the result. The
// "temporary content root" the conversion lands in is the in-memory
// slice conv.Result.Files returns, not a scratch directory on disk: a
// PackageFile is already an in-memory abstraction everywhere else in
// this pipeline, so there is no filesystem staging area to clean up.
func runConvertThenInstall(ctx Context) Result {
	result := Result{Strategy: ConvertThenInstall, FileMapping: map[string]string{}}

	converter := convert.NewConverter(ctx.ImportFlows)
	converter.Transforms = ctx.Transforms
	convResult := converter.Convert(ctx.Files, ctx.Detection)

	result.Warnings = append(result.Warnings, convResult.Warnings...)
	for _, failed := range convResult.FailedFiles {
		result.Errors = append(result.Errors, fmt.Errorf("could not convert %q to the neutral format", failed))
	}

	innerCtx := ctx
	innerCtx.Files = convResult.Files
	innerCtx.SourceFormat = string(model.FormatUniversal)

	inner := runFlowBased(innerCtx)
	result.FilesProcessed = len(ctx.Files)
	result.FilesWritten = inner.FilesWritten
	result.Conflicts = inner.Conflicts
	result.Errors = append(result.Errors, inner.Errors...)
	result.TargetPaths = inner.TargetPaths
	for k, v := range inner.FileMapping {
		result.FileMapping[k] = v
	}
	result.Warnings = append(result.Warnings, inner.Warnings...)
	result.Success = len(result.Errors) == 0
	return result
}

func resolveExportPath(flows []convert.ImportFlow, f model.PackageFile, ctx Context) (string, []string) {
	for _, fl := range flows {
		match := flow.ResolveFrom(fl.From, f.Path, f.Frontmatter)
		if !match.Matched {
			continue
		}
		target, warnings := flow.ResolveTarget(fl.Flow, exportContext(f, ctx), match.Captures)
		return target, append(match.Warnings, warnings...)
	}
	return path.Join(ctx.TargetRoot, f.Path), nil
}

func applyExportFlow(flows []convert.ImportFlow, f model.PackageFile, ctx Context) (model.PackageFile, string, []string) {
	for _, fl := range flows {
		match := flow.ResolveFrom(fl.From, f.Path, f.Frontmatter)
		if !match.Matched {
			continue
		}
		target, warnings := flow.ResolveTarget(fl.Flow, exportContext(f, ctx), match.Captures)
		converted := model.PackageFile{
			Path:        target,
			Content:     f.Content,
			Frontmatter: convert.ApplyFieldOps(f.Frontmatter, fl.Map, ctx.Transforms),
		}
		return converted, target, append(match.Warnings, warnings...)
	}
	return f, path.Join(ctx.TargetRoot, f.Path), nil
}

func exportContext(f model.PackageFile, ctx Context) flow.Context {
	return flow.Context{
		Filename:    baseOf(f.Path),
		Dirname:     dirOf(f.Path),
		Path:        f.Path,
		Ext:         extOf(f.Path),
		SourceCwd:   ctx.SourceCwd,
		TargetRoot:  ctx.TargetRoot,
		PackageName: ctx.PackageName,
		Frontmatter: f.Frontmatter,
	}
}

// applyOwnershipAndWrite runs ownership resolution (when a resolver is
// configured) over pairs, then writes every allowed target, collecting
// outcomes into result.
func applyOwnershipAndWrite(ctx Context, pairs []ownership.Pair, filesByTarget map[string]model.PackageFile, result *Result) {
	allowed := pairs
	if ctx.Resolver != nil {
		decision := ctx.Resolver.Resolve(ctx.PackageName, pairs, ctx.Force)
		result.Warnings = append(result.Warnings, decision.Warnings...)
		result.Conflicts = append(result.Conflicts, decision.Denied...)
		allowed = decision.Allowed
	}

	for _, p := range allowed {
		writeOne(ctx, p.TargetPath, filesByTarget[p.TargetPath], result)
	}
	result.Success = len(result.Errors) == 0
}

func writeOne(ctx Context, target string, file model.PackageFile, result *Result) {
	if ctx.Writer == nil {
		result.Errors = append(result.Errors, fmt.Errorf("no writer configured for %q", target))
		return
	}
	if err := ctx.Writer.Write(target, file); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("write %q: %w", target, err))
		return
	}
	result.FilesWritten = append(result.FilesWritten, target)
	result.TargetPaths = append(result.TargetPaths, target)
}

func baseOf(p string) string { return path.Base(p) }

func dirOf(p string) string {
	d := path.Dir(p)
	if d == "." {
		return ""
	}
	return d
}

func extOf(p string) string { return strings.TrimPrefix(path.Ext(p), ".") }
