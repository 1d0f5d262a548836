// Package flow resolves source glob patterns to target paths: priority-
// ordered pattern lists, switch-expression-driven values, context-variable
// substitution, and per-package filename prefixing.
package flow

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/openpackage/openpackage/internal/model"
)

// DefaultSeparator joins a package's short name onto a prefixed filename.
const DefaultSeparator = "-"

// DefaultRootFiles are documented root files that are never prefixed.
var DefaultRootFiles = []string{"AGENTS.md", "CLAUDE.md", "README.md"}

// SwitchCase is one branch of a SwitchExpr. Pattern is either a string glob
// (matched against the stringified field value) or a map[string]any shape
// pattern (matched against an object-valued field, with "*" meaning "every
// key has this value").
type SwitchCase struct {
	Pattern any
	Value   string
}

// SwitchExpr evaluates to a value by testing Field (a frontmatter field
// name, or empty to test a synthetic context value) against each case in
// order; the first match wins. Default applies when nothing matches.
type SwitchExpr struct {
	Field   string
	Cases   []SwitchCase
	Default string
}

// FromSpec is a flow's source pattern: exactly one of Literal, Priority, or
// Switch is set.
type FromSpec struct {
	Literal  string
	Priority []string
	Switch   *SwitchExpr
}

// ToSpec is a flow's target pattern: Literal, or Switch whose cases yield a
// target pattern string.
type ToSpec struct {
	Literal string
	Switch  *SwitchExpr
}

// Flow is one {from, to} mapping rule.
type Flow struct {
	From            FromSpec
	To              ToSpec
	WithPrefix      bool
	PrefixSeparator string
	RootFiles       []string
}

// Context carries the per-file values a flow's to-pattern substitutes and
// the package-level values prefixing needs.
type Context struct {
	Filename    string
	Dirname     string
	Path        string
	Ext         string
	SourceCwd   string
	TargetRoot  string
	PackageName string
	Frontmatter model.Frontmatter
	SyntheticValue string
}

// MatchResult is the outcome of matching a relative path against a from
// pattern.
type MatchResult struct {
	Matched  bool
	Captures []string
	Warnings []string
}

// MatchGlob matches path (slash-separated, no leading slash) against
// pattern. `*`/`?`/`[...]` match within one path segment as
// filepath.Match does; `**` matches zero or more whole segments. Every
// wildcard segment contributes its matched text to captures, in the order
// encountered, `**` spans included.
func MatchGlob(pattern, path string) (bool, []string) {
	patSegs := strings.Split(pattern, "/")
	pathSegs := strings.Split(path, "/")
	return matchSegments(patSegs, pathSegs)
}

func matchSegments(pat, path []string) (bool, []string) {
	if len(pat) == 0 {
		return len(path) == 0, nil
	}
	head := pat[0]

	if head == "**" {
		for i := 0; i <= len(path); i++ {
			if ok, rest := matchSegments(pat[1:], path[i:]); ok {
				captured := strings.Join(path[:i], "/")
				return true, append([]string{captured}, rest...)
			}
		}
		return false, nil
	}

	if len(path) == 0 {
		return false, nil
	}
	ok, err := filepath.Match(head, path[0])
	if err != nil || !ok {
		return false, nil
	}

	var capture []string
	if strings.ContainsAny(head, "*?[") {
		capture = []string{path[0]}
	}
	restOK, restCaptures := matchSegments(pat[1:], path[1:])
	if !restOK {
		return false, nil
	}
	return true, append(capture, restCaptures...)
}

// ResolveFrom matches relPath against a flow's from spec, dispatching on
// which of Literal/Priority/Switch is set.
func ResolveFrom(from FromSpec, relPath string, fm model.Frontmatter) MatchResult {
	switch {
	case from.Switch != nil:
		pattern, matched := EvalSwitch(*from.Switch, fm, "")
		if !matched {
			return MatchResult{}
		}
		ok, captures := MatchGlob(pattern, relPath)
		return MatchResult{Matched: ok, Captures: captures}

	case len(from.Priority) > 0:
		return resolvePriority(from.Priority, relPath)

	default:
		ok, captures := MatchGlob(from.Literal, relPath)
		return MatchResult{Matched: ok, Captures: captures}
	}
}

// resolvePriority tries each pattern in order and uses the first match; if
// a later pattern in the list would also have matched, it warns and names
// the skipped patterns. An empty list matches nothing and warns.
func resolvePriority(patterns []string, relPath string) MatchResult {
	if len(patterns) == 0 {
		return MatchResult{Warnings: []string{"empty priority pattern list matches nothing"}}
	}

	var chosen *MatchResult
	var also []string
	for _, p := range patterns {
		ok, captures := MatchGlob(p, relPath)
		if !ok {
			continue
		}
		if chosen == nil {
			r := MatchResult{Matched: true, Captures: captures}
			chosen = &r
			continue
		}
		also = append(also, p)
	}
	if chosen == nil {
		return MatchResult{}
	}
	if len(also) > 0 {
		chosen.Warnings = append(chosen.Warnings, fmt.Sprintf(
			"multiple patterns matched %q; using the first, skipped %v", relPath, also))
	}
	return *chosen
}

// EvalSwitch resolves a SwitchExpr against either a frontmatter field
// (when field is non-empty) or a synthetic value passed in directly. It
// returns the matched case's value, or ("", false) when nothing matches
// and there is no default.
func EvalSwitch(sw SwitchExpr, fm model.Frontmatter, synthetic string) (string, bool) {
	var actual any = synthetic
	if sw.Field != "" {
		if fm == nil {
			actual = nil
		} else {
			actual = fm[sw.Field]
		}
	}

	for _, c := range sw.Cases {
		if matchCasePattern(c.Pattern, actual) {
			return c.Value, true
		}
	}
	if sw.Default != "" {
		return sw.Default, true
	}
	return "", false
}

func matchCasePattern(pattern, actual any) bool {
	if shape, ok := pattern.(map[string]any); ok {
		return matchShape(shape, actual)
	}
	if ps, ok := pattern.(string); ok {
		ok2, _ := filepath.Match(ps, fmt.Sprint(actual))
		return ok2
	}
	return reflect.DeepEqual(pattern, actual)
}

func matchShape(shape map[string]any, actual any) bool {
	obj, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for key, wantVal := range shape {
		if key == "*" {
			for _, v := range obj {
				if !matchCasePattern(wantVal, v) {
					return false
				}
			}
			continue
		}
		if !matchCasePattern(wantVal, obj[key]) {
			return false
		}
	}
	return true
}

// ResolveTarget computes the final workspace path for a matched source
// file: substitute context variables and captured glob segments into the
// raw to-pattern, apply prefixing, then resolve against the target root.
func ResolveTarget(f Flow, ctx Context, captures []string) (string, []string) {
	var warnings []string
	raw := f.To.Literal
	if f.To.Switch != nil {
		value, matched := EvalSwitch(*f.To.Switch, ctx.Frontmatter, ctx.SyntheticValue)
		if matched {
			raw = value
		} else {
			raw = ctx.Path
		}
	}

	substituted := substituteVars(raw, ctx, captures)

	if f.WithPrefix {
		substituted = applyPrefix(substituted, ctx, f)
	}

	return filepath.Join(ctx.TargetRoot, substituted), warnings
}

func substituteVars(raw string, ctx Context, captures []string) string {
	replacer := strings.NewReplacer(
		"$filename", ctx.Filename,
		"$dirname", ctx.Dirname,
		"$path", ctx.Path,
		"$ext", ctx.Ext,
		"$sourceCwd", ctx.SourceCwd,
		"$targetRoot", ctx.TargetRoot,
	)
	out := replacer.Replace(raw)
	for i, capture := range captures {
		out = strings.ReplaceAll(out, "$"+strconv.Itoa(i+1), capture)
	}
	return out
}

// applyPrefix prepends the package's short name to the filename, unless
// the path is a configured root file. Files under a second-level skills/
// directory get their directory prefixed instead of the filename.
func applyPrefix(path string, ctx Context, f Flow) string {
	rootFiles := f.RootFiles
	if rootFiles == nil {
		rootFiles = DefaultRootFiles
	}
	if isRootFile(path, rootFiles) {
		return path
	}

	sep := f.PrefixSeparator
	if sep == "" {
		sep = DefaultSeparator
	}
	short := shortPackageName(ctx.PackageName)
	if short == "" {
		return path
	}

	dir, file := filepath.Split(path)
	segs := strings.Split(strings.Trim(filepath.ToSlash(dir), "/"), "/")
	if len(segs) >= 2 && segs[0] == "skills" && segs[1] != "" {
		segs[1] = short + sep + segs[1]
		return filepath.Join(filepath.Join(segs...), file)
	}

	return filepath.Join(dir, short+sep+file)
}

func isRootFile(path string, rootFiles []string) bool {
	if strings.Contains(filepath.ToSlash(path), "/") {
		return false
	}
	for _, rf := range rootFiles {
		if path == rf {
			return true
		}
	}
	return false
}

// shortPackageName strips any @scope/marketplace/ qualifier prefix and
// keeps only the final path segment.
func shortPackageName(name string) string {
	name = strings.TrimPrefix(name, "@")
	segs := strings.Split(name, "/")
	return segs[len(segs)-1]
}
