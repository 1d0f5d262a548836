// Package platform holds the concrete marker, schema, and flow tables
// the format detector and converter need for one vendor layout at a
// time. Only the Claude Code layout is filled in here; adding another
// vendor means adding another file in this shape and folding its
// markers/schemas/flows into the tables New returns.
package platform

import (
	"sort"
	"strings"

	"github.com/openpackage/openpackage/internal/convert"
	"github.com/openpackage/openpackage/internal/flow"
	"github.com/openpackage/openpackage/internal/format"
)

// ClaudeFormat is the format id for the .claude/ vendor layout.
const ClaudeFormat = "claude"

// claudeKinds are the resource-kind subdirectories the .claude/ layout
// shares one-to-one with the universal layout's top-level directories.
var claudeKinds = []string{"agents", "commands", "rules", "skills", "hooks"}

// Markers returns the package-marker fast path: a Claude Code plugin
// manifest identifies the claude format outright, and a bare
// openpackage.yml at a package's own root identifies the universal
// format when no vendor marker is present alongside it.
func Markers() []format.Marker {
	return []format.Marker{
		{FormatID: ClaudeFormat, Path: ".claude-plugin/plugin.json"},
		{FormatID: "", Path: "openpackage.yml", Neutral: true},
	}
}

// Schemas returns the tier-2 per-file scoring schema for claude-format
// markdown, used when no marker settles detection outright (a package
// whose files were copied out of their plugin directory, for example).
func Schemas() []format.Schema {
	return []format.Schema{
		{
			FormatID: ClaudeFormat,
			FlowGlob: ".claude/**/*.md",
			Fields: []format.SchemaField{
				{Name: "permissionMode", Weight: 1.0, Exclusive: true},
				{Name: "tools", Weight: 0.5},
			},
		},
	}
}

// ImportFlows returns the flows that lift each .claude/<kind>/*.md file
// into its universal-layout counterpart, splitting the comma-separated
// tools string into a lowercase array and dropping the vendor-only
// permissionMode field along the way.
func ImportFlows() map[string][]convert.ImportFlow {
	flows := make([]convert.ImportFlow, 0, len(claudeKinds))
	for _, kind := range claudeKinds {
		flows = append(flows, convert.ImportFlow{
			Flow: flow.Flow{
				From: flow.FromSpec{Literal: ".claude/" + kind + "/*.md"},
				To:   flow.ToSpec{Literal: kind + "/$1"},
			},
			Map: []convert.FieldOp{
				{Kind: convert.OpTransform, Field: "tools", TransformFunc: TransformSplitToolsList},
				{Kind: convert.OpUnset, Field: "permissionMode"},
			},
		})
	}
	return map[string][]convert.ImportFlow{ClaudeFormat: flows}
}

// TransformSplitToolsList is the registered name of SplitToolsList in a
// Converter's transform table.
const TransformSplitToolsList = "splitToolsList"

// Transforms returns the named field transforms ImportFlows references.
func Transforms() map[string]convert.TransformFunc {
	return map[string]convert.TransformFunc{
		TransformSplitToolsList: SplitToolsList,
	}
}

// SplitToolsList turns a Claude Code "Read, Write" comma-separated tools
// string into a lowercase ["read","write"] array. Values already shaped
// as an array pass through unchanged.
func SplitToolsList(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
