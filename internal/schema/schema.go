// Package schema structurally validates decoded package manifests and
// plugin descriptors against a CUE schema. Validation only: this core
// never authors or loads CUE modules, since the manifest format itself
// is YAML (see internal/manifest).
package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ManifestSchema constrains the shape internal/manifest decodes into:
// a name, an optional version, and a list of dependency declarations
// whose name, constraint, url, path and dev fields are all optional. It
// does not check that a declaration names a source, nor that it names
// only one.
const ManifestSchema = `
name!: string & !=""
version?: string
dependencies?: [...{
	name?:       string
	constraint?: string
	url?:        string
	path?:       string
	dev?:        bool
}]
`

// PluginDescriptorSchema constrains a Claude Code-style
// .claude-plugin/plugin.json descriptor.
const PluginDescriptorSchema = `
name!: string & !=""
version?: string
description?: string
author?: {
	name?:  string
	email?: string
	url?:   string
}
`

// Validator checks decoded manifest values against one compiled CUE
// schema. Not safe for concurrent compilation, but Validate itself may
// be called concurrently once Compile has returned.
type Validator struct {
	schema cue.Value
}

// Compile parses schemaText once; reuse the returned Validator across
// many Validate calls rather than recompiling per document.
func Compile(schemaText string) (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaText)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Validator{schema: v}, nil
}

// Validate unifies data (typically the result of decoding manifest
// YAML or plugin JSON into a map[string]any) against the compiled
// schema and reports the first structural violation found.
func (val *Validator) Validate(data map[string]any) error {
	encoded := val.schema.Context().Encode(data)
	if err := encoded.Err(); err != nil {
		return fmt.Errorf("failed to encode document for validation: %w", err)
	}

	unified := val.schema.Unify(encoded)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateManifest is a convenience wrapper compiling and running
// ManifestSchema once.
func ValidateManifest(data map[string]any) error {
	v, err := Compile(ManifestSchema)
	if err != nil {
		return err
	}
	return v.Validate(data)
}

// ValidatePluginDescriptor is the plugin-descriptor equivalent of
// ValidateManifest.
func ValidatePluginDescriptor(data map[string]any) error {
	v, err := Compile(PluginDescriptorSchema)
	if err != nil {
		return err
	}
	return v.Validate(data)
}
