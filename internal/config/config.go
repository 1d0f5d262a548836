// Package config loads the run-wide options that shape one resolve or
// install invocation: workspace root, concurrency limit, and the
// failFast/force/resolution-mode switches described in spec.md §9.
// Values layer in increasing priority: built-in defaults, an optional
// CUE-validated config file, then environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/openpackage/openpackage/internal/schema"
)

const (
	// FileName is the config file openpackage looks for under the
	// workspace root's .openpackage directory.
	FileName = "config.yml"

	// DefaultConcurrencyLimit mirrors internal/install's own default so
	// a caller who never touches config still gets the same behavior.
	DefaultConcurrencyLimit = 5
)

// ResolutionMode selects how version conflicts across the dependency
// graph are handled.
type ResolutionMode string

const (
	ResolutionStrict  ResolutionMode = "strict"
	ResolutionNewest  ResolutionMode = "newest"
)

// ConfigSchema constrains the on-disk config.yml shape.
const ConfigSchema = `
workspaceRoot?:     string
concurrencyLimit?:  int & >0
failFast?:          bool
force?:             bool
resolutionMode?:    "strict" | "newest"
`

// Options is the resolved, ready-to-use configuration for one run.
type Options struct {
	WorkspaceRoot    string         `yaml:"workspaceRoot,omitempty"`
	ConcurrencyLimit int            `yaml:"concurrencyLimit,omitempty"`
	FailFast         bool           `yaml:"failFast,omitempty"`
	Force            bool           `yaml:"force,omitempty"`
	ResolutionMode   ResolutionMode `yaml:"resolutionMode,omitempty"`
}

// Default returns the built-in defaults before any file or
// environment override is applied.
func Default() Options {
	return Options{
		WorkspaceRoot:    ".",
		ConcurrencyLimit: DefaultConcurrencyLimit,
		ResolutionMode:   ResolutionStrict,
	}
}

// Load resolves Options for workspaceRoot: defaults, then
// <workspaceRoot>/.openpackage/config.yml if present (validated
// against ConfigSchema), then environment variables.
func Load(workspaceRoot string) (Options, error) {
	opts := Default()
	opts.WorkspaceRoot = workspaceRoot

	configPath := filepath.Join(workspaceRoot, ".openpackage", FileName)
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := applyFile(&opts, data); err != nil {
			return Options{}, fmt.Errorf("failed to load %q: %w", configPath, err)
		}
	case os.IsNotExist(err):
		// no config file, defaults plus env stand
	default:
		return Options{}, fmt.Errorf("failed to read %q: %w", configPath, err)
	}

	applyEnv(&opts)
	return opts, nil
}

func applyFile(opts *Options, data []byte) error {
	var decoded map[string]any
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	v, err := schema.Compile(ConfigSchema)
	if err != nil {
		return err
	}
	if err := v.Validate(decoded); err != nil {
		return err
	}

	var fromFile Options
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	if fromFile.ConcurrencyLimit > 0 {
		opts.ConcurrencyLimit = fromFile.ConcurrencyLimit
	}
	if fromFile.ResolutionMode != "" {
		opts.ResolutionMode = fromFile.ResolutionMode
	}
	opts.FailFast = opts.FailFast || fromFile.FailFast
	opts.Force = opts.Force || fromFile.Force
	return nil
}

// Environment variable names applied on top of defaults and the file.
const (
	EnvConcurrencyLimit = "OPENPACKAGE_CONCURRENCY_LIMIT"
	EnvFailFast         = "OPENPACKAGE_FAIL_FAST"
	EnvForce            = "OPENPACKAGE_FORCE"
	EnvResolutionMode   = "OPENPACKAGE_RESOLUTION_MODE"
)

func applyEnv(opts *Options) {
	if v := os.Getenv(EnvConcurrencyLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.ConcurrencyLimit = n
		}
	}
	if v := os.Getenv(EnvFailFast); v != "" {
		opts.FailFast = parseBool(v)
	}
	if v := os.Getenv(EnvForce); v != "" {
		opts.Force = parseBool(v)
	}
	if v := os.Getenv(EnvResolutionMode); v != "" {
		opts.ResolutionMode = ResolutionMode(strings.ToLower(v))
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// ExpandTilde replaces a leading "~/" with the user's home directory,
// or returns path unchanged if it has none.
func ExpandTilde(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		return os.UserHomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
