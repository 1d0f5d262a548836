// Package manifest reads and writes the package manifest file a source
// root carries at its top level, decoding its dependency declarations
// into model.DependencyDeclaration and transparently migrating a
// handful of deprecated key spellings still found in the wild.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/openpackage/openpackage/internal/model"
	"github.com/openpackage/openpackage/internal/source"
)

// FileName is the manifest's expected basename at a source root.
const FileName = "openpackage.yml"

// Manifest is the top-level decoded shape of a package manifest.
type Manifest struct {
	Name         string                         `yaml:"name"`
	Version      string                         `yaml:"version,omitempty"`
	Dependencies []model.DependencyDeclaration  `yaml:"dependencies,omitempty"`
}

// rawDependency mirrors the on-disk shape before legacy keys are
// migrated into model.DependencyDeclaration's current field names.
type rawDependency struct {
	Name         string `yaml:"name,omitempty"`
	Constraint   string `yaml:"constraint,omitempty"`
	URL          string `yaml:"url,omitempty"`
	Git          string `yaml:"git,omitempty"`          // legacy: migrates to URL
	Ref          string `yaml:"ref,omitempty"`           // legacy: migrates to a "#ref" URL suffix
	Path         string `yaml:"path,omitempty"`
	Subdirectory string `yaml:"subdirectory,omitempty"` // legacy: migrates to Path
	Dev          bool   `yaml:"dev,omitempty"`
}

type rawManifest struct {
	Name         string          `yaml:"name"`
	Version      string          `yaml:"version,omitempty"`
	Dependencies []rawDependency `yaml:"dependencies,omitempty"`
}

// Load reads and decodes the manifest at path, migrating deprecated
// key spellings ("git" -> "url", "ref" -> an embedded "#ref" URL
// fragment, "subdirectory" -> "path") as it goes.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes manifest YAML bytes, applying the same legacy-key
// migration as Load.
func Parse(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m := &Manifest{Name: raw.Name, Version: raw.Version}
	for _, rd := range raw.Dependencies {
		m.Dependencies = append(m.Dependencies, migrateDependency(rd))
	}
	return m, nil
}

func migrateDependency(rd rawDependency) model.DependencyDeclaration {
	d := model.DependencyDeclaration{
		Name:       rd.Name,
		Constraint: rd.Constraint,
		URL:        rd.URL,
		Path:       rd.Path,
		Dev:        rd.Dev,
	}

	if d.URL == "" && rd.Git != "" {
		d.URL = rd.Git
	}
	if rd.Ref != "" && d.URL != "" {
		d.URL = fmt.Sprintf("%s#%s", d.URL, rd.Ref)
	}
	if d.Path == "" && rd.Subdirectory != "" {
		d.Path = rd.Subdirectory
	}

	return d
}

// Reader implements internal/resolve.ManifestReader by looking for
// FileName at the root of a fetched content root. A package with no
// manifest file is a leaf: ReadManifest returns an empty, non-error
// result rather than failing the walk.
type Reader struct{}

// ReadManifest reads <contentRoot>/FileName, if present, and converts
// its dependency declarations to the wire shape internal/resolve walks.
func (Reader) ReadManifest(ctx context.Context, contentRoot string) ([]source.Declaration, error) {
	path := filepath.Join(contentRoot, FileName)
	m, err := Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	decls := make([]source.Declaration, len(m.Dependencies))
	for i, d := range m.Dependencies {
		decls[i] = source.Declaration{Name: d.Name, Constraint: d.Constraint, URL: d.URL, Path: d.Path, Dev: d.Dev}
	}
	return decls, nil
}

// Save encodes m as YAML and writes it to path.
func Save(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %q: %w", path, err)
	}
	return nil
}
