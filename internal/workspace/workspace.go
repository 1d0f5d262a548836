// Package workspace resolves the on-disk layout of one openpackage
// workspace: its root, index file, and cache directory, and reports
// on the health of what the index believes it owns.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// Default path suffixes, relative to the workspace root.
const (
	defaultIndexSuffix = ".openpackage/openpackage.index.yml"
	defaultCacheSuffix = ".openpackage/cache"
	defaultConfigSuffix = ".openpackage/config.yml"
)

// Paths holds the resolved locations for one workspace.
type Paths struct {
	root      string
	indexPath string
	cacheDir  string
	configPath string
}

// Option configures a Paths during New.
type Option func(*Paths)

// WithIndexPath overrides the default <root>/.openpackage/openpackage.index.yml.
func WithIndexPath(p string) Option {
	return func(paths *Paths) {
		paths.indexPath = p
	}
}

// WithCacheDir overrides the default <root>/.openpackage/cache.
func WithCacheDir(dir string) Option {
	return func(paths *Paths) {
		paths.cacheDir = dir
	}
}

// New resolves Paths for root, applying any overrides.
func New(root string, opts ...Option) (*Paths, error) {
	expanded, err := Expand(root)
	if err != nil {
		return nil, err
	}

	p := &Paths{
		root:       expanded,
		indexPath:  filepath.Join(expanded, filepath.FromSlash(defaultIndexSuffix)),
		cacheDir:   filepath.Join(expanded, filepath.FromSlash(defaultCacheSuffix)),
		configPath: filepath.Join(expanded, filepath.FromSlash(defaultConfigSuffix)),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Root returns the workspace root directory.
func (p *Paths) Root() string { return p.root }

// IndexPath returns the path to the workspace's index file.
func (p *Paths) IndexPath() string { return p.indexPath }

// CacheDir returns the directory openpackage caches fetched content under.
func (p *Paths) CacheDir() string { return p.cacheDir }

// ConfigPath returns the path to the workspace's config file.
func (p *Paths) ConfigPath() string { return p.configPath }

// EnsureCacheDir creates the cache directory if it doesn't exist.
func (p *Paths) EnsureCacheDir() error {
	return os.MkdirAll(p.cacheDir, 0o755)
}

// Expand replaces a leading "~" or "~/" with the user's home directory.
func Expand(path string) (string, error) {
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
