// Package registryclient resolves "registry:<name>" sources against an
// aqua-style registry index: a flat mapping from package name to either
// a GitHub repository (resolved through internal/github release
// listings) or an OCI artifact reference (pulled through
// internal/ociregistry). It implements internal/resolve.RegistryResolver
// and internal/semverx.RemoteLister so the wave resolver can drive it
// without knowing which transport backs a given name.
package registryclient

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/openpackage/openpackage/internal/gitfetch"
	"github.com/openpackage/openpackage/internal/github"
	"github.com/openpackage/openpackage/internal/ociregistry"
	"github.com/openpackage/openpackage/internal/resolve"
	"github.com/openpackage/openpackage/internal/semverx"
	"github.com/openpackage/openpackage/internal/source"
)

// EntryKind is the transport a registry entry is fetched through.
type EntryKind string

const (
	EntryKindGitHub EntryKind = "github"
	EntryKindOCI    EntryKind = "oci"
)

// Entry is one named package's registry record.
type Entry struct {
	Name      string    `yaml:"name"`
	Kind      EntryKind `yaml:"kind"`
	Owner     string    `yaml:"owner,omitempty"`     // github
	Repo      string    `yaml:"repo,omitempty"`      // github
	TagPrefix string    `yaml:"tagPrefix,omitempty"` // github, e.g. "v"
	Image     string    `yaml:"image,omitempty"`     // oci, without tag
}

// Index is the on-disk shape of a registry file: a list of entries keyed
// by name once loaded.
type Index struct {
	Packages []Entry `yaml:"packages"`
}

// LoadIndex parses a registry index document.
func LoadIndex(data []byte) (map[string]Entry, error) {
	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse registry index: %w", err)
	}
	byName := make(map[string]Entry, len(idx.Packages))
	for _, e := range idx.Packages {
		byName[e.Name] = e
	}
	return byName, nil
}

// LoadIndexFile reads and parses a registry index file from disk.
func LoadIndexFile(path string) (map[string]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry index %q: %w", path, err)
	}
	return LoadIndex(data)
}

// Client resolves registry names to versions and content roots.
type Client struct {
	entries    map[string]Entry
	httpClient *http.Client
	git        *gitfetch.Cache
	oci        *ociregistry.Puller

	mu     sync.Mutex
	cached map[string][]string
}

// New builds a Client over entries, fetching GitHub releases with
// httpClient and git content through gitCache, OCI artifacts through
// ociPuller. gitCache and ociPuller may be nil if entries never name
// that kind.
func New(entries map[string]Entry, httpClient *http.Client, gitCache *gitfetch.Cache, ociPuller *ociregistry.Puller) *Client {
	if httpClient == nil {
		httpClient = github.NewHTTPClient(github.TokenFromEnv())
	}
	return &Client{
		entries:    entries,
		httpClient: httpClient,
		git:        gitCache,
		oci:        ociPuller,
		cached:     make(map[string][]string),
	}
}

// ListVersions implements internal/semverx.RemoteLister.
func (c *Client) ListVersions(packageName string) ([]string, error) {
	return c.listVersions(context.Background(), packageName)
}

// LocalVersions implements internal/resolve.RegistryResolver. This
// client has no separate local cache of versions distinct from the
// remote listing, so it always returns the same list ListVersions would.
func (c *Client) LocalVersions(ctx context.Context, name string) ([]string, error) {
	return c.listVersions(ctx, name)
}

func (c *Client) listVersions(ctx context.Context, name string) ([]string, error) {
	c.mu.Lock()
	if v, ok := c.cached[name]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	entry, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("no registry entry for package %q", name)
	}

	var versions []string
	var err error
	switch entry.Kind {
	case EntryKindOCI:
		if c.oci == nil {
			return nil, fmt.Errorf("no OCI puller configured for package %q", name)
		}
		versions, err = c.oci.ListTags(ctx, entry.Image)
	default:
		versions, err = github.ListReleases(ctx, c.httpClient, entry.Owner, entry.Repo, entry.TagPrefix)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list versions for %q: %w", name, err)
	}

	c.mu.Lock()
	c.cached[name] = versions
	c.mu.Unlock()
	return versions, nil
}

// ResolveRegistry implements internal/resolve.RegistryResolver: it picks
// the best version satisfying ranges under mode, then fetches that
// version's content into a content root.
func (c *Client) ResolveRegistry(ctx context.Context, name string, ranges []string, mode semverx.Mode) (resolve.RegistryContent, error) {
	entry, ok := c.entries[name]
	if !ok {
		return resolve.RegistryContent{}, fmt.Errorf("no registry entry for package %q", name)
	}

	local, err := c.listVersions(ctx, name)
	if err != nil {
		return resolve.RegistryContent{}, err
	}

	resolution, err := semverx.Solve(semverx.Request{PackageName: name, Ranges: ranges}, local, mode, c)
	if err != nil {
		return resolve.RegistryContent{}, err
	}

	switch entry.Kind {
	case EntryKindOCI:
		if c.oci == nil {
			return resolve.RegistryContent{}, fmt.Errorf("no OCI puller configured for package %q", name)
		}
		contentRoot, err := c.oci.Pull(ctx, entry.Image, resolution.Version)
		if err != nil {
			return resolve.RegistryContent{}, err
		}
		return resolve.RegistryContent{ContentRoot: contentRoot, ResolvedVersion: resolution.Version}, nil
	default:
		if c.git == nil {
			return resolve.RegistryContent{}, fmt.Errorf("no git cache configured for package %q", name)
		}
		url := fmt.Sprintf("https://github.com/%s/%s", entry.Owner, entry.Repo)
		tag := entry.TagPrefix + resolution.Version
		res, err := c.git.Resolve(ctx, gitfetch.Key{URL: url, Ref: tag})
		if err != nil {
			return resolve.RegistryContent{}, err
		}
		return resolve.RegistryContent{ContentRoot: res.ContentRoot, ResolvedVersion: resolution.Version}, nil
	}
}

// Addr classifies a registry-kind declaration the way internal/source
// does for git/path declarations, for callers that need a stable node
// id before a resolve has happened.
func Addr(name string) source.Addressed {
	return source.Address(source.Declaration{Name: name}, "")
}
