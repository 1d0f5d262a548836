package gitfetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Key identifies one (gitUrl, ref, subpath) fetch.
type Key struct {
	URL     string
	Ref     string
	Subpath string
}

func (k Key) String() string {
	return fmt.Sprintf("%s#%s:%s", k.URL, k.Ref, k.Subpath)
}

// Result is the immutable outcome of resolving a git source to content.
type Result struct {
	ContentRoot   string
	IsMarketplace bool
	RepoRoot      string
	CommitSHA     string
}

// Cloner performs the actual clone + marketplace detection. Implemented by
// the concrete fetcher so Cache stays transport-agnostic and testable.
type Cloner interface {
	Clone(ctx context.Context, key Key, repoRoot string) (Result, error)
}

// Cache memoizes resolution of git refs to on-disk content roots within a
// single run. Negative results (fetch failures) are cached too, so a
// retry of the same key in the same run never re-attempts the transport.
type Cache struct {
	mu      sync.Mutex
	cloner  Cloner
	baseDir string
	results map[Key]Result
	errs    map[Key]error
}

// NewCache creates a Cache rooted at baseDir (where repos are cloned to).
func NewCache(cloner Cloner, baseDir string) *Cache {
	return &Cache{
		cloner:  cloner,
		baseDir: baseDir,
		results: make(map[Key]Result),
		errs:    make(map[Key]error),
	}
}

// Resolve returns the cached Result for key, fetching on first access.
// A cached failure is replayed without touching the transport again.
func (c *Cache) Resolve(ctx context.Context, key Key) (Result, error) {
	c.mu.Lock()
	if res, ok := c.results[key]; ok {
		c.mu.Unlock()
		return res, nil
	}
	if err, ok := c.errs[key]; ok {
		c.mu.Unlock()
		return Result{}, err
	}
	c.mu.Unlock()

	repoRoot := filepath.Join(c.baseDir, sanitize(key.URL+"#"+key.Ref))
	res, err := c.cloner.Clone(ctx, key, repoRoot)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errs[key] = err
		return Result{}, err
	}
	c.results[key] = res
	return res, nil
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// DefaultCloner is the Cloner backed by gitfetch's go-git wrapper.
type DefaultCloner struct {
	// MarketplaceMarker is the relative path whose presence marks a
	// content root as a marketplace container.
	MarketplaceMarker string
}

// Clone clones the repo (or reuses it if already present) and resolves
// the content root for key.Subpath.
func (d *DefaultCloner) Clone(ctx context.Context, key Key, repoRoot string) (Result, error) {
	if !Exists(repoRoot) {
		if err := EnsureParent(repoRoot); err != nil {
			return Result{}, err
		}
		ref := key.Ref
		if ref == "default" {
			ref = ""
		}
		sha, err := CloneURL(ctx, key.URL, repoRoot, &CloneOptions{Ref: ref})
		if err != nil {
			return Result{}, err
		}
		return d.resolveContentRoot(repoRoot, key.Subpath, sha)
	}
	return d.resolveContentRoot(repoRoot, key.Subpath, "")
}

func (d *DefaultCloner) resolveContentRoot(repoRoot, subpath, sha string) (Result, error) {
	contentRoot := repoRoot
	if subpath != "" {
		contentRoot = filepath.Join(repoRoot, subpath)
	}
	if _, err := os.Stat(contentRoot); err != nil {
		return Result{}, fmt.Errorf("content root %s does not exist: %w", contentRoot, err)
	}

	marker := d.MarketplaceMarker
	if marker == "" {
		marker = ".claude-plugin/marketplace.json"
	}
	isMarketplace := false
	if _, err := os.Stat(filepath.Join(contentRoot, marker)); err == nil {
		isMarketplace = true
	}

	// A marketplace result carries no contentRoot: the node it produces is
	// terminal and must never be walked for child declarations.
	resultRoot := contentRoot
	if isMarketplace {
		resultRoot = ""
	}

	return Result{
		ContentRoot:   resultRoot,
		IsMarketplace: isMarketplace,
		RepoRoot:      repoRoot,
		CommitSHA:     sha,
	}, nil
}
