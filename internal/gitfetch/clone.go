// Package gitfetch wraps go-git clone/checkout operations, including ref
// checkout since dependency declarations may pin an arbitrary tag/commit
// rather than just a branch.
package gitfetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// CloneOptions configures a clone/checkout.
type CloneOptions struct {
	// Ref is a branch, tag, or commit SHA to check out. Empty means the
	// remote's default branch.
	Ref string
	// Depth for shallow clone (0 = full clone). Shallow clones only work
	// when Ref names a branch or tag, not an arbitrary commit.
	Depth int
}

// CloneURL clones url to destPath and checks out opts.Ref if set.
func CloneURL(ctx context.Context, url, destPath string, opts *CloneOptions) (commitSHA string, err error) {
	slog.Debug("cloning repository", "url", url, "dest", destPath)

	cloneOpts := &git.CloneOptions{URL: url}
	if opts != nil && opts.Depth > 0 {
		cloneOpts.Depth = opts.Depth
	}

	repo, err := git.PlainCloneContext(ctx, destPath, false, cloneOpts)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryAlreadyExists) {
			return "", fmt.Errorf("repository already exists at %s: %w", destPath, err)
		}
		return "", fmt.Errorf("failed to clone repository: %w", err)
	}

	if opts != nil && opts.Ref != "" && opts.Ref != "default" {
		if err := checkoutRef(repo, opts.Ref); err != nil {
			return "", fmt.Errorf("failed to checkout %s: %w", opts.Ref, err)
		}
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	slog.Debug("clone completed", "url", url, "path", destPath, "sha", head.Hash().String())
	return head.Hash().String(), nil
}

// checkoutRef resolves ref as a branch, tag, or raw commit hash (in that
// order) and checks the worktree out to it.
func checkoutRef(repo *git.Repository, ref string) error {
	w, err := repo.Worktree()
	if err != nil {
		return err
	}

	candidates := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(ref),
		plumbing.NewTagReferenceName(ref),
	}
	for _, name := range candidates {
		if _, err := repo.Reference(name, true); err == nil {
			return w.Checkout(&git.CheckoutOptions{Branch: name})
		}
	}

	// Fall back to treating ref as a raw commit hash.
	return w.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(ref)})
}

// Exists reports whether a git repository exists at path.
func Exists(path string) bool {
	_, err := git.PlainOpen(path)
	return err == nil
}

// EnsureParent creates destPath's parent directory.
func EnsureParent(destPath string) error {
	return os.MkdirAll(filepath.Dir(destPath), 0o755)
}
