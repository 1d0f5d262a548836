// Package ociregistry pulls package content distributed as OCI
// artifacts rather than git repositories. It wraps
// github.com/google/go-containerregistry to list an image's tags and
// extract its layers into a content root, feeding the same content-root
// contract internal/gitfetch produces for git sources. Signature
// verification of pulled artifacts is out of scope here, and pulled
// content is not checked with internal/checksum either.
package ociregistry

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Puller fetches OCI artifacts into on-disk content roots, memoizing by
// (image, version) within a single run the same way gitfetch.Cache does
// for git sources.
type Puller struct {
	baseDir string
	cache   map[string]string
}

// NewPuller creates a Puller that extracts artifacts under baseDir.
func NewPuller(baseDir string) *Puller {
	return &Puller{baseDir: baseDir, cache: make(map[string]string)}
}

// ListTags returns every tag published for image, sorted lexically
// (no semver sort is applied here;
// internal/semverx sorts the candidates it cares about).
func (p *Puller) ListTags(ctx context.Context, image string) ([]string, error) {
	repo, err := name.NewRepository(image)
	if err != nil {
		return nil, fmt.Errorf("invalid OCI repository %q: %w", image, err)
	}

	tags, err := remote.List(repo, remote.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list tags for %q: %w", image, err)
	}

	sort.Strings(tags)
	return tags, nil
}

// Pull fetches image:version and extracts its layers into a content
// root under baseDir, returning that directory. A second call for the
// same (image, version) within the Puller's lifetime reuses the
// extracted directory without re-fetching.
func (p *Puller) Pull(ctx context.Context, image, version string) (string, error) {
	key := image + "@" + version
	if root, ok := p.cache[key]; ok {
		return root, nil
	}

	ref, err := name.ParseReference(image + ":" + version)
	if err != nil {
		return "", fmt.Errorf("invalid OCI reference %q: %w", key, err)
	}

	img, err := remote.Image(ref, remote.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to fetch OCI image %q: %w", key, err)
	}

	contentRoot := filepath.Join(p.baseDir, sanitize(key))
	if _, err := os.Stat(contentRoot); err == nil {
		p.cache[key] = contentRoot
		return contentRoot, nil
	}

	if err := os.MkdirAll(contentRoot, 0o755); err != nil {
		return "", fmt.Errorf("failed to create content root %q: %w", contentRoot, err)
	}

	layers, err := img.Layers()
	if err != nil {
		return "", fmt.Errorf("failed to read layers of %q: %w", key, err)
	}

	for _, layer := range layers {
		rc, err := layer.Uncompressed()
		if err != nil {
			return "", fmt.Errorf("failed to read layer of %q: %w", key, err)
		}
		if err := extractTar(rc, contentRoot); err != nil {
			rc.Close()
			return "", fmt.Errorf("failed to extract layer of %q: %w", key, err)
		}
		rc.Close()
	}

	p.cache[key] = contentRoot
	return contentRoot, nil
}

// extractTar writes a (possibly already-decompressed) tar stream's
// regular files and directories into dest, rejecting any entry that
// would escape dest via path traversal.
func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dest, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) && target != filepath.Clean(dest) {
			return fmt.Errorf("tar entry %q escapes content root", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
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
