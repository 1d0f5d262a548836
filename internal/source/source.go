// Package source classifies a dependency declaration into a canonical,
// stable node id and source kind. It is a total, pure
// function over the declaration and its defining directory — no I/O.
package source

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is the classification of a dependency's source.
type Kind string

const (
	KindRegistry Kind = "registry"
	KindGit      Kind = "git"
	KindPath     Kind = "path"
)

// Declaration is one edge from a manifest to a dependency.
// URL alone names a git source and Path alone a local path; when both are
// set, Path is a subdirectory inside the git repository. If both are empty,
// the dependency is resolved by Name against the registry.
type Declaration struct {
	Name       string
	Constraint string
	URL        string // may embed "#ref"
	Path       string // local path, or in-repo subpath when URL is set
	Dev        bool
}

// Addressed is the pure output of classifying a Declaration.
type Addressed struct {
	ID          string
	DisplayName string
	SourceType  Kind
	// NormalizedURL and Ref are populated when SourceType == KindGit.
	NormalizedURL string
	Ref           string
	Subpath       string
	// AbsPath is populated when SourceType == KindPath.
	AbsPath string
}

// Address classifies decl, resolving any local path against declDir.
func Address(decl Declaration, declDir string) Addressed {
	switch {
	case decl.URL != "":
		return addressGit(decl, declDir)
	case decl.Path != "" && decl.URL == "":
		return addressPath(decl, declDir)
	default:
		return Addressed{
			ID:          fmt.Sprintf("registry:%s", decl.Name),
			DisplayName: decl.Name,
			SourceType:  KindRegistry,
		}
	}
}

func addressPath(decl Declaration, declDir string) Addressed {
	abs := decl.Path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(declDir, decl.Path)
	}
	abs = filepath.Clean(abs)
	return Addressed{
		ID:          fmt.Sprintf("path:%s", abs),
		DisplayName: filepath.Base(abs),
		SourceType:  KindPath,
		AbsPath:     abs,
	}
}

func addressGit(decl Declaration, declDir string) Addressed {
	rawURL, ref := splitRef(decl.URL)
	normURL := normalizeGitURL(rawURL)

	subpath := decl.Path
	if subpath == "" {
		subpath = extractShorthandPath(rawURL)
	}
	subpath = strings.Trim(subpath, "/")

	if ref == "" {
		ref = "default"
	}

	id := fmt.Sprintf("git:%s#%s:%s", normURL, ref, subpath)

	display := decl.Name
	if display == "" {
		display = filepath.Base(normURL)
		if subpath != "" {
			display = filepath.Base(subpath)
		}
	}

	return Addressed{
		ID:            id,
		DisplayName:   display,
		SourceType:    KindGit,
		NormalizedURL: normURL,
		Ref:           ref,
		Subpath:       subpath,
	}
}

// splitRef splits a trailing "#<ref>" off a URL-ish string.
func splitRef(raw string) (url, ref string) {
	idx := strings.LastIndex(raw, "#")
	if idx < 0 {
		return raw, ""
	}
	return raw[:idx], raw[idx+1:]
}

// normalizeGitURL lowercases the host, strips a trailing ".git", and
// canonicalizes "gh@owner/repo[/path]" shorthand to an https URL so that
// equivalent declarations collapse to the same node id.
func normalizeGitURL(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "gh@") {
		rest := strings.TrimPrefix(raw, "gh@")
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) >= 2 {
			raw = fmt.Sprintf("https://github.com/%s/%s", parts[0], parts[1])
		}
	}

	raw = strings.TrimSuffix(raw, ".git")

	schemeIdx := strings.Index(raw, "://")
	if schemeIdx < 0 {
		return strings.ToLower(raw)
	}
	scheme := strings.ToLower(raw[:schemeIdx])
	rest := raw[schemeIdx+3:]

	slashIdx := strings.Index(rest, "/")
	host := rest
	path := ""
	if slashIdx >= 0 {
		host = rest[:slashIdx]
		path = rest[slashIdx:]
	}
	return scheme + "://" + strings.ToLower(host) + path
}

// extractShorthandPath pulls the in-repo subpath out of a
// "gh@owner/repo/sub/path" shorthand when no explicit path is given.
func extractShorthandPath(raw string) string {
	if !strings.HasPrefix(raw, "gh@") {
		return ""
	}
	rest := strings.TrimPrefix(raw, "gh@")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
