// Package ownership decides, for each file a package install would write,
// whether the write is allowed: an update to a file this package already
// owns, a first-time claim of an unowned path, or a conflict with another
// package's ownership record.
package ownership

import (
	"fmt"
	"os"

	"github.com/openpackage/openpackage/internal/index"
)

// Pair is one target path the flow engine would write to, paired with the
// source path within the package content root it came from.
type Pair struct {
	TargetPath string
	SourcePath string
}

// Decision classifies one Pair's write.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// Reason names why a Pair received its Decision.
type Reason string

const (
	ReasonUpdate       Reason = "update"        // this package already owns the target
	ReasonNewFile      Reason = "new-file"      // target has no owner and nothing on disk
	ReasonFirstClaim   Reason = "first-claim"   // target exists on disk but is unowned
	ReasonForced       Reason = "forced"        // another package owns it, force overrides
	ReasonOwnedByOther Reason = "owned-by-other"
)

// Verdict is the outcome for one Pair.
type Verdict struct {
	Pair     Pair
	Decision Decision
	Reason   Reason
	// OwnerPackage is set when another package currently owns TargetPath.
	OwnerPackage string
}

// Result is the resolver's output for one package's candidate writes.
type Result struct {
	Allowed  []Pair
	Denied   []Verdict
	Warnings []string
}

// Index is the subset of the workspace index ownership resolution reads:
// which package (if any) owns a given target path.
type Index struct {
	ownerByTarget map[string]string
}

// NewIndex builds a target-path -> owning-package lookup from a workspace
// index document. A target is recorded for the package whose Files entry
// lists it, regardless of source key.
func NewIndex(doc *index.Document) *Index {
	owners := make(map[string]string)
	if doc != nil {
		for pkgName, entry := range doc.Packages {
			if entry == nil {
				continue
			}
			for _, targets := range entry.Files {
				for _, t := range targets {
					owners[t.Target] = pkgName
				}
			}
		}
	}
	return &Index{ownerByTarget: owners}
}

// OwnerOf reports the package that currently owns target, if any.
func (idx *Index) OwnerOf(target string) (string, bool) {
	owner, ok := idx.ownerByTarget[target]
	return owner, ok
}

// StatFunc reports whether path exists on disk, matching os.Stat's error
// contract. Exposed so resolution can be tested without touching the
// filesystem.
type StatFunc func(path string) (exists bool, err error)

// OSStat is the default StatFunc, backed by os.Stat.
func OSStat(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Resolver decides ownership for one package's candidate writes against a
// workspace index.
type Resolver struct {
	Index *Index
	Stat  StatFunc
}

// NewResolver creates a Resolver over idx, defaulting Stat to OSStat.
func NewResolver(idx *Index) *Resolver {
	return &Resolver{Index: idx, Stat: OSStat}
}

// Resolve classifies every candidate pair for pkgName's install, per the
// four-case decision tree: prior ownership by this package is always an
// allowed update; ownership by another package is denied unless force is
// set; an unowned path that already exists on disk is allowed as a
// first-time claim with a warning; anything else is a plain new file.
func (r *Resolver) Resolve(pkgName string, pairs []Pair, force bool) Result {
	result := Result{}
	stat := r.Stat
	if stat == nil {
		stat = OSStat
	}

	for _, pair := range pairs {
		owner, owned := r.Index.OwnerOf(pair.TargetPath)

		switch {
		case owned && owner == pkgName:
			result.Allowed = append(result.Allowed, pair)

		case owned:
			if force {
				result.Allowed = append(result.Allowed, pair)
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"%s: overwriting %q previously owned by %q (force)", pkgName, pair.TargetPath, owner))
			} else {
				result.Denied = append(result.Denied, Verdict{
					Pair: pair, Decision: DecisionDeny, Reason: ReasonOwnedByOther, OwnerPackage: owner,
				})
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"%s: refusing to write %q, owned by %q", pkgName, pair.TargetPath, owner))
			}

		default:
			exists, err := stat(pair.TargetPath)
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"%s: could not check %q on disk: %v, treating as new file", pkgName, pair.TargetPath, err))
				result.Allowed = append(result.Allowed, pair)
				continue
			}
			result.Allowed = append(result.Allowed, pair)
			if exists {
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"%s: claiming unowned existing file %q", pkgName, pair.TargetPath))
			}
		}
	}

	return result
}
