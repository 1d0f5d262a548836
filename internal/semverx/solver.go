// Package semverx combines dependency constraint ranges per package and
// picks a concrete version, local-first with remote fallback.
package semverx

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Mode selects how the solver falls back to a remote version list.
type Mode string

const (
	// ModeLocalOnly never queries the remote registry.
	ModeLocalOnly Mode = "local-only"
	// ModeDefault tries local versions first, then remote on empty result.
	ModeDefault Mode = "default"
	// ModeRemotePrimary always queries the remote registry first.
	ModeRemotePrimary Mode = "remote-primary"
)

// Conflict describes an unsatisfiable set of constraints for one package.
type Conflict struct {
	PackageName string
	Ranges      []string
	RequestedBy []string
}

// Request is one package's combined constraint input to the solver.
type Request struct {
	PackageName string
	// Ranges is every constraint string that reached this node, in the
	// order edges were discovered. A root override, when present, has
	// already replaced these by the caller (see ReplaceWithRootOverride).
	Ranges []string
	// RequestedBy labels each range for conflict reporting (same length
	// and order as Ranges; may be shorter if unlabeled).
	RequestedBy []string
	// Mutable, if non-empty, is a workspace/global version that is
	// pinned: any range that excludes it is fatal .
	Mutable string
}

// Resolution is the outcome for a single package.
type Resolution struct {
	PackageName string
	// Version is the selected version, or "" if Missing is true.
	Version string
	// Missing is true when no local/remote candidate satisfied the
	// filtered constraints (not itself fatal unless the package is root).
	Missing bool
	// Conflict is non-nil when candidates existed but none satisfied
	// every remaining range — fatal to the resolve phase.
	Conflict *Conflict
}

// normalizeRanges drops "*" and "latest" (meaning "no constraint") and
// dedupes the remainder, preserving first-seen order.
func normalizeRanges(ranges []string) []string {
	seen := make(map[string]bool, len(ranges))
	out := make([]string, 0, len(ranges))
	for _, r := range ranges {
		if r == "" || r == "*" || r == "latest" {
			continue
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// filterSatisfying returns the subset of candidates that satisfy every
// range in ranges, using include-prerelease semantics throughout.
func filterSatisfying(candidates []string, ranges []string) ([]string, error) {
	constraints := make([]*semver.Constraints, 0, len(ranges))
	for _, r := range ranges {
		c, err := semver.NewConstraint(r)
		if err != nil {
			return nil, err
		}
		constraints = append(constraints, c)
	}

	var out []string
	for _, cand := range candidates {
		v, err := semver.NewVersion(cand)
		if err != nil {
			continue
		}
		ok := true
		for _, c := range constraints {
			if !checkIncludingPrerelease(c, v) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, cand)
		}
	}
	return out, nil
}

// checkIncludingPrerelease checks a version against a constraint set,
// treating prerelease versions as eligible whenever they otherwise satisfy
// the numeric range (Masterminds/semver excludes prereleases from plain
// ranges unless the constraint itself names one; the solving algorithm
// requires "include-prerelease semantics" throughout the solver).
func checkIncludingPrerelease(c *semver.Constraints, v *semver.Version) bool {
	if c.Check(v) {
		return true
	}
	if v.Prerelease() == "" {
		return false
	}
	stripped, err := v.SetPrerelease("")
	if err != nil {
		return false
	}
	return c.Check(&stripped)
}

// highest returns the highest version string in candidates.
func highest(candidates []string) string {
	versions := make([]*semver.Version, 0, len(candidates))
	byString := make(map[*semver.Version]string, len(candidates))
	for _, cand := range candidates {
		v, err := semver.NewVersion(cand)
		if err != nil {
			continue
		}
		versions = append(versions, v)
		byString[v] = cand
	}
	if len(versions) == 0 {
		return ""
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].LessThan(versions[j]) })
	return byString[versions[len(versions)-1]]
}

// RemoteLister queries a registry for the full list of available versions
// for a package name. Implemented by internal/registryclient.
type RemoteLister interface {
	ListVersions(packageName string) ([]string, error)
}

// Solve resolves a single Request against a local candidate list, falling
// back to remote per Mode.
func Solve(req Request, localVersions []string, mode Mode, remote RemoteLister) (Resolution, error) {
	ranges := normalizeRanges(req.Ranges)

	if req.Mutable != "" && len(ranges) > 0 {
		satisfiesMutable, err := filterSatisfying([]string{req.Mutable}, ranges)
		if err == nil && len(satisfiesMutable) == 0 {
			return Resolution{}, &pinnedMutableConflict{packageName: req.PackageName, mutable: req.Mutable, ranges: ranges}
		}
	}

	candidates, err := filterSatisfying(localVersions, ranges)
	if err != nil {
		return Resolution{}, err
	}

	remoteFirst := mode == ModeRemotePrimary
	if (len(candidates) == 0 || remoteFirst) && mode != ModeLocalOnly && remote != nil {
		remoteVersions, rerr := remote.ListVersions(req.PackageName)
		if rerr == nil {
			remoteCandidates, ferr := filterSatisfying(remoteVersions, ranges)
			if ferr != nil {
				return Resolution{}, ferr
			}
			if len(remoteCandidates) > 0 || !remoteFirst {
				candidates = remoteCandidates
			}
		} else if remoteFirst {
			return Resolution{}, rerr
		}
	}

	if len(candidates) == 0 {
		if len(ranges) == 0 {
			return Resolution{PackageName: req.PackageName, Missing: true}, nil
		}
		if len(localVersions) > 0 || mode == ModeRemotePrimary {
			return Resolution{
				PackageName: req.PackageName,
				Conflict: &Conflict{
					PackageName: req.PackageName,
					Ranges:      ranges,
					RequestedBy: req.RequestedBy,
				},
			}, nil
		}
		return Resolution{PackageName: req.PackageName, Missing: true}, nil
	}

	return Resolution{PackageName: req.PackageName, Version: highest(candidates)}, nil
}

// pinnedMutableConflict is returned when a constraint excludes a pinned
// workspace/global mutable version  — always fatal.
type pinnedMutableConflict struct {
	packageName string
	mutable     string
	ranges      []string
}

func (e *pinnedMutableConflict) Error() string {
	return "constraint excludes pinned mutable version " + e.mutable + " for " + e.packageName
}

// ReplaceWithRootOverride implements root-override semantics: when present,
// root constraints REPLACE descendant constraints for the same package
// rather than intersecting with them.
func ReplaceWithRootOverride(rootOverride string, descendantRanges []string) []string {
	if rootOverride == "" {
		return descendantRanges
	}
	return []string{rootOverride}
}
