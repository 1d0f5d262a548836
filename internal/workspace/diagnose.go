package workspace

import (
	"fmt"
	"os"

	"github.com/openpackage/openpackage/internal/index"
)

// StaleFileKind identifies why an index-owned file failed its on-disk check.
type StaleFileKind string

const (
	// StaleFileMissing indicates the target file no longer exists.
	StaleFileMissing StaleFileKind = "missing"
	// StaleFileNotRegular indicates the target exists but isn't a regular file
	// (e.g. a directory left behind after a manual move).
	StaleFileNotRegular StaleFileKind = "not_regular"
)

// StaleFile is one path the index claims a package owns that failed its
// on-disk check.
type StaleFile struct {
	Package string
	Source  string
	Target  string
	Kind    StaleFileKind
}

// Message returns a human-readable description of the issue.
func (s StaleFile) Message() string {
	switch s.Kind {
	case StaleFileNotRegular:
		return fmt.Sprintf("%s: %s is not a regular file", s.Package, s.Target)
	default:
		return fmt.Sprintf("%s: %s is missing", s.Package, s.Target)
	}
}

// Report is the result of a diagnose pass over a workspace index.
type Report struct {
	StaleFiles []StaleFile
}

// HasIssues reports whether any stale entries were found.
func (r *Report) HasIssues() bool {
	return len(r.StaleFiles) > 0
}

// Diagnose walks every file every package in doc claims to own and reports
// any target that no longer exists, or no longer is a regular file, on
// disk. It is read-only: it never touches the index or the filesystem
// beyond stat.
func Diagnose(doc *index.Document) (*Report, error) {
	report := &Report{}

	for pkgName, entry := range doc.Packages {
		if entry == nil {
			continue
		}
		for source, targets := range entry.Files {
			for _, target := range targets {
				// Stat follows symlinks, so a broken symlink reports as
				// missing rather than as a false-positive "regular file".
				info, err := os.Stat(target.Target)
				switch {
				case os.IsNotExist(err):
					report.StaleFiles = append(report.StaleFiles, StaleFile{
						Package: pkgName,
						Source:  source,
						Target:  target.Target,
						Kind:    StaleFileMissing,
					})
				case err != nil:
					return nil, fmt.Errorf("failed to stat %q for package %q: %w", target.Target, pkgName, err)
				case !info.Mode().IsRegular():
					report.StaleFiles = append(report.StaleFiles, StaleFile{
						Package: pkgName,
						Source:  source,
						Target:  target.Target,
						Kind:    StaleFileNotRegular,
					})
				}
			}
		}
	}

	return report, nil
}
