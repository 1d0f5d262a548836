//nolint:revive // Package name intentionally shadows stdlib errors for convenience.
package errors

import "fmt"

// FormatConversionError records a single file's failure to convert through
// an import flow. Per-file: it never aborts the package-level conversion,
// it only degrades the merged result and is surfaced as a warning.
type FormatConversionError struct {
	Base Error `json:"error"`

	// PackagePath is the source-relative path of the file that failed.
	PackagePath string `json:"packagePath"`
}

// NewFormatConversionError creates a FormatConversionError.
func NewFormatConversionError(path string, cause error) *FormatConversionError {
	return &FormatConversionError{
		Base: Error{
			Category: CategoryFormatConvert,
			Code:     CodeFormatConversion,
			Message:  fmt.Sprintf("failed to convert %s", path),
			Cause:    cause,
		},
		PackagePath: path,
	}
}

func (e *FormatConversionError) Error() string { return e.Base.Error() }
func (e *FormatConversionError) Unwrap() error { return e.Base.Cause }

// ConflictDeniedError records a target file that already belongs to a
// different package's ownership record. The installer skips that one file
// and continues; it never aborts the package install, and a package whose
// every target was denied still completes successfully.
type ConflictDeniedError struct {
	Base Error `json:"error"`

	// TargetPath is the workspace-relative path that was denied.
	TargetPath string `json:"targetPath"`

	// OwnedBy is the package name that currently owns the target.
	OwnedBy string `json:"ownedBy"`
}

// NewConflictDeniedError creates a ConflictDeniedError.
func NewConflictDeniedError(target, ownedBy string) *ConflictDeniedError {
	return &ConflictDeniedError{
		Base: Error{
			Category: CategoryConflictDenied,
			Code:     CodeConflictDenied,
			Message:  fmt.Sprintf("%s is owned by %q", target, ownedBy),
			Hint:     "pass force to overwrite the existing owner",
		},
		TargetPath: target,
		OwnedBy:    ownedBy,
	}
}

func (e *ConflictDeniedError) Error() string { return e.Base.Error() }

// InstallError wraps a failed install strategy invocation for one package.
// Isolated per package: the wave installer records it, continues the rest
// of the wave, and only stops enqueuing further waves if failFast is set.
type InstallError struct {
	Base Error `json:"error"`

	// PackageName is the package whose strategy invocation failed.
	PackageName string `json:"packageName"`
}

// NewInstallError creates an InstallError.
func NewInstallError(pkg string, cause error) *InstallError {
	return &InstallError{
		Base: Error{
			Category: CategoryInstall,
			Code:     CodeInstallFailed,
			Message:  fmt.Sprintf("failed to install %q", pkg),
			Cause:    cause,
		},
		PackageName: pkg,
	}
}

func (e *InstallError) Error() string { return e.Base.Error() }
func (e *InstallError) Unwrap() error { return e.Base.Cause }
