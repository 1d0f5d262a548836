//nolint:revive // Package name intentionally shadows stdlib errors for convenience.
package errors

import "fmt"

// RemoteClassification narrows a RemoteFailureError to a cause bucket, so
// callers can decide whether to degrade to MissingPackage (default mode)
// or treat it as fatal (remote-primary mode).
type RemoteClassification string

const (
	ClassificationNotFound    RemoteClassification = "not-found"
	ClassificationAccessDenied RemoteClassification = "access-denied"
	ClassificationNetwork     RemoteClassification = "network"
	ClassificationIntegrity   RemoteClassification = "integrity"
	ClassificationUnknown     RemoteClassification = "unknown"
)

// RemoteFailureError represents a registry or git transport failure.
type RemoteFailureError struct {
	Base Error `json:"error"`

	// Source is the address that failed (registry name, git URL, etc).
	Source string `json:"source"`

	// Classification narrows the failure for degrade/fatal decisions.
	Classification RemoteClassification `json:"classification"`
}

func codeForClassification(c RemoteClassification) Code {
	switch c {
	case ClassificationNotFound:
		return CodeRemoteNotFound
	case ClassificationAccessDenied:
		return CodeRemoteDenied
	case ClassificationNetwork:
		return CodeRemoteNetwork
	case ClassificationIntegrity:
		return CodeRemoteIntegrity
	default:
		return CodeRemoteUnknown
	}
}

// NewRemoteFailureError creates a RemoteFailureError.
func NewRemoteFailureError(source string, classification RemoteClassification, cause error) *RemoteFailureError {
	return &RemoteFailureError{
		Base: Error{
			Category: CategoryRemoteFailure,
			Code:     codeForClassification(classification),
			Message:  fmt.Sprintf("remote failure (%s) fetching %s", classification, source),
			Cause:    cause,
		},
		Source:         source,
		Classification: classification,
	}
}

func (e *RemoteFailureError) Error() string { return e.Base.Error() }
func (e *RemoteFailureError) Unwrap() error { return e.Base.Cause }

// Degradable reports whether this failure should degrade to MissingPackage
// under the resolver's default (local-first, remote-fallback) mode, as
// opposed to being fatal under remote-primary mode.
func (e *RemoteFailureError) Degradable() bool {
	return true
}

// FetchError wraps a failed per-node fetch (git/registry/path). The wave
// resolver turns this into a warning plus a missing-package entry rather
// than aborting the whole resolve.
type FetchError struct {
	Base Error `json:"error"`

	// NodeID is the canonical id of the node whose fetch failed.
	NodeID string `json:"nodeId"`
}

// NewFetchError creates a FetchError.
func NewFetchError(nodeID string, cause error) *FetchError {
	return &FetchError{
		Base: Error{
			Category: CategoryFetch,
			Code:     CodeFetchFailed,
			Message:  fmt.Sprintf("failed to fetch %s", nodeID),
			Cause:    cause,
		},
		NodeID: nodeID,
	}
}

func (e *FetchError) Error() string { return e.Base.Error() }
func (e *FetchError) Unwrap() error { return e.Base.Cause }
