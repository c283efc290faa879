package domain

import "fmt"

// FileDescriptor names one remote archive file to fetch. Descriptors are
// produced by the resolver before a run and are read-only afterwards.
type FileDescriptor struct {
	// RemoteURL is the fully qualified download URL.
	RemoteURL string

	// RelativePath is the target path (including filename) under the
	// output root.
	RelativePath string

	// ExpectedSize is the byte count reported by the API.
	// Zero means unknown; size verification is skipped.
	ExpectedSize int64
}

// Validate checks that the descriptor is well formed.
func (d FileDescriptor) Validate() error {
	if d.RemoteURL == "" {
		return fmt.Errorf("%w: empty remote url", ErrInvalidDescriptor)
	}
	if d.RelativePath == "" {
		return fmt.Errorf("%w: empty relative path (url %s)", ErrInvalidDescriptor, d.RemoteURL)
	}
	return nil
}
