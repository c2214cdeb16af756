package domain

import (
	"errors"
	"fmt"
)

// Domain errors. These represent the error taxonomy of the store;
// infrastructure errors (database, network) are wrapped around them
// with %w so errors.Is still classifies them.

var (
	// ErrObjectNotFound indicates no CAS object exists for a fingerprint.
	ErrObjectNotFound = errors.New("object not found")

	// ErrNameNotFound indicates no index entry exists for a logical name.
	ErrNameNotFound = errors.New("name not found")

	// ErrVersionNotFound indicates the requested version key is absent
	// from the name's index entry.
	ErrVersionNotFound = errors.New("version not found")

	// ErrNoVersions indicates the index entry exists but holds no
	// versions (all were removed).
	ErrNoVersions = errors.New("no versions")

	// ErrCASOperation indicates the backend rejected a put, up, or down.
	ErrCASOperation = errors.New("cas operation failed")

	// ErrUnknownCompressor indicates a compression identifier with no
	// registered compressor.
	ErrUnknownCompressor = errors.New("unknown compressor")

	// ErrUnknownAlgorithm indicates a fingerprint algorithm tag this
	// build does not understand.
	ErrUnknownAlgorithm = errors.New("unknown fingerprint algorithm")

	// ErrCorruptRecipe indicates a recipe that failed to decode:
	// trailing bytes, a truncated body, or an unsupported version tag.
	ErrCorruptRecipe = errors.New("corrupt recipe")

	// ErrInternalConsistency indicates a materialized chunk whose
	// length differs from its declared extent length. This is a chunk
	// generator bug, fatal and never retried.
	ErrInternalConsistency = errors.New("internal consistency violation")
)

// StoreError wraps a domain error with the affected resource.
type StoreError struct {
	// Err is the underlying domain error.
	Err error

	// Resource identifies the affected resource (fingerprint digest,
	// logical name, or version key).
	Resource string

	// Message provides additional context.
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	switch {
	case e.Resource != "" && e.Message != "":
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	case e.Resource != "":
		return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Resource)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	default:
		return e.Err.Error()
	}
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError with context.
func NewStoreError(err error, message, resource string) *StoreError {
	return &StoreError{Err: err, Message: message, Resource: resource}
}
