package store

import "errors"

var (
	// ErrNotFound is returned when a delete or update target doesn't exist,
	// was never persisted, or is already deleted.
	ErrNotFound = errors.New("espalier: record not found")

	// ErrStaleReference is returned when a write targets a record that
	// has been deleted.
	ErrStaleReference = errors.New("espalier: record is deleted")

	// ErrAlreadyExists is returned when creating a record whose
	// identifier is already present in the store.
	ErrAlreadyExists = errors.New("espalier: record already exists")

	// ErrLinkTarget is returned when a reference field points at a
	// record that doesn't exist or is deleted.
	ErrLinkTarget = errors.New("espalier: link target not found")

	// ErrConcurrentModification is returned when optimistic locking
	// fails (version mismatch).
	ErrConcurrentModification = errors.New("espalier: record was modified concurrently")
)

// BackingStoreError wraps an opaque failure from the backing store.
// The underlying error is surfaced unchanged via Unwrap.
type BackingStoreError struct {
	// Op is the store operation that failed: "query", "write", or "delete".
	Op string

	// Err is the collaborator's error.
	Err error
}

func (e *BackingStoreError) Error() string {
	return "espalier: backing store " + e.Op + " failed: " + e.Err.Error()
}

func (e *BackingStoreError) Unwrap() error {
	return e.Err
}
