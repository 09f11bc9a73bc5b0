package store

import (
	"context"

	"github.com/jacentio/espalier/record"
)

// WriteMode selects the write semantics for a batch.
type WriteMode int

const (
	// Create inserts new records and fails if an identifier already exists.
	Create WriteMode = iota + 1

	// Update rewrites existing records under optimistic locking.
	Update

	// Upsert creates records without identifiers and updates the rest.
	Upsert
)

// QueryInput defines a field-equality query over one record kind.
type QueryInput struct {
	// Kind is the record kind to query.
	Kind record.Kind

	// Field is the field name to match. Must be a string-typed or
	// reference-typed field of the kind's schema.
	Field string

	// Values are the values to match. A record matches when its field
	// equals any of them. Order of results is not guaranteed.
	Values []string
}

// Store is the backing-store collaborator all durable storage is
// delegated to. Implementations must be explicit dependencies of their
// callers; there is no ambient default store.
type Store interface {
	// Query returns the records matching the field-equality predicate.
	// Deleted records are never returned.
	Query(ctx context.Context, input QueryInput) ([]*record.Record, error)

	// Write persists the batch in one call, atomically. On success,
	// created records have identifiers assigned and every record's
	// version and timestamps are refreshed. Records must be distinct.
	Write(ctx context.Context, records []*record.Record, mode WriteMode) error

	// Delete removes the batch in one call. Fails with ErrNotFound if
	// any record was never persisted or is already deleted.
	Delete(ctx context.Context, records []*record.Record) error
}
