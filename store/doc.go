// Package store defines the backing-store surface the record layer is
// built on.
//
// Espalier persists flat CRM records (accounts, contacts, opportunities,
// leads, cases) and resolves them by a natural key — a business-meaningful
// field such as an account name — distinct from the system identifier the
// store assigns on first write.
//
// # Store interface
//
// All durable storage goes through [Store]:
//
//	type Store interface {
//	    Query(ctx context.Context, input QueryInput) ([]*record.Record, error)
//	    Write(ctx context.Context, records []*record.Record, mode WriteMode) error
//	    Delete(ctx context.Context, records []*record.Record) error
//	}
//
// Write takes a [WriteMode]: [Create] inserts and assigns identifiers,
// [Update] rewrites under optimistic locking, [Upsert] mixes both based on
// whether a record already carries an identifier. Batches are atomic: a
// batch either applies in full or not at all.
//
// The production implementation lives in the dynamo subpackage. Callers
// receive the store as an explicit dependency; there is no package-level
// default.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - delete/update target absent or never persisted
//   - [ErrStaleReference] - write against a deleted record
//   - [ErrAlreadyExists] - create with an existing identifier
//   - [ErrLinkTarget] - reference field points at a missing record
//   - [ErrConcurrentModification] - optimistic lock failed
//
// Opaque collaborator failures are wrapped in [BackingStoreError] and
// surfaced unchanged via errors.Unwrap.
package store
