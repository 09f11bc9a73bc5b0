// Package record defines the CRM record model: five fixed kinds with
// schema-validated dynamic fields and a natural-key-based identity.
package record

import "fmt"

// State is a record's lifecycle state.
type State int

const (
	// Transient means the record has never been written; its ID is empty.
	Transient State = iota

	// Persistent means the record exists in the backing store.
	Persistent

	// Deleted means the record was removed from the backing store.
	// Any further write against it fails.
	Deleted
)

// Record is a single CRM record: a kind, a validated field set, and the
// store-managed identity fields. ID, Version, State, CreatedAt and UpdatedAt
// are maintained by the store; callers should treat them as read-only.
type Record struct {
	// Kind is the record kind. Set at construction, immutable.
	Kind Kind

	// ID is the system-assigned identifier. Empty until first persisted,
	// immutable afterwards.
	ID string

	// Version is the optimistic lock version.
	Version int64

	// State is the lifecycle state.
	State State

	// Fields holds the record's field values.
	Fields Fields

	// CreatedAt is the ISO 8601 creation timestamp.
	CreatedAt string

	// UpdatedAt is the ISO 8601 last update timestamp.
	UpdatedAt string
}

// New constructs a transient record of the given kind, validating the
// fields against the kind's schema.
func New(kind Kind, fields Fields) (*Record, error) {
	schema, ok := SchemaOf(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
	}
	if err := schema.Validate(fields); err != nil {
		return nil, err
	}
	r := &Record{Kind: kind, Fields: Fields{}}
	for name, value := range fields {
		r.Fields[name] = value
	}
	return r, nil
}

// SetFields merges values into the record's field set after validating
// them against the schema. Existing fields not named are left untouched.
func (r *Record) SetFields(fields Fields) error {
	schema, ok := SchemaOf(r.Kind)
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, r.Kind)
	}
	if err := schema.Validate(fields); err != nil {
		return err
	}
	if r.Fields == nil {
		r.Fields = Fields{}
	}
	for name, value := range fields {
		r.Fields[name] = value
	}
	return nil
}

// NaturalKey returns the value of the record's natural-key field, or
// empty string when the field is unset.
func (r *Record) NaturalKey() string {
	schema, ok := SchemaOf(r.Kind)
	if !ok {
		return ""
	}
	v, ok := r.Fields[schema.NaturalKey]
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

// Ref returns the type-qualified reference (e.g., "account#uuid"),
// or empty string for transient records.
func (r *Record) Ref() string {
	if r.ID == "" {
		return ""
	}
	return string(r.Kind) + "#" + r.ID
}
