// Package upsert provides the natural-key upsert helper: look a record up
// by its natural key and decide between updating the match and creating a
// new record, one write per record either way.
package upsert

import (
	"context"
	"fmt"

	"github.com/jacentio/espalier/record"
	"github.com/jacentio/espalier/store"
)

// Helper performs find-or-create operations against a backing store.
// It assumes exclusive access to the records it touches for the duration
// of a call; concurrent mutation of the same record set is not coordinated.
type Helper struct {
	store store.Store
}

// New creates a Helper on the given backing store.
func New(st store.Store) *Helper {
	return &Helper{store: st}
}

// FindOrCreate queries the store for records of the kind whose natural key
// equals key. If any match, the first is selected — the store guarantees no
// order, so callers must not rely on which duplicate is chosen — and
// onExisting is merged into its fields before a single update write. If
// none match, a new record is constructed from the key plus defaults and
// created. Exactly one write is issued either way.
//
// defaults apply only on creation; onExisting applies only to an existing
// match and may be nil to write the match back unchanged.
func (h *Helper) FindOrCreate(ctx context.Context, kind record.Kind, key string, defaults, onExisting record.Fields) (*record.Record, error) {
	schema, err := schemaFor(kind)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("%w: empty natural key", record.ErrValidation)
	}

	matches, err := h.store.Query(ctx, store.QueryInput{
		Kind:   kind,
		Field:  schema.NaturalKey,
		Values: []string{key},
	})
	if err != nil {
		return nil, err
	}

	if len(matches) > 0 {
		rec := matches[0]
		if onExisting != nil {
			if err := rec.SetFields(onExisting); err != nil {
				return nil, err
			}
		}
		if err := h.store.Write(ctx, []*record.Record{rec}, store.Update); err != nil {
			return nil, err
		}
		return rec, nil
	}

	rec, err := newWithKey(kind, schema, key, defaults)
	if err != nil {
		return nil, err
	}
	if err := h.store.Write(ctx, []*record.Record{rec}, store.Create); err != nil {
		return nil, err
	}
	return rec, nil
}

// BatchUpsertByName upserts one record per input key in a single query and
// a single batched write. Existing records are fetched up front and matched
// by natural key; each input key either mutates its match via fieldsFactory
// or constructs a new record. The result preserves input order and always
// has the same length as keys — duplicate keys resolve to the same *Record,
// which then appears at each of their positions.
func (h *Helper) BatchUpsertByName(ctx context.Context, kind record.Kind, keys []string, fieldsFactory func(key string) record.Fields) ([]*record.Record, error) {
	schema, err := schemaFor(kind)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []*record.Record{}, nil
	}
	for _, key := range keys {
		if key == "" {
			return nil, fmt.Errorf("%w: empty natural key", record.ErrValidation)
		}
	}

	existing, err := h.store.Query(ctx, store.QueryInput{
		Kind:   kind,
		Field:  schema.NaturalKey,
		Values: keys,
	})
	if err != nil {
		return nil, err
	}

	// First match per key wins; the store guarantees no order among
	// duplicates.
	byKey := make(map[string]*record.Record, len(existing))
	for _, rec := range existing {
		if key := rec.NaturalKey(); byKey[key] == nil {
			byKey[key] = rec
		}
	}

	out := make([]*record.Record, 0, len(keys))
	resolved := make(map[string]*record.Record, len(keys))
	var batch []*record.Record

	for _, key := range keys {
		if rec, ok := resolved[key]; ok {
			out = append(out, rec)
			continue
		}

		var fields record.Fields
		if fieldsFactory != nil {
			fields = fieldsFactory(key)
		}

		rec := byKey[key]
		if rec != nil {
			if fields != nil {
				if err := rec.SetFields(fields); err != nil {
					return nil, err
				}
			}
		} else {
			rec, err = newWithKey(kind, schema, key, fields)
			if err != nil {
				return nil, err
			}
		}

		resolved[key] = rec
		batch = append(batch, rec)
		out = append(out, rec)
	}

	if err := h.store.Write(ctx, batch, store.Upsert); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAll deletes previously-persisted records in one batched call.
// An empty batch succeeds trivially without a round trip. Any record that
// was never persisted or is already deleted fails the whole batch with
// ErrNotFound before the store is contacted.
func (h *Helper) DeleteAll(ctx context.Context, records []*record.Record) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[*record.Record]bool, len(records))
	batch := make([]*record.Record, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" || rec.State == record.Deleted {
			return store.ErrNotFound
		}
		if seen[rec] {
			continue
		}
		seen[rec] = true
		batch = append(batch, rec)
	}

	return h.store.Delete(ctx, batch)
}

// schemaFor resolves a kind's schema or fails validation.
func schemaFor(kind record.Kind) (*record.Schema, error) {
	schema, ok := record.SchemaOf(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", record.ErrValidation, kind)
	}
	return schema, nil
}

// newWithKey constructs a transient record carrying the natural key plus
// the given fields. The key wins if fields also sets the natural-key field.
func newWithKey(kind record.Kind, schema *record.Schema, key string, fields record.Fields) (*record.Record, error) {
	rec, err := record.New(kind, fields)
	if err != nil {
		return nil, err
	}
	if err := rec.SetFields(record.Fields{schema.NaturalKey: record.String(key)}); err != nil {
		return nil, err
	}
	return rec, nil
}
