package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/espalier/record"
	"github.com/jacentio/espalier/store"
)

// fakeStore serves canned query results and captures deletes.
type fakeStore struct {
	results map[string][]*record.Record // keyed by field=value

	queries   []store.QueryInput
	deleted   [][]*record.Record
	deleteErr error
}

func (f *fakeStore) Query(_ context.Context, input store.QueryInput) ([]*record.Record, error) {
	f.queries = append(f.queries, input)
	if len(input.Values) != 1 {
		return nil, nil
	}
	return f.results[input.Field+"="+input.Values[0]], nil
}

func (f *fakeStore) Write(_ context.Context, _ []*record.Record, _ store.WriteMode) error {
	return errors.New("unexpected write")
}

func (f *fakeStore) Delete(_ context.Context, records []*record.Record) error {
	f.deleted = append(f.deleted, records)
	return f.deleteErr
}

// deleteEvent builds a MODIFY stream record marking a record soft-deleted.
func deleteEvent(kind, id string) events.DynamoDBEvent {
	return events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			{
				EventID:   "evt-1",
				EventName: "MODIFY",
				Change: events.DynamoDBStreamRecord{
					OldImage: map[string]events.DynamoDBAttributeValue{
						"id":   events.NewStringAttribute(id),
						"kind": events.NewStringAttribute(kind),
					},
					NewImage: map[string]events.DynamoDBAttributeValue{
						"id":   events.NewStringAttribute(id),
						"kind": events.NewStringAttribute(kind),
						"ttl":  events.NewNumberAttribute("1700000000"),
					},
				},
			},
		},
	}
}

func TestHandleCascadeDelete_DeletesDependents(t *testing.T) {
	contact := &record.Record{
		Kind: record.KindContact, ID: "c-1", State: record.Persistent,
		Fields: record.Fields{"account_id": record.ID("a-1")},
	}
	opp := &record.Record{
		Kind: record.KindOpportunity, ID: "o-1", State: record.Persistent,
		Fields: record.Fields{"account_id": record.ID("a-1")},
	}
	fs := &fakeStore{results: map[string][]*record.Record{
		"account_id=a-1": {contact, opp},
	}}
	h := NewHandler(fs, nil)

	if err := h.HandleCascadeDelete(context.Background(), deleteEvent("account", "a-1")); err != nil {
		t.Fatalf("HandleCascadeDelete failed: %v", err)
	}

	// Account is linked from contact, opportunity, and case schemas.
	if len(fs.queries) != 3 {
		t.Errorf("issued %d queries, want 3 (one per linking kind)", len(fs.queries))
	}
	for _, q := range fs.queries {
		if q.Field != "account_id" || len(q.Values) != 1 || q.Values[0] != "a-1" {
			t.Errorf("unexpected query %+v", q)
		}
	}

	total := 0
	for _, batch := range fs.deleted {
		total += len(batch)
	}
	if total != 2 {
		t.Errorf("deleted %d dependents, want 2", total)
	}
}

func TestHandleCascadeDelete_NoDependents(t *testing.T) {
	fs := &fakeStore{}
	h := NewHandler(fs, nil)

	if err := h.HandleCascadeDelete(context.Background(), deleteEvent("account", "a-1")); err != nil {
		t.Fatalf("HandleCascadeDelete failed: %v", err)
	}
	if len(fs.deleted) != 0 {
		t.Errorf("issued %d delete batches for no dependents", len(fs.deleted))
	}
}

func TestHandleCascadeDelete_UnlinkedKind(t *testing.T) {
	// Nothing links to leads, so their deletion needs no queries at all.
	fs := &fakeStore{}
	h := NewHandler(fs, nil)

	if err := h.HandleCascadeDelete(context.Background(), deleteEvent("lead", "l-1")); err != nil {
		t.Fatalf("HandleCascadeDelete failed: %v", err)
	}
	if len(fs.queries) != 0 {
		t.Errorf("issued %d queries for an unlinked kind", len(fs.queries))
	}
}

func TestHandleCascadeDelete_ToleratesAlreadyDeleted(t *testing.T) {
	contact := &record.Record{
		Kind: record.KindContact, ID: "c-1", State: record.Persistent,
		Fields: record.Fields{"account_id": record.ID("a-1")},
	}
	fs := &fakeStore{
		results:   map[string][]*record.Record{"account_id=a-1": {contact}},
		deleteErr: store.ErrNotFound,
	}
	h := NewHandler(fs, nil)

	if err := h.HandleCascadeDelete(context.Background(), deleteEvent("account", "a-1")); err != nil {
		t.Errorf("concurrent cascade should be tolerated, got %v", err)
	}
}

func TestHandleCascadeDelete_SurfacesDeleteError(t *testing.T) {
	contact := &record.Record{
		Kind: record.KindContact, ID: "c-1", State: record.Persistent,
		Fields: record.Fields{"account_id": record.ID("a-1")},
	}
	fs := &fakeStore{
		results:   map[string][]*record.Record{"account_id=a-1": {contact}},
		deleteErr: &store.BackingStoreError{Op: "delete", Err: errors.New("throttled")},
	}
	h := NewHandler(fs, nil)

	if err := h.HandleCascadeDelete(context.Background(), deleteEvent("account", "a-1")); err == nil {
		t.Error("expected the backing store failure to surface for retry")
	}
}

func TestProcessRecord_IgnoresInsert(t *testing.T) {
	fs := &fakeStore{}
	h := NewHandler(fs, nil)

	event := deleteEvent("account", "a-1")
	event.Records[0].EventName = "INSERT"

	if err := h.HandleCascadeDelete(context.Background(), event); err != nil {
		t.Fatalf("HandleCascadeDelete failed: %v", err)
	}
	if len(fs.queries) != 0 {
		t.Error("INSERT events should be ignored")
	}
}

func TestProcessRecord_IgnoresPreexistingTTL(t *testing.T) {
	fs := &fakeStore{}
	h := NewHandler(fs, nil)

	event := deleteEvent("account", "a-1")
	event.Records[0].Change.OldImage["ttl"] = events.NewNumberAttribute("1600000000")

	if err := h.HandleCascadeDelete(context.Background(), event); err != nil {
		t.Fatalf("HandleCascadeDelete failed: %v", err)
	}
	if len(fs.queries) != 0 {
		t.Error("events where TTL was already set should be ignored")
	}
}

func TestProcessRecord_IgnoresNonRecordItems(t *testing.T) {
	fs := &fakeStore{}
	h := NewHandler(fs, nil)

	event := deleteEvent("", "")
	delete(event.Records[0].Change.NewImage, "id")
	delete(event.Records[0].Change.NewImage, "kind")

	if err := h.HandleCascadeDelete(context.Background(), event); err != nil {
		t.Fatalf("HandleCascadeDelete failed: %v", err)
	}
	if len(fs.queries) != 0 {
		t.Error("items without record identity should be ignored")
	}
}
