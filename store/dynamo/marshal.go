package dynamo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/espalier/record"
)

// Attributes owned by the store. Field names in kind schemas must not
// collide with these.
var managedAttrs = map[string]bool{
	"id":         true,
	"kind":       true,
	"version":    true,
	"created_at": true,
	"updated_at": true,
	"ttl":        true,
	"nk_pk":      true,
	"nk":         true,
}

// marshalValue converts a field value to a DynamoDB attribute.
func marshalValue(v record.Value) (types.AttributeValue, error) {
	switch v.Type() {
	case record.TypeString:
		s, _ := v.AsString()
		return &types.AttributeValueMemberS{Value: s}, nil
	case record.TypeID:
		ref, _ := v.AsID()
		return &types.AttributeValueMemberS{Value: ref}, nil
	case record.TypeNumber:
		n, _ := v.AsNumber()
		return attributevalue.Marshal(n)
	case record.TypeDate:
		t, _ := v.AsDate()
		return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339)}, nil
	}
	return nil, fmt.Errorf("%w: untyped field value", record.ErrValidation)
}

// unmarshalValue converts a DynamoDB attribute back to a field value,
// guided by the schema field definition. Returns false for attributes
// that don't fit the declared type.
func unmarshalValue(def record.FieldDef, attr types.AttributeValue) (record.Value, bool) {
	switch def.Type {
	case record.TypeString:
		if s, ok := attr.(*types.AttributeValueMemberS); ok {
			return record.String(s.Value), true
		}
	case record.TypeID:
		if s, ok := attr.(*types.AttributeValueMemberS); ok {
			return record.ID(s.Value), true
		}
	case record.TypeNumber:
		if n, ok := attr.(*types.AttributeValueMemberN); ok {
			f, err := strconv.ParseFloat(n.Value, 64)
			if err == nil {
				return record.Number(f), true
			}
		}
	case record.TypeDate:
		if s, ok := attr.(*types.AttributeValueMemberS); ok {
			t, err := time.Parse(time.RFC3339, s.Value)
			if err == nil {
				return record.Date(t), true
			}
		}
	}
	return record.Value{}, false
}

// marshalFields converts a record's field set to item attributes.
func marshalFields(rec *record.Record) (map[string]types.AttributeValue, error) {
	attrs := make(map[string]types.AttributeValue, len(rec.Fields))
	for name, value := range rec.Fields {
		if managedAttrs[name] {
			return nil, fmt.Errorf("%w: field %q collides with a managed attribute", record.ErrValidation, name)
		}
		attr, err := marshalValue(value)
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", name, err)
		}
		attrs[name] = attr
	}
	return attrs, nil
}

// recordFromItem converts a DynamoDB item to a Record. Items are assumed
// active (TTL filtering happens in the query). Unknown attributes are
// dropped.
func recordFromItem(item map[string]types.AttributeValue) (*record.Record, error) {
	rec := &record.Record{State: record.Persistent, Fields: record.Fields{}}

	if v, ok := item["id"].(*types.AttributeValueMemberS); ok {
		rec.ID = v.Value
	}
	if v, ok := item["kind"].(*types.AttributeValueMemberS); ok {
		rec.Kind = record.Kind(v.Value)
	}
	if v, ok := item["version"].(*types.AttributeValueMemberN); ok {
		rec.Version, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := item["created_at"].(*types.AttributeValueMemberS); ok {
		rec.CreatedAt = v.Value
	}
	if v, ok := item["updated_at"].(*types.AttributeValueMemberS); ok {
		rec.UpdatedAt = v.Value
	}

	schema, ok := record.SchemaOf(rec.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: item has unknown kind %q", record.ErrValidation, rec.Kind)
	}
	for name, attr := range item {
		if managedAttrs[name] {
			continue
		}
		def, ok := schema.Fields[name]
		if !ok {
			continue
		}
		if value, ok := unmarshalValue(def, attr); ok {
			rec.Fields[name] = value
		}
	}

	return rec, nil
}
