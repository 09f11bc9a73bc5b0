// Package dynamo implements the backing store on DynamoDB.
//
// Records live in a single table keyed by id, with a sharded natural-key
// GSI for existence lookups. Deletes are soft: a delete sets the item's
// TTL, queries filter expired items, and DynamoDB reclaims them.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/espalier/internal/shard"
	"github.com/jacentio/espalier/record"
	"github.com/jacentio/espalier/store"
)

// Store is the DynamoDB-backed record store.
type Store struct {
	client *dynamodb.Client
	config Config
}

var _ store.Store = (*Store)(nil)

// New creates a new Store instance.
func New(client *dynamodb.Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// nameIndexKey computes the GSI key pair for a natural-key value.
func (s *Store) nameIndexKey(kind record.Kind, value string) (pk, sk string) {
	return shard.NameIndexPK(string(kind), value, s.config.NumShards), shard.NameDigest(value)
}

// Query returns active records matching a field-equality predicate.
// Natural-key fields are resolved through the name index; other fields
// fall back to a filtered scan.
func (s *Store) Query(ctx context.Context, input store.QueryInput) ([]*record.Record, error) {
	schema, ok := record.SchemaOf(input.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", record.ErrValidation, input.Kind)
	}
	def, ok := schema.Fields[input.Field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %q for kind %s", record.ErrValidation, input.Field, input.Kind)
	}
	if def.Type != record.TypeString && def.Type != record.TypeID {
		return nil, fmt.Errorf("%w: field %q of kind %s is not queryable by equality", record.ErrValidation, input.Field, input.Kind)
	}
	if len(input.Values) == 0 {
		return nil, nil
	}

	if input.Field == schema.NaturalKey {
		return s.queryByNaturalKey(ctx, input.Kind, input.Values)
	}
	return s.scanByField(ctx, input)
}

// queryByNaturalKey resolves each value through the name index. A value
// maps to exactly one index shard, so this is one query per distinct value.
func (s *Store) queryByNaturalKey(ctx context.Context, kind record.Kind, values []string) ([]*record.Record, error) {
	var records []*record.Record
	seen := make(map[string]bool, len(values))

	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true

		pk, sk := s.nameIndexKey(kind, value)
		paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
			TableName:                aws.String(s.config.RecordsTable),
			IndexName:                aws.String(s.config.NameIndex),
			KeyConditionExpression:   aws.String("nk_pk = :pk AND nk = :nk"),
			FilterExpression:         aws.String(TTLFilterExpr()),
			ExpressionAttributeNames: map[string]string{"#ttl": "ttl"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pk},
				":nk": &types.AttributeValueMemberS{Value: sk},
				":now": &types.AttributeValueMemberN{
					Value: strconv.FormatInt(time.Now().Unix(), 10),
				},
			},
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, &store.BackingStoreError{Op: "query", Err: err}
			}
			for _, raw := range page.Items {
				rec, err := recordFromItem(raw)
				if err != nil {
					return nil, err
				}
				records = append(records, rec)
			}
		}
	}

	return records, nil
}

// scanByField matches a non-indexed field with a filtered scan.
func (s *Store) scanByField(ctx context.Context, input store.QueryInput) ([]*record.Record, error) {
	exprNames := map[string]string{
		"#f":   input.Field,
		"#ttl": "ttl",
	}
	exprValues := map[string]types.AttributeValue{
		":kind": &types.AttributeValueMemberS{Value: string(input.Kind)},
		":now": &types.AttributeValueMemberN{
			Value: strconv.FormatInt(time.Now().Unix(), 10),
		},
	}

	var valueClauses []string
	for i, value := range input.Values {
		key := fmt.Sprintf(":v%d", i)
		exprValues[key] = &types.AttributeValueMemberS{Value: value}
		valueClauses = append(valueClauses, "#f = "+key)
	}

	filter := fmt.Sprintf("kind = :kind AND (%s) AND (%s)",
		strings.Join(valueClauses, " OR "), TTLFilterExpr())

	var records []*record.Record
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.RecordsTable),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &store.BackingStoreError{Op: "query", Err: err}
		}
		for _, raw := range page.Items {
			rec, err := recordFromItem(raw)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}

	return records, nil
}

// txPurpose tags each transaction item so cancellation reasons can be
// mapped back to a domain error.
type txPurpose int

const (
	txLinkCheck txPurpose = iota
	txPut
	txUpdate
	txDelete
)

// writePlan is one record's contribution to a write transaction.
type writePlan struct {
	rec    *record.Record
	create bool
	id     string
}

// Write persists the batch in a single transaction. Create puts mint
// identifiers and fail on identifier collision; Update rewrites under the
// record's current version; Upsert picks per record based on identifier
// presence. Reference fields add condition checks that the target record
// exists and is active, skipped for targets created in the same batch.
func (s *Store) Write(ctx context.Context, records []*record.Record, mode store.WriteMode) error {
	if len(records) == 0 {
		return nil
	}

	plans, err := s.planWrite(records, mode)
	if err != nil {
		return err
	}

	now := time.Now()
	nowISO := now.UTC().Format(time.RFC3339)
	nowUnix := strconv.FormatInt(now.Unix(), 10)

	// Identifiers settled in this batch don't need remote link checks.
	batchIDs := make(map[string]bool, len(plans))
	for _, p := range plans {
		batchIDs[p.id] = true
	}

	var items []types.TransactWriteItem
	var purposes []txPurpose
	linkChecked := map[string]bool{}

	for _, p := range plans {
		schema, _ := record.SchemaOf(p.rec.Kind)

		for name, def := range schema.Fields {
			if def.Type != record.TypeID {
				continue
			}
			value, ok := p.rec.Fields[name]
			if !ok {
				continue
			}
			ref, _ := value.AsID()
			if ref == "" {
				return fmt.Errorf("%w: empty link %q on kind %s", record.ErrValidation, name, p.rec.Kind)
			}
			if batchIDs[ref] || linkChecked[ref] {
				continue
			}
			linkChecked[ref] = true

			items = append(items, types.TransactWriteItem{
				ConditionCheck: &types.ConditionCheck{
					TableName: aws.String(s.config.RecordsTable),
					Key: map[string]types.AttributeValue{
						"id": &types.AttributeValueMemberS{Value: ref},
					},
					ConditionExpression:      aws.String(LinkTargetCondition()),
					ExpressionAttributeNames: map[string]string{"#ttl": "ttl"},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":now": &types.AttributeValueMemberN{Value: nowUnix},
					},
				},
			})
			purposes = append(purposes, txLinkCheck)
		}

		if p.create {
			item, err := s.buildPutItem(p, nowISO)
			if err != nil {
				return err
			}
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName:           aws.String(s.config.RecordsTable),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(id)"),
				},
			})
			purposes = append(purposes, txPut)
		} else {
			update, err := s.buildUpdate(p, nowISO)
			if err != nil {
				return err
			}
			items = append(items, types.TransactWriteItem{Update: update})
			purposes = append(purposes, txUpdate)
		}
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	}); err != nil {
		return mapTransactionError("write", err, purposes)
	}

	for _, p := range plans {
		if p.create {
			p.rec.ID = p.id
			p.rec.Version = 1
			p.rec.CreatedAt = nowISO
		} else {
			p.rec.Version++
		}
		p.rec.UpdatedAt = nowISO
		p.rec.State = record.Persistent
	}

	return nil
}

// planWrite validates the batch and decides create-vs-update per record.
func (s *Store) planWrite(records []*record.Record, mode store.WriteMode) ([]writePlan, error) {
	plans := make([]writePlan, 0, len(records))
	for _, rec := range records {
		schema, ok := record.SchemaOf(rec.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: unknown kind %q", record.ErrValidation, rec.Kind)
		}
		if err := schema.Validate(rec.Fields); err != nil {
			return nil, err
		}
		if rec.State == record.Deleted {
			return nil, store.ErrStaleReference
		}

		p := writePlan{rec: rec, id: rec.ID}
		switch mode {
		case store.Create:
			p.create = true
		case store.Update:
			if rec.ID == "" {
				return nil, store.ErrNotFound
			}
		case store.Upsert:
			p.create = rec.ID == ""
		default:
			return nil, fmt.Errorf("%w: unknown write mode %d", record.ErrValidation, mode)
		}
		if p.create && p.id == "" {
			p.id = uuid.New().String()
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// buildPutItem assembles the full item for a create.
func (s *Store) buildPutItem(p writePlan, nowISO string) (map[string]types.AttributeValue, error) {
	item, err := marshalFields(p.rec)
	if err != nil {
		return nil, err
	}

	item["id"] = &types.AttributeValueMemberS{Value: p.id}
	item["kind"] = &types.AttributeValueMemberS{Value: string(p.rec.Kind)}
	item["version"] = &types.AttributeValueMemberN{Value: "1"}
	item["created_at"] = &types.AttributeValueMemberS{Value: nowISO}
	item["updated_at"] = &types.AttributeValueMemberS{Value: nowISO}

	if nk := p.rec.NaturalKey(); nk != "" {
		pk, sk := s.nameIndexKey(p.rec.Kind, nk)
		item["nk_pk"] = &types.AttributeValueMemberS{Value: pk}
		item["nk"] = &types.AttributeValueMemberS{Value: sk}
	}

	return item, nil
}

// buildUpdate assembles the SET-expression update for an existing record.
func (s *Store) buildUpdate(p writePlan, nowISO string) (*types.Update, error) {
	attrs, err := marshalFields(p.rec)
	if err != nil {
		return nil, err
	}

	exprNames := map[string]string{
		"#updated_at": "updated_at",
		"#version":    "version",
		"#ttl":        "ttl",
	}
	exprValues := map[string]types.AttributeValue{
		":updated_at":       &types.AttributeValueMemberS{Value: nowISO},
		":one":              &types.AttributeValueMemberN{Value: "1"},
		":expected_version": &types.AttributeValueMemberN{Value: strconv.FormatInt(p.rec.Version, 10)},
	}

	var setClauses []string
	i := 0
	for name, attr := range attrs {
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		exprNames[nameKey] = name
		exprValues[valueKey] = attr
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
		i++
	}

	// Keep the name index in step when the natural key is set.
	if nk := p.rec.NaturalKey(); nk != "" {
		pk, sk := s.nameIndexKey(p.rec.Kind, nk)
		exprNames["#nk_pk"] = "nk_pk"
		exprNames["#nk"] = "nk"
		exprValues[":nk_pk"] = &types.AttributeValueMemberS{Value: pk}
		exprValues[":nk"] = &types.AttributeValueMemberS{Value: sk}
		setClauses = append(setClauses, "#nk_pk = :nk_pk", "#nk = :nk")
	}

	setClauses = append(setClauses, "#updated_at = :updated_at", "#version = #version + :one")

	return &types.Update{
		TableName: aws.String(s.config.RecordsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: p.id},
		},
		UpdateExpression:          aws.String("SET " + strings.Join(setClauses, ", ")),
		ConditionExpression:       aws.String("#version = :expected_version AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	}, nil
}

// Delete soft-deletes the batch in one transaction by setting TTLs.
// Records that were never persisted or are already deleted fail the whole
// batch with ErrNotFound.
func (s *Store) Delete(ctx context.Context, records []*record.Record) error {
	if len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		if rec.ID == "" || rec.State == record.Deleted {
			return store.ErrNotFound
		}
	}

	now := strconv.FormatInt(time.Now().Unix(), 10)
	items := make([]types.TransactWriteItem, 0, len(records))
	purposes := make([]txPurpose, 0, len(records))

	for _, rec := range records {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(s.config.RecordsTable),
				Key: map[string]types.AttributeValue{
					"id": &types.AttributeValueMemberS{Value: rec.ID},
				},
				UpdateExpression:    aws.String("SET #ttl = :now, #version = #version + :one"),
				ConditionExpression: aws.String("attribute_exists(id) AND attribute_not_exists(#ttl)"),
				ExpressionAttributeNames: map[string]string{
					"#ttl":     "ttl",
					"#version": "version",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":now": &types.AttributeValueMemberN{Value: now},
					":one": &types.AttributeValueMemberN{Value: "1"},
				},
			},
		})
		purposes = append(purposes, txDelete)
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	}); err != nil {
		return mapTransactionError("delete", err, purposes)
	}

	for _, rec := range records {
		rec.State = record.Deleted
		rec.Version++
	}

	return nil
}

// mapTransactionError maps transaction cancellation reasons back to
// domain errors by item purpose. Anything else surfaces as a
// BackingStoreError wrapping the SDK error unchanged.
func mapTransactionError(op string, err error, purposes []txPurpose) error {
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" || i >= len(purposes) {
				continue
			}
			switch purposes[i] {
			case txLinkCheck:
				return store.ErrLinkTarget
			case txPut:
				return store.ErrAlreadyExists
			case txUpdate:
				return store.ErrConcurrentModification
			case txDelete:
				return store.ErrNotFound
			}
		}
	}
	return &store.BackingStoreError{Op: op, Err: err}
}
