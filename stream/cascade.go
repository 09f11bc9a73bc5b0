// Package stream provides DynamoDB Streams handlers for cascade operations.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/espalier/record"
	"github.com/jacentio/espalier/store"
)

// Handler processes DynamoDB stream events for cascade deletes. When a
// record is soft-deleted, every record holding a link to it is deleted in
// turn, so the link invariant (links point at live records) doesn't rot
// after deletes. Deeper dependents cascade through the stream events their
// own deletes emit.
type Handler struct {
	store  store.Store
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(st store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  st,
		logger: logger,
	}
}

// HandleCascadeDelete processes DynamoDB stream events to delete records
// linking to a newly-deleted record. Designed to be used as an AWS Lambda
// handler.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for _, rec := range event.Records {
		if err := h.processRecord(ctx, rec); err != nil {
			h.logger.Error("failed to process record",
				"eventID", rec.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, streamRec events.DynamoDBEventRecord) error {
	// Only process MODIFY events where TTL was added
	if streamRec.EventName != "MODIFY" {
		return nil
	}

	oldTTL := getNumberAttr(streamRec.Change.OldImage, "ttl")
	newTTL := getNumberAttr(streamRec.Change.NewImage, "ttl")

	// Only process when TTL is newly set (was absent/0, now present)
	if oldTTL != 0 || newTTL == 0 {
		return nil
	}

	id := getStringAttr(streamRec.Change.NewImage, "id")
	kind := record.Kind(getStringAttr(streamRec.Change.NewImage, "kind"))
	if id == "" || kind == "" {
		return nil // Not a record item (e.g., an index artifact)
	}

	h.logger.Info("processing cascade delete",
		"id", id,
		"kind", kind,
		"ttl", newTTL,
	)

	deleted := 0
	for _, link := range record.LinksTo(kind) {
		dependents, err := h.store.Query(ctx, store.QueryInput{
			Kind:   link.Kind,
			Field:  link.Field,
			Values: []string{id},
		})
		if err != nil {
			return fmt.Errorf("query %s by %s: %w", link.Kind, link.Field, err)
		}
		if len(dependents) == 0 {
			continue
		}

		if err := h.store.Delete(ctx, dependents); err != nil {
			// A concurrent cascade may have deleted them already.
			if errors.Is(err, store.ErrNotFound) {
				h.logger.Warn("dependents already deleted",
					"kind", link.Kind,
					"field", link.Field,
					"target", id,
				)
				continue
			}
			return fmt.Errorf("delete %s dependents: %w", link.Kind, err)
		}
		deleted += len(dependents)
	}

	h.logger.Info("cascade delete completed",
		"id", id,
		"kind", kind,
		"dependentsDeleted", deleted,
	)

	return nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeString {
			return v.String()
		}
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}
