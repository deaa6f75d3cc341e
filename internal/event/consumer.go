// Package event applies document change events from Kafka to the index.
package event

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/service"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
	pkgkafka "github.com/utafrali/docsearch/pkg/kafka"
)

// Event types, also used as the entity/action pair of the topics.
const (
	TypeDocumentUpserted = "document.upserted"
	TypeDocumentDeleted  = "document.deleted"
)

// Topics consumed by the indexer.
var (
	TopicDocumentUpserted = pkgkafka.Topic("document", "upserted")
	TopicDocumentDeleted  = pkgkafka.Topic("document", "deleted")
)

// Topics returns every topic the consumer handles.
func Topics() []string {
	return []string{TopicDocumentUpserted, TopicDocumentDeleted}
}

// DocumentUpserted is the payload of a document.upserted event. An empty ID
// lets the backend assign one.
type DocumentUpserted struct {
	Index  string         `json:"index"`
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

// DocumentDeleted is the payload of a document.deleted event.
type DocumentDeleted struct {
	Index string `json:"index"`
	Type  string `json:"type"`
	ID    string `json:"id"`
}

// Key returns the message key for a document, so every change to one
// document lands on one partition.
func Key(index, docType, id string) string {
	return domain.SchemaKey(index, docType) + "/" + id
}

// DocumentWriter is the part of the service the consumer writes through.
type DocumentWriter interface {
	PutDocument(ctx context.Context, doc domain.Document) (string, error)
	DeleteDocument(ctx context.Context, index, docType, id string) error
}

var _ DocumentWriter = (*service.SearchService)(nil)

// Consumer handles document change events.
type Consumer struct {
	documents DocumentWriter
	logger    *slog.Logger
}

// NewConsumer creates a new event consumer.
func NewConsumer(documents DocumentWriter, logger *slog.Logger) *Consumer {
	return &Consumer{documents: documents, logger: logger}
}

// Handle applies one event. Errors that a retry cannot fix, such as a
// malformed payload or an undeclared type, are marked permanent.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TypeDocumentUpserted:
		return c.handleUpserted(ctx, event)
	case TypeDocumentDeleted:
		return c.handleDeleted(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleUpserted(ctx context.Context, event *pkgkafka.Event) error {
	var data DocumentUpserted
	if err := decode(event, &data); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("unmarshal %s data: %w", event.EventType, err))
	}

	id, err := c.documents.PutDocument(ctx, domain.Document{
		ID:     data.ID,
		Index:  data.Index,
		Type:   data.Type,
		Fields: data.Fields,
	})
	if err != nil {
		return classify(fmt.Errorf("index document from %s event: %w", event.EventType, err))
	}

	c.logger.InfoContext(ctx, "indexed document from event",
		slog.String("event_id", event.EventID),
		slog.String("index", data.Index),
		slog.String("type", data.Type),
		slog.String("id", id),
	)
	return nil
}

func (c *Consumer) handleDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data DocumentDeleted
	if err := decode(event, &data); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("unmarshal %s data: %w", event.EventType, err))
	}

	if err := c.documents.DeleteDocument(ctx, data.Index, data.Type, data.ID); err != nil {
		return classify(fmt.Errorf("delete document from %s event: %w", event.EventType, err))
	}

	c.logger.InfoContext(ctx, "deleted document from event",
		slog.String("event_id", event.EventID),
		slog.String("index", data.Index),
		slog.String("type", data.Type),
		slog.String("id", data.ID),
	)
	return nil
}

// decode keeps numbers as json.Number so integer fields are not rounded
// through float64.
func decode(event *pkgkafka.Event, target any) error {
	if len(event.Data) == 0 {
		return fmt.Errorf("event %s has no data", event.EventID)
	}
	dec := json.NewDecoder(bytes.NewReader(event.Data))
	dec.UseNumber()
	return dec.Decode(target)
}

func classify(err error) error {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrSchemaMissing),
		errors.Is(err, apperrors.ErrDeserialization),
		errors.Is(err, apperrors.ErrBackend):
		return pkgkafka.Permanent(err)
	default:
		return err
	}
}
