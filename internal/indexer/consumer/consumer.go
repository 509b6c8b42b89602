// Package consumer applies document change events read from Kafka to the
// index registry. Events that can never succeed (bad JSON, unknown index,
// invalid document) are logged and acknowledged so they do not wedge the
// partition.
package consumer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/metrics"
)

type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// DocumentEvent is the message published on the document events topic. An
// upsert carries the full document; a delete carries only its id.
type DocumentEvent struct {
	Op       Op                       `json:"op"`
	Index    string                   `json:"index"`
	Document *document.SearchDocument `json:"document,omitempty"`
	ID       string                   `json:"id,omitempty"`
}

// Store is the part of the registry the consumer writes to.
type Store interface {
	Has(name string) bool
	UpdateDocument(name string, doc document.SearchDocument) error
	RemoveDocument(name, id string) bool
}

const (
	statusApplied  = "applied"
	statusNoop     = "noop"
	statusSkipped  = "skipped"
	statusRejected = "rejected"
)

// IndexConsumer wraps a Kafka consumer to drive document updates.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a MessageHandler applying each DocumentEvent to
// store. m may be nil.
func HandleMessage(store Store, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	count := func(op Op, status string) {
		if m != nil {
			m.DocumentEventsTotal.WithLabelValues(string(op), status).Inc()
		}
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event", "error", err, "key", string(key))
			count("unknown", statusRejected)
			return nil
		}
		if !store.Has(event.Index) {
			logger.Warn("document event for unknown index", "index", event.Index, "op", event.Op)
			count(event.Op, statusSkipped)
			return nil
		}

		switch event.Op {
		case OpUpsert:
			if event.Document == nil {
				logger.Error("upsert event without document", "index", event.Index)
				count(event.Op, statusRejected)
				return nil
			}
			if err := store.UpdateDocument(event.Index, *event.Document); err != nil {
				logger.Error("rejected document", "index", event.Index, "doc_id", event.Document.ID, "error", err)
				count(event.Op, statusRejected)
				return nil
			}
			logger.Debug("document upserted", "index", event.Index, "doc_id", event.Document.ID)
			count(event.Op, statusApplied)
		case OpDelete:
			id := event.ID
			if id == "" && event.Document != nil {
				id = event.Document.ID
			}
			if strings.TrimSpace(id) == "" {
				logger.Error("delete event without id", "index", event.Index)
				count(event.Op, statusRejected)
				return nil
			}
			if store.RemoveDocument(event.Index, id) {
				logger.Debug("document removed", "index", event.Index, "doc_id", id)
				count(event.Op, statusApplied)
			} else {
				count(event.Op, statusNoop)
			}
		default:
			logger.Error("unknown document event op", "op", event.Op, "index", event.Index)
			count(event.Op, statusRejected)
		}
		return nil
	}
}
