package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/config"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// messageWriter is the part of *kafkago.Writer the notifier needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Notifier announces published assets on a Kafka topic.
type Notifier struct {
	writer messageWriter
	logger *slog.Logger
}

// NewNotifier creates a producer for the configured topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes one message for the asset. Broker failures are transient.
func (n *Notifier) Notify(ctx context.Context, asset domain.PublishedAsset) error {
	msg, err := serializeToMessage(asset)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return domain.Transient(fmt.Errorf("notify %s: %w", asset.ObjectName, err))
	}
	n.logger.Debug("asset notification sent", "object", asset.ObjectName)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a PublishedAsset into a Kafka message keyed by
// its unit so notifications for one AOI stay ordered.
func serializeToMessage(asset domain.PublishedAsset) (kafkago.Message, error) {
	data, err := json.Marshal(asset)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize published asset: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(asset.Unit.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(asset.EventID)},
			{Key: "published_at", Value: []byte(asset.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
