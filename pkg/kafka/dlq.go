package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// DLQTopicPrefix prefixes dead-letter topics.
const DLQTopicPrefix = TopicPrefix + ".dlq"

// DLQTopic returns the dead-letter topic of a source topic.
func DLQTopic(topic string) string {
	return DLQTopicPrefix + "." + topic
}

// DLQProducer copies messages that could not be handled to a dead-letter
// topic, with headers describing where they came from and why they failed.
type DLQProducer struct {
	writer Writer
	logger *slog.Logger
}

// NewDLQProducer creates a dead-letter producer writing to brokers.
func NewDLQProducer(brokers []string, logger *slog.Logger) *DLQProducer {
	return &DLQProducer{writer: newWriter(DefaultProducerConfig(brokers)), logger: logger}
}

// Publish writes msg to its dead-letter topic.
func (d *DLQProducer) Publish(ctx context.Context, msg kafka.Message, cause error, group string) error {
	topic := DLQTopic(msg.Topic)

	headers := make([]kafka.Header, 0, len(msg.Headers)+5)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq.original_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "dlq.original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "dlq.original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "dlq.consumer_group", Value: []byte(group)},
	)
	if cause != nil {
		headers = append(headers, kafka.Header{Key: "dlq.error", Value: []byte(cause.Error())})
	}

	err := d.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("publish to DLQ %s: %w", topic, err)
	}

	d.logger.WarnContext(ctx, "message sent to DLQ",
		slog.String("dlq_topic", topic),
		slog.String("original_topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("consumer_group", group),
	)
	return nil
}

// Close closes the producer.
func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
