package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumerMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsearch_kafka_consumer_messages_received_total",
			Help: "Total number of Kafka messages fetched from the broker",
		},
		[]string{"topic", "consumer_group"},
	)

	consumerMessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsearch_kafka_consumer_messages_processed_total",
			Help: "Total number of Kafka messages handled successfully",
		},
		[]string{"topic", "consumer_group"},
	)

	consumerMessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsearch_kafka_consumer_messages_failed_total",
			Help: "Total number of Kafka messages that could not be handled",
		},
		[]string{"topic", "consumer_group"},
	)

	consumerMessagesDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsearch_kafka_consumer_messages_duplicate_total",
			Help: "Total number of redelivered Kafka messages skipped",
		},
		[]string{"topic", "consumer_group"},
	)

	consumerDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsearch_kafka_consumer_dead_lettered_total",
			Help: "Total number of Kafka messages sent to the dead-letter topic",
		},
		[]string{"topic", "consumer_group"},
	)

	consumerProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsearch_kafka_consumer_processing_duration_seconds",
			Help:    "Duration of Kafka message handling in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic", "consumer_group"},
	)

	producerMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsearch_kafka_producer_messages_published_total",
			Help: "Total number of Kafka messages published",
		},
		[]string{"topic"},
	)

	producerPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsearch_kafka_producer_publish_errors_total",
			Help: "Total number of Kafka publish failures",
		},
		[]string{"topic"},
	)
)
