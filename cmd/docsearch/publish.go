package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/utafrali/docsearch/internal/event"
	pkgkafka "github.com/utafrali/docsearch/pkg/kafka"
)

const eventSource = "docsearch-cli"

type publishOptions struct {
	index   string
	docType string
	id      string
}

func newPublishCmd(opts *rootOptions) *cobra.Command {
	po := &publishOptions{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish document change events to Kafka",
		Long:  "Publishes events that the serve command's consumers apply to the index.\nRequires DOCSEARCH_KAFKA_BROKERS.",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&po.index, "index", "", "document index")
	pf.StringVar(&po.docType, "type", "", "document type")
	pf.StringVar(&po.id, "id", "", "document id")
	_ = cmd.MarkPersistentFlagRequired("index")
	_ = cmd.MarkPersistentFlagRequired("type")

	cmd.AddCommand(newPublishUpsertCmd(opts, po), newPublishDeleteCmd(opts, po))
	return cmd
}

func newPublishUpsertCmd(opts *rootOptions, po *publishOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "upsert -f fields.json",
		Short: "Publish a document.upserted event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields, err := readFields(cmd, file)
			if err != nil {
				return err
			}
			data := event.DocumentUpserted{Index: po.index, Type: po.docType, ID: po.id, Fields: fields}
			return publish(cmd, opts, event.TopicDocumentUpserted, event.TypeDocumentUpserted, event.Key(po.index, po.docType, po.id), data)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `JSON object of document fields, "-" for stdin`)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newPublishDeleteCmd(opts *rootOptions, po *publishOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Publish a document.deleted event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if po.id == "" {
				return errors.New("--id is required")
			}
			data := event.DocumentDeleted{Index: po.index, Type: po.docType, ID: po.id}
			return publish(cmd, opts, event.TopicDocumentDeleted, event.TypeDocumentDeleted, event.Key(po.index, po.docType, po.id), data)
		},
	}
}

func readFields(cmd *cobra.Command, path string) (map[string]any, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open fields file: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("parse fields file: %w", err)
	}
	return fields, nil
}

func publish(cmd *cobra.Command, opts *rootOptions, topic, eventType, key string, data any) error {
	cfg, log, err := opts.load(cmd)
	if err != nil {
		return err
	}
	if !cfg.KafkaEnabled() {
		return errors.New("DOCSEARCH_KAFKA_BROKERS is not set")
	}

	evt, err := pkgkafka.NewEvent(eventType, key, eventSource, data)
	if err != nil {
		return err
	}
	evt.WithCorrelationID(uuid.NewString())

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), log)
	defer func() { _ = producer.Close() }()

	if err := producer.Publish(cmd.Context(), topic, evt); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %s %s to %s\n", eventType, evt.EventID, topic)
	return nil
}
