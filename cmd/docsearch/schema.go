package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/utafrali/docsearch/internal/domain"
)

// schemaFile is the layout of the files read by "schema apply".
type schemaFile struct {
	Schemas []domain.TypeSchema `yaml:"schemas"`
}

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Declare and inspect document types",
	}
	cmd.AddCommand(newSchemaApplyCmd(opts), newSchemaDescribeCmd(opts), newSchemaDropCmd(opts))
	return cmd
}

func newSchemaApplyCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply -f schema.yaml",
		Short: "Declare every type listed in a YAML file",
		Long: `Declares each schema listed under "schemas:" in order. Declaring a
schema that matches the cluster is a no-op; a conflicting one fails and
stops the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schemas, err := readSchemaFile(cmd, file)
			if err != nil {
				return err
			}

			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			for _, ts := range schemas {
				if err := b.DeclareSchema(cmd.Context(), ts); err != nil {
					return fmt.Errorf("%s: %w", ts.Key(), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "declared %s (%d fields)\n", ts.Key(), len(ts.Fields))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `schema file, "-" for stdin`)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readSchemaFile(cmd *cobra.Command, path string) ([]domain.TypeSchema, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}

	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	if len(f.Schemas) == 0 {
		return nil, errors.New("schema file lists no schemas")
	}
	return f.Schemas, nil
}

func newSchemaDescribeCmd(opts *rootOptions) *cobra.Command {
	var mapping bool

	cmd := &cobra.Command{
		Use:   "describe INDEX TYPE",
		Short: "Print the schema the cluster holds for a type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			if mapping {
				desc, err := b.DescribeMapping(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, desc)
			}

			ts, err := b.DescribeSchema(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, ts)
		},
	}
	cmd.Flags().BoolVar(&mapping, "mapping", false, "print the typed mapping descriptor instead of the field list")
	return cmd
}

func newSchemaDropCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop INDEX",
		Short: "Delete an index with its documents and declared types",
		Long: `Deletes the index and everything in it. Types declared on it are gone
and may be declared again with another shape. Dropping an absent index
succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			if err := b.DropIndex(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", args[0])
			return nil
		},
	}
}
