package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/utafrali/docsearch/internal/client"
	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/query"
)

type searchOptions struct {
	index     string
	docType   string
	queryJSON string
	fields    []string
	highlight []string
	offset    int
	limit     int
	refresh   bool
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	so := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search [TEXT...]",
		Short: "Run one search and print the result as JSON",
		Long: `Runs a query against an index. --query takes the JSON query form, e.g.
{"and":[{"term":{"field":"id","value":7}},{"full_text":{"text":"go"}}]}.
Without it, TEXT is matched as free text against --fields, and with neither
every document matches.`,
		Example: `  docsearch search --index blog --type article --fields title,content --highlight title go channels
  docsearch search --index blog --query '{"ids":["1","2"]}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := so.request(args)
			if err != nil {
				return err
			}

			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			if so.refresh {
				if err := b.RefreshIndex(cmd.Context(), req.Index); err != nil {
					return err
				}
			}
			res, err := b.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&so.index, "index", "", "index to search")
	f.StringVar(&so.docType, "type", "", "restrict hits to one document type")
	f.StringVarP(&so.queryJSON, "query", "q", "", "query in JSON form")
	f.StringSliceVar(&so.fields, "fields", nil, "fields matched by free TEXT (default: all)")
	f.StringSliceVar(&so.highlight, "highlight", nil, "fields to return highlight fragments for")
	f.IntVar(&so.offset, "offset", 0, "hits to skip")
	f.IntVarP(&so.limit, "limit", "n", 0, "hits to return (default: configured page size)")
	f.BoolVar(&so.refresh, "refresh", false, "refresh the index first so recent writes are searchable")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

// request builds the search request. The query is checked here so a bad
// --query fails before anything is opened.
func (o *searchOptions) request(args []string) (client.SearchRequest, error) {
	req := client.SearchRequest{
		Index:  o.index,
		Type:   o.docType,
		Offset: o.offset,
		Limit:  o.limit,
	}
	if len(o.highlight) > 0 {
		req.Highlight = &domain.Highlight{Fields: o.highlight}
	}

	switch {
	case o.queryJSON != "" && len(args) > 0:
		return client.SearchRequest{}, fmt.Errorf("pass either --query or free text, not both")
	case o.queryJSON != "":
		req.Query = json.RawMessage(o.queryJSON)
	case len(args) > 0:
		ft := map[string]any{"text": strings.Join(args, " ")}
		if len(o.fields) > 0 {
			ft["fields"] = o.fields
		}
		raw, err := json.Marshal(map[string]any{"full_text": ft})
		if err != nil {
			return client.SearchRequest{}, err
		}
		req.Query = raw
	default:
		return req, nil
	}

	if _, err := query.Decode(req.Query); err != nil {
		return client.SearchRequest{}, fmt.Errorf("invalid query: %w", err)
	}
	return req, nil
}
