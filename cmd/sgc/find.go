package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/sgcache/internal/entity"
	"github.com/alfredjeanlab/sgcache/internal/stream"
)

var findCmd = &cobra.Command{
	Use:     "find <type> [filters]",
	GroupID: "data",
	Short:   "Query records of a type",
	Long: `Query records through a connection and print them as JSON.

Filters use the remote store's notation, either a list of conditions:

  sgc find Shot '[["code", "is", "sh010"], ["id", "in", [1, 2]]]'

or an object with logical_operator and conditions. Samples are queried
through their SQLite mirror, which is built on first use.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		typeName := args[0]
		filters, err := parseFilterArg(args[1:])
		if err != nil {
			return err
		}
		from, _ := cmd.Flags().GetString("source")
		fields, _ := cmd.Flags().GetStringSlice("fields")
		limit, _ := cmd.Flags().GetInt("limit")
		one, _ := cmd.Flags().GetBool("one")

		src, err := openSource(ctx, from)
		if err != nil {
			return err
		}
		defer src.Close()
		if len(fields) == 0 {
			s, err := src.factory.SchemaByName(ctx, typeName)
			if err != nil {
				return err
			}
			fields = s.FieldNames()
		}

		c, err := src.connect(ctx)
		if err != nil {
			return err
		}
		var records []entity.Record
		if one {
			rec, err := c.FindOne(ctx, typeName, filters, fields)
			if err != nil {
				return err
			}
			if rec != nil {
				records = append(records, rec)
			}
		} else if records, err = c.Find(ctx, typeName, filters, fields, limit); err != nil {
			return err
		}

		found := func(context.Context, string) ([]entity.Record, error) { return records, nil }
		_, err = stream.TypeStreamer{Fetcher: found, TypeNames: []string{typeName}}.Stream(ctx, cmd.OutOrStdout())
		return err
	},
}

// parseFilterArg decodes the optional JSON filter argument. No argument
// matches every record.
func parseFilterArg(args []string) (entity.Filters, error) {
	var v entity.Value
	if len(args) > 0 && args[0] != "" {
		if err := json.Unmarshal([]byte(args[0]), &v); err != nil {
			return entity.Filters{}, fmt.Errorf("parse filters: %w", err)
		}
	}
	return entity.ParseFilters(v)
}

func init() {
	findCmd.Flags().StringP("source", "s", "", "query a sample or database URL instead of the remote store")
	findCmd.Flags().StringSlice("fields", nil, "fields to return (default: every schema field)")
	findCmd.Flags().IntP("limit", "n", 0, "return at most this many records (0 = no limit)")
	findCmd.Flags().Bool("one", false, "return only the first match")
}
