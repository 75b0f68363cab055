package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/sgcache/internal/schema"
	"github.com/alfredjeanlab/sgcache/internal/ui"
)

var schemaCmd = &cobra.Command{
	Use:     "schema",
	GroupID: "schema",
	Short:   "Manage schema trees",
}

var schemaUpdateCmd = &cobra.Command{
	Use:   "update [tree]",
	Short: "Write one schema file per type into a tree",
	Long: `Read the schema of a source and write one compressed file per type.

The tree defaults to cache.schema_tree. Without --source the live remote
store is read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tree := cfg.Cache.SchemaTree
		if len(args) == 1 {
			tree = args[0]
		}
		if tree == "" {
			return fmt.Errorf("no schema tree given and cache.schema_tree is unset")
		}
		from, _ := cmd.Flags().GetString("source")
		types, _ := cmd.Flags().GetStringSlice("type")

		reader, done, err := schemaSource(ctx, from)
		if err != nil {
			return err
		}
		defer done()

		f := schema.NewTreeFactory(tree, schema.WithLogger(logger), schema.WithPublisher(publisher))
		if err := schema.NewFilteredFactory(f, types, nil).UpdateSchema(ctx, reader); err != nil {
			return err
		}
		written, err := f.TypeNames()
		if err != nil {
			return err
		}
		if _, err := selectTypes(written, types); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Status(true, ui.RenderPath(tree), fmt.Sprintf("%d types", len(written))))
		return nil
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show <type>",
	Short: "Print the field schema of a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		from, _ := cmd.Flags().GetString("source")
		src, err := openSource(ctx, from)
		if err != nil {
			return err
		}
		defer src.Close()

		s, err := src.factory.SchemaByName(ctx, args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, name := range s.FieldNames() {
			f := s[name]
			fmt.Fprintf(w, "%-32s %s\n", name, ui.RenderMuted(f.DataType))
		}
		return nil
	},
}

func init() {
	schemaUpdateCmd.Flags().StringP("source", "s", "", "read from a sample or database URL instead of the remote store")
	schemaUpdateCmd.Flags().StringSlice("type", nil, "only write these types (repeatable)")
	schemaShowCmd.Flags().StringP("source", "s", "", "read from a sample or database URL instead of the remote store")

	schemaCmd.AddCommand(schemaUpdateCmd)
	schemaCmd.AddCommand(schemaShowCmd)
}
