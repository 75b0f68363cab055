package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/sgcache/internal/mirror"
	"github.com/alfredjeanlab/sgcache/internal/schema"
	"github.com/alfredjeanlab/sgcache/internal/ui"
)

var mirrorCmd = &cobra.Command{
	Use:     "mirror",
	GroupID: "data",
	Short:   "Manage relational mirrors",
}

var mirrorInitCmd = &cobra.Command{
	Use:   "init [url]",
	Short: "Create a relational mirror from a source",
	Long: `Create one table per type and copy every record of the source into it.

The url defaults to cache.sql_url and may be sqlite:///path/to.db or a
postgres:// URL. The target must not hold a mirror yet.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		url := cfg.Cache.SQLURL
		if len(args) == 1 {
			url = args[0]
		}
		if url == "" {
			return fmt.Errorf("no database url given and cache.sql_url is unset")
		}
		from, _ := cmd.Flags().GetString("source")
		types, _ := cmd.Flags().GetStringSlice("type")

		src, err := openSource(ctx, from)
		if err != nil {
			return err
		}
		defer src.Close()
		if _, err := selectTypes(src.types, types); err != nil {
			return err
		}

		factory := schema.NewFilteredFactory(src.factory, types, nil)
		m, err := mirror.InitDatabase(ctx, url, factory, src.fetch,
			mirror.WithLogger(logger), mirror.WithPublisher(publisher))
		if err != nil {
			return err
		}
		defer m.Close()
		fmt.Fprintln(cmd.OutOrStdout(), ui.Status(true, ui.RenderPath(m.URL()), fmt.Sprintf("%d types", len(m.TypeNames()))))
		return nil
	},
}

var mirrorInfoCmd = &cobra.Command{
	Use:   "info [url]",
	Short: "List the types held by a mirror",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := cfg.Cache.SQLURL
		if len(args) == 1 {
			url = args[0]
		}
		m, err := mirror.Open(cmd.Context(), url, mirror.WithLogger(logger))
		if err != nil {
			return err
		}
		defer m.Close()

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, ui.RenderPath(m.URL()))
		for _, t := range m.TypeNames() {
			fields, err := m.FieldsByTypename(t)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  %-32s %s\n", t, ui.RenderMuted(fmt.Sprintf("%d fields", len(fields))))
		}
		return nil
	},
}

func init() {
	mirrorInitCmd.Flags().StringP("source", "s", "", "copy from a sample or database URL instead of the remote store")
	mirrorInitCmd.Flags().StringSlice("type", nil, "only mirror these types (repeatable)")

	mirrorCmd.AddCommand(mirrorInitCmd)
	mirrorCmd.AddCommand(mirrorInfoCmd)
}
