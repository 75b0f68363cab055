package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/sgcache/internal/config"
	"github.com/alfredjeanlab/sgcache/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Show and write the sgc configuration",
	GroupID: "system",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if cfg.Path != "" {
			fmt.Fprintln(w, ui.RenderMuted("# "+cfg.Path))
		}
		return toml.NewEncoder(w).Encode(masked(*cfg))
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the remote connection settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := cfg.Connection.Validate()
		fmt.Fprintln(cmd.OutOrStdout(), ui.Status(err == nil, "connection", cfg.Connection.Host))
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return fmt.Errorf("no config path: pass --config or set SGCACHE_CONFIG")
		}
		if err := config.Save(configPath, cfg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Status(true, ui.RenderPath(configPath), "written"))
		return nil
	},
}

// masked returns c with the API key hidden except for its last four
// characters.
func masked(c config.Config) config.Config {
	key := c.Connection.APIKey
	if n := len(key); n > 4 {
		c.Connection.APIKey = strings.Repeat("*", n-4) + key[n-4:]
	} else if n > 0 {
		c.Connection.APIKey = strings.Repeat("*", n)
	}
	return c
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configInitCmd)
}
