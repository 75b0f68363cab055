package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/sgcache/internal/config"
	"github.com/alfredjeanlab/sgcache/internal/events"
	"github.com/alfredjeanlab/sgcache/internal/ui"
)

const flushTimeout = 5 * time.Second

var (
	configPath string
	verbose    bool
	noColor    bool

	cfg       *config.Config
	logger    *slog.Logger
	publisher events.Publisher = &events.NoopPublisher{}
)

var rootCmd = &cobra.Command{
	Use:           "sgc <command>",
	Short:         "Cache, mirror and snapshot a production-tracking store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; only malformed ones are reported.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		ui.SetColor(!noColor && ui.ShouldUseColor(os.Stdout))

		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}

		if cfg.Events.NATSURL != "" {
			p, err := events.NewNATSPublisher(cfg.Events.NATSURL)
			if err != nil {
				logger.Warn("events disabled", "nats_url", cfg.Events.NATSURL, "err", err)
			} else {
				publisher = p
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if p, ok := publisher.(*events.NATSPublisher); ok {
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()
			if err := p.Flush(ctx); err != nil {
				logger.Warn("flush events", "err", err)
			}
		}
		publisher.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file (TOML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug messages")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "schema", Title: "Schema:"},
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Schema
	rootCmd.AddCommand(schemaCmd)

	// Data
	rootCmd.AddCommand(mirrorCmd)
	rootCmd.AddCommand(datasetCmd)
	rootCmd.AddCommand(findCmd)

	// System
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error:"), err)
		os.Exit(1)
	}
}
