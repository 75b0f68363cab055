package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/sgcache/internal/dataset"
	"github.com/alfredjeanlab/sgcache/internal/entity"
	"github.com/alfredjeanlab/sgcache/internal/schema"
	"github.com/alfredjeanlab/sgcache/internal/scramble"
	"github.com/alfredjeanlab/sgcache/internal/stream"
	samplesync "github.com/alfredjeanlab/sgcache/internal/sync"
	"github.com/alfredjeanlab/sgcache/internal/ui"
)

var datasetCmd = &cobra.Command{
	Use:     "dataset",
	GroupID: "data",
	Short:   "Build, stream and share dataset samples",
}

func openDataset(name string) *dataset.Dataset {
	return dataset.New(cfg.Cache.SamplesRoot, name,
		dataset.WithLogger(logger), dataset.WithPublisher(publisher))
}

var datasetBuildCmd = &cobra.Command{
	Use:   "build <name>",
	Short: "Snapshot a source into a new sample",
	Long: `Fetch every record of the selected types and write them, with their
schemas, into a new sample under cache.samples_root.

String values are scrambled unless --no-scrambling is given. Dates,
numbers, fields whose name ends in "type" and whitelisted strings are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		from, _ := cmd.Flags().GetString("source")
		wantTypes, _ := cmd.Flags().GetStringSlice("type")
		noScrambling, _ := cmd.Flags().GetBool("no-scrambling")
		whitelist, _ := cmd.Flags().GetStringSlice("whitelist")

		src, err := openSource(ctx, from)
		if err != nil {
			return err
		}
		defer src.Close()
		types, err := selectTypes(src.types, wantTypes)
		if err != nil {
			return err
		}

		fetch := src.fetch
		if !noScrambling {
			fetch = scramble.New(whitelist...).Fetcher(fetch)
		}
		d, err := dataset.Build(ctx, cfg.Cache.SamplesRoot, args[0], types, fetch,
			dataset.WithLogger(logger), dataset.WithPublisher(publisher))
		if err != nil {
			return err
		}
		if err := schema.NewFilteredFactory(d.TypeFactory(), types, nil).UpdateSchema(ctx, src.schemas); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Status(true, ui.RenderPath(d.Dir()), fmt.Sprintf("%d types", len(types))))
		return nil
	},
}

var datasetStreamCmd = &cobra.Command{
	Use:   "stream [source]",
	Short: "Write every record of a source to stdout as JSON",
	Long: `Write each record as an indented JSON document, one after the other.
Types are streamed in name order. Without a source the remote store is read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		from := ""
		if len(args) == 1 {
			from = args[0]
		}
		wantTypes, _ := cmd.Flags().GetStringSlice("type")

		src, err := openSource(ctx, from)
		if err != nil {
			return err
		}
		defer src.Close()
		types, err := selectTypes(src.types, wantTypes)
		if err != nil {
			return err
		}

		n, err := stream.TypeStreamer{Fetcher: src.fetch, TypeNames: types}.Stream(ctx, cmd.OutOrStdout())
		logger.Debug("streamed records", "source", src.name, "records", n)
		return err
	},
}

var datasetMirrorCmd = &cobra.Command{
	Use:   "mirror <name>",
	Short: "Build or locate the SQLite mirror of a sample",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d := openDataset(args[0])
		rebuild, _ := cmd.Flags().GetBool("rebuild")

		var (
			sm  *dataset.SampleMirror
			err error
		)
		if rebuild {
			sm, err = d.RebuildMirror(ctx)
		} else {
			sm, err = d.Mirror(ctx)
		}
		if err != nil {
			return err
		}
		defer sm.Close()
		fmt.Fprintln(cmd.OutOrStdout(), ui.Status(true, ui.RenderPath(d.MirrorPath()), fmt.Sprintf("%d types", len(sm.Mirror().TypeNames()))))
		return nil
	},
}

var datasetPushCmd = &cobra.Command{
	Use:   "push <name>",
	Short: "Copy a sample to S3 and/or a git repository",
	Long: `Copy the files of a sample, plus a manifest.jsonl, to every destination.

--s3 uses the [sync] settings of the config file. --git-repo commits the files
under --git-dir and pushes --branch. With --every the push repeats until
interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d := openDataset(args[0])
		if !d.Exists() {
			return fmt.Errorf("dataset %s: %w", d.Dir(), entity.ErrNotFound)
		}

		toS3, _ := cmd.Flags().GetBool("s3")
		gitRepo, _ := cmd.Flags().GetString("git-repo")
		gitDir, _ := cmd.Flags().GetString("git-dir")
		branch, _ := cmd.Flags().GetString("branch")
		every, _ := cmd.Flags().GetDuration("every")

		var dests []samplesync.Destination
		if toS3 {
			s := cfg.Sync
			dest, err := samplesync.NewS3Destination(ctx, s.S3Bucket, s.S3Prefix, s.S3Region, s.S3Endpoint)
			if err != nil {
				return err
			}
			dests = append(dests, dest)
		}
		if gitRepo != "" {
			dests = append(dests, samplesync.NewGitDestination(gitRepo, gitDir, branch))
		}
		if len(dests) == 0 {
			return fmt.Errorf("no destination: pass --s3 and/or --git-repo")
		}

		if every <= 0 {
			if err := samplesync.Push(ctx, d, dests, logger); err != nil {
				return err
			}
			for _, dest := range dests {
				fmt.Fprintln(cmd.OutOrStdout(), ui.Status(true, d.Name(), dest.String()))
			}
			return nil
		}

		s := samplesync.NewScheduler(d, dests, every, logger)
		s.Start(ctx)
		logger.Info("pushing periodically", "sample", d.Name(), "every", every)
		<-ctx.Done()
		s.Stop()
		return nil
	},
}

func init() {
	datasetBuildCmd.Flags().StringP("source", "s", "", "snapshot a sample or database URL instead of the remote store")
	datasetBuildCmd.Flags().StringSlice("type", nil, "only include these types (repeatable)")
	datasetBuildCmd.Flags().Bool("no-scrambling", false, "store string values as they are")
	datasetBuildCmd.Flags().StringSlice("whitelist", nil, "strings to keep unscrambled (repeatable)")

	datasetStreamCmd.Flags().StringSlice("type", nil, "only stream these types (repeatable)")

	datasetMirrorCmd.Flags().Bool("rebuild", false, "recreate the mirror from the sample files")

	datasetPushCmd.Flags().Bool("s3", false, "push to the configured S3 bucket")
	datasetPushCmd.Flags().String("git-repo", "", "push to this git working copy")
	datasetPushCmd.Flags().String("git-dir", "samples", "directory inside the git repository")
	datasetPushCmd.Flags().String("branch", "main", "git branch to push")
	datasetPushCmd.Flags().Duration("every", 0, "repeat the push at this interval")

	datasetCmd.AddCommand(datasetBuildCmd)
	datasetCmd.AddCommand(datasetStreamCmd)
	datasetCmd.AddCommand(datasetMirrorCmd)
	datasetCmd.AddCommand(datasetPushCmd)
}
