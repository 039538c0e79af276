package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"monty/internal/ingest"
	"monty/internal/progress"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var (
		dryRun   bool
		parallel int
		writeIDs bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Identify, upload and publish every audio file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dry-run") {
				cfg.DryRun = dryRun
			}
			if cmd.Flags().Changed("parallel") {
				cfg.ParallelJobs = parallel
			}
			if cmd.Flags().Changed("write-ids") {
				cfg.WriteIdentifiers = writeIDs
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			log := ctx.logger()
			runCtx := cmd.Context()

			cache, err := ctx.openCache(runCtx)
			if err != nil {
				return err
			}
			extractor, err := ctx.newExtractor()
			if err != nil {
				return err
			}

			p := ingest.New(extractor, ctx.newResolver(), cache, log.With("ingest"), ingest.Options{
				ParallelJobs:     cfg.ParallelJobs,
				DryRun:           cfg.DryRun,
				WriteIdentifiers: cfg.WriteIdentifiers,
			})

			var bar *progress.Bar
			p.Hooks = ingest.Hooks{
				OnFilesFound: func(total int) {
					if !cfg.Verbose && !cfg.DryRun && isTerminal(os.Stdout) {
						bar = progress.New(os.Stdout, "Ingesting", total)
						log.SetProgressBar(true)
					}
				},
				OnProgress: func() {
					if bar != nil {
						bar.Increment()
					}
				},
			}

			report, err := p.Run(runCtx, args[0])
			if bar != nil {
				bar.Finish()
				log.SetProgressBar(false)
			}

			out := cmd.OutOrStdout()
			if len(report.Records) > 0 && (cfg.DryRun || cfg.Verbose) {
				fmt.Fprintln(out, renderTracks(report.Records, true))
			}
			if len(report.Failures) > 0 {
				rows := make([][]string, len(report.Failures))
				for i, f := range report.Failures {
					rows[i] = []string{f.Path, f.Err.Error()}
				}
				fmt.Fprintln(out, renderTable([]string{"File", "Error"}, rows, nil))
			}
			if err != nil {
				return err
			}

			if report.Published {
				store, err := ctx.openCatalog(runCtx, cache)
				if err != nil {
					return err
				}
				if err := store.Upsert(runCtx, report.Records...); err != nil {
					return fmt.Errorf("failed to update local catalog: %w", err)
				}
			}

			fmt.Fprintf(out, "%d files: %d ingested, %d failed, %d skipped\n",
				report.Files, len(report.Records), len(report.Failures), report.Unsupported)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Resolve identifiers without uploading or publishing")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "Number of files resolved and uploaded concurrently (1-16)")
	cmd.Flags().BoolVar(&writeIDs, "write-ids", false, "Write the resolved identifiers back into each file's tags")
	return cmd
}

func newIdentifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "identify <file>",
		Short: "Show the tags and resolved identifiers of one audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extractor, err := ctx.newExtractor()
			if err != nil {
				return err
			}

			rec, err := extractor.Extract(args[0])
			if err != nil {
				return err
			}
			resolved, err := ctx.newResolver().ResolveTrack(cmd.Context(), rec)
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Artist", resolved.Artist},
				{"Album", resolved.Album},
				{"Title", resolved.Title},
				{"Track", strconv.FormatUint(uint64(resolved.TrackNumber), 10)},
				{"Format", resolved.Format.String()},
				{"Artist ID", resolved.ArtistID},
				{"Release ID", resolved.ReleaseID},
				{"Recording ID", resolved.RecordingID},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}
