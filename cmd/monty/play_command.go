package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"monty/internal/metadata"
	"monty/internal/tracklist"
)

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var start int

	cmd := &cobra.Command{
		Use:   "play [query]",
		Short: "Walk the play queue, fetching each track and printing its local path",
		Long: `Walk the play queue built from the catalog (or from a search query),
making sure each track is in the local cache and printing its path.
Tracks that cannot be retrieved are reported and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			log := ctx.logger()

			cache, err := ctx.openCache(runCtx)
			if err != nil {
				return err
			}
			store, err := ctx.openCatalog(runCtx, cache)
			if err != nil {
				return err
			}

			var tracks []metadata.TrackRecord
			if len(args) > 0 {
				tracks, err = store.Search(runCtx, strings.Join(args, " "))
			} else {
				tracks, err = store.ListTracks(runCtx)
			}
			if err != nil {
				return err
			}

			cursor, err := tracklist.New(tracks, start, cache)
			if err != nil {
				return err
			}
			cursor.OnFetched(func(rec metadata.TrackRecord, local string) {
				if err := store.UpdateLocalPath(runCtx, rec.RecordingID, local); err != nil {
					log.Warn("Could not record cache path for %s: %v", rec.RecordingID, err)
				}
			})

			out := cmd.OutOrStdout()
			var failed int
			for i := start; i < cursor.Len(); i++ {
				local, err := cursor.SkipTo(runCtx, i)
				var fetchErr *tracklist.FetchError
				switch {
				case errors.As(err, &fetchErr):
					log.Warn("%v", err)
					failed++
					continue
				case err != nil:
					return err
				}
				rec := cursor.Records()[i]
				fmt.Fprintf(out, "▶ %d/%d  %s - %s\n   %s\n", i+1, cursor.Len(), rec.Artist, rec.Title, local)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d tracks could not be retrieved", failed, cursor.Len()-start)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&start, "start", 0, "Queue position to start from (0-based)")
	return cmd
}
