package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the local catalog ordered by artist, album and track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(cmd.Context())
			if err != nil {
				return err
			}
			store, err := ctx.openCatalog(cmd.Context(), cache)
			if err != nil {
				return err
			}

			tracks, err := store.ListTracks(cmd.Context())
			if err != nil {
				return err
			}
			if len(tracks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty. Run `monty ingest <dir>` or `monty sync`.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTracks(tracks, false))
			return nil
		},
	}
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the local catalog",
		Long: `Search the local catalog. Terms are separated by commas.
A term prefixed with @ matches the artist, # the album and $ the title;
a bare term matches any of them.

  monty search '@radiohead, #kid a'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(cmd.Context())
			if err != nil {
				return err
			}
			store, err := ctx.openCatalog(cmd.Context(), cache)
			if err != nil {
				return err
			}

			tracks, err := store.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(tracks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching tracks.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTracks(tracks, false))
			return nil
		},
	}
}
