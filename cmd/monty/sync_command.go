package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"monty/internal/index"
	"monty/internal/objcache"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var push bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Rebuild the local catalog from the remote index",
		Long: `Rebuild the local catalog from the remote index.

With --push the local catalog is merged into the remote index instead.
Entries in the local catalog replace remote entries with the same
recording ID.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			cache, err := ctx.openCache(runCtx)
			if err != nil {
				return err
			}
			if !cache.Available() {
				return fmt.Errorf("cannot sync: %w", objcache.ErrStorageUnavailable)
			}
			store, err := ctx.openCatalog(runCtx, cache)
			if err != nil {
				return err
			}

			if push {
				local, err := store.Index(runCtx)
				if err != nil {
					return err
				}
				remote, err := cache.FetchIndex(runCtx)
				if err != nil {
					return err
				}
				merged := index.Merge(remote, local)
				if err := cache.PublishIndex(runCtx, merged); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Published %d tracks\n", len(merged))
				return nil
			}

			n, err := store.Bootstrap(runCtx, cache)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog now holds %d tracks\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&push, "push", false, "Merge the local catalog into the remote index")
	return cmd
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <recording-id>...",
		Short: "Download tracks into the local cache and print their paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			cache, err := ctx.openCache(runCtx)
			if err != nil {
				return err
			}
			store, err := ctx.openCatalog(runCtx, cache)
			if err != nil {
				return err
			}

			for _, id := range args {
				rec, err := store.Get(runCtx, id)
				if err != nil {
					return err
				}
				local, err := cache.FetchRecord(runCtx, rec)
				if err != nil {
					return fmt.Errorf("could not retrieve %s: %w", id, err)
				}
				if err := store.UpdateLocalPath(runCtx, id, local); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), local)
			}
			return nil
		},
	}
}
