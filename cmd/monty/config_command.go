package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"monty/internal/config"
)

func newInitConfigCommand() *cobra.Command {
	var (
		path   string
		format string
	)

	cmd := &cobra.Command{
		Use:         "init-config",
		Short:       "Create a config file with default values",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.GetDefaultConfigPath()
				if format == "toml" {
					path = filepath.Join(filepath.Dir(path), "config.toml")
				}
			}

			out := cmd.OutOrStdout()
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(out, "Config file already exists at: %s\n", path)
				fmt.Fprintln(out, "Delete it first if you want to recreate it.")
				return nil
			}

			if err := config.SaveConfigFile(config.DefaultConfig(), path); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}

			fmt.Fprintf(out, "Created default config file at: %s\n", path)
			fmt.Fprintln(out, "\nSet storage.backend to dir or http to share the catalog.")
			fmt.Fprintln(out, "Available options:")
			fmt.Fprintln(out, "  parallel_jobs: 1-16 (files identified and uploaded at once)")
			fmt.Fprintln(out, "  tag_reader: taglib, dhowden, chain")
			fmt.Fprintln(out, "  lookup.provider: musicbrainz, none")
			fmt.Fprintln(out, "  storage.backend: none, dir, http")
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Where to write the file (default ~/.config/monty/config.yaml)")
	cmd.Flags().StringVar(&format, "format", "yaml", "File format when --path is not given: yaml or toml")
	return cmd
}
