package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idaraty-prod/ultscan-cfw/config"
	"github.com/idaraty-prod/ultscan-cfw/sources"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file and create the source store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Initializing ultscan...")

		path := configPath
		if path == "" {
			var err error
			if path, err = config.ConfigFilePath(); err != nil {
				return err
			}
		}
		created, err := config.WriteDefaultConfigFile(path, initForce)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(out, "  ✓ Config file: %s\n", path)
		} else {
			fmt.Fprintf(out, "  Config file: %s (already exists)\n", path)
		}

		if cfg.SourcesDSN != "" {
			store, err := sources.NewSourceStore(cfg.SourcesDSN)
			if err != nil {
				return fmt.Errorf("failed to create source store: %w", err)
			}
			store.Close()
			fmt.Fprintf(out, "  ✓ Source store: %s\n", cfg.SourcesDSN)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}
