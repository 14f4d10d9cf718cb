package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/idaraty-prod/ultscan-cfw/scraper"
	"github.com/idaraty-prod/ultscan-cfw/sources"
)

var (
	sourcesListAll bool
	sourcesMode    string
	sourcesOutput  string
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the source table",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if cfg.SourcesDSN == "" {
			table, err := sources.LoadCSV(cfg.SourceTable)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, m := range table.Models {
				if sourcesMode != "" && m.Mode() != sourcesMode {
					continue
				}
				rows = append(rows, []string{m.BatchID, m.Lang, m.Mode(), truncate(scraper.Value(m.ListURL), 70)})
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No sources configured.")
				return nil
			}
			printTable(out, []string{"BATCH", "LANG", "MODE", "LIST URL"}, rows)
			return nil
		}

		store, err := sources.NewSourceStore(cfg.SourcesDSN)
		if err != nil {
			return fmt.Errorf("failed to open source store: %w", err)
		}
		defer store.Close()

		filter := sources.SourceFilter{}
		if !sourcesListAll {
			enabled := true
			filter.Enabled = &enabled
		}
		if sourcesMode != "" {
			filter.Mode = &sourcesMode
		}
		list, err := store.ListSources(filter)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No sources configured.")
			return nil
		}

		rows := make([][]string, 0, len(list))
		for _, s := range list {
			status := "enabled"
			if !s.IsEnabled() {
				status = "disabled"
			}
			lastError := ""
			if s.LastError != nil {
				lastError = truncate(*s.LastError, 50)
			}
			rows = append(rows, []string{
				s.Model.BatchID,
				s.Model.Lang,
				s.Model.Mode(),
				status,
				formatTime(s.LastRunAt),
				strconv.Itoa(s.RunErrorCount),
				lastError,
			})
		}
		printTable(out, []string{"BATCH", "LANG", "MODE", "STATUS", "LAST RUN", "ERRORS", "LAST ERROR"}, rows)
		return nil
	},
}

var sourcesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate every row of the CSV source table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		table, err := sources.LoadCSV(cfg.SourceTable)
		if err != nil {
			return err
		}

		invalid := len(table.Errors)
		for _, rowErr := range table.Errors {
			fmt.Fprintf(out, "✗ %v\n", &rowErr)
		}
		for _, m := range table.Models {
			if err := m.Validate(); err != nil {
				fmt.Fprintf(out, "✗ %v\n", err)
				invalid++
			}
		}

		fmt.Fprintf(out, "%d sources, %d invalid\n", len(table.Models)+len(table.Errors), invalid)
		if invalid > 0 {
			return errors.New("source table has invalid rows")
		}
		return nil
	},
}

var sourcesImportCmd = &cobra.Command{
	Use:   "import <post_models.csv>",
	Short: "Import a CSV source table into the source store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSourceStore()
		if err != nil {
			return err
		}
		defer store.Close()

		table, err := sources.LoadCSV(args[0])
		if err != nil {
			return err
		}
		for _, rowErr := range table.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "Skipping %v\n", &rowErr)
		}

		n, err := store.Import(table.Models)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d sources into %s\n", n, cfg.SourcesDSN)
		return nil
	},
}

var sourcesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the source store as a CSV source table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSourceStore()
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.ListSources(sources.SourceFilter{})
		if err != nil {
			return err
		}
		models := make([]*scraper.SourceModel, len(list))
		for i := range list {
			models[i] = list[i].Model
		}

		if sourcesOutput == "" {
			return sources.WriteCSV(cmd.OutOrStdout(), models)
		}
		f, err := os.Create(sourcesOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", sourcesOutput, err)
		}
		if err := sources.WriteCSV(f, models); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

func setEnabledCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <batch_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSourceStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SetEnabled(args[0], enabled); err != nil {
				if errors.Is(err, sources.ErrSourceNotFound) {
					return fmt.Errorf("source %s not found", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Source %s %sd\n", args[0], use)
			return nil
		},
	}
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <batch_id>",
	Short: "Delete a source from the source store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSourceStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteSource(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Source %s deleted\n", args[0])
		return nil
	},
}

func openSourceStore() (*sources.SourceStore, error) {
	if cfg.SourcesDSN == "" {
		return nil, errors.New("no source store configured (set sources.dsn or ULTSCAN_SOURCES_DSN)")
	}
	store, err := sources.NewSourceStore(cfg.SourcesDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open source store: %w", err)
	}
	return store, nil
}

func init() {
	sourcesListCmd.Flags().BoolVar(&sourcesListAll, "all", false, "Include disabled sources")
	sourcesListCmd.Flags().StringVar(&sourcesMode, "mode", "", "Only list sources of this extraction mode (html, api, rss)")
	sourcesExportCmd.Flags().StringVarP(&sourcesOutput, "output", "o", "", "Write to this file instead of stdout")

	sourcesCmd.AddCommand(
		sourcesListCmd,
		sourcesCheckCmd,
		sourcesImportCmd,
		sourcesExportCmd,
		setEnabledCmd("enable", "Include a source in runs", true),
		setEnabledCmd("disable", "Exclude a source from runs", false),
		sourcesDeleteCmd,
	)
}
