package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/idaraty-prod/ultscan-cfw/newsfeed"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	outputsJSON  bool
	outputsLimit int
)

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "Inspect run output files",
}

var outputsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List output files, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		feed, err := newsfeed.NewNewsFeed(cfg.OutputDir)
		if err != nil {
			return err
		}
		files, err := feed.Files()
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No output files.")
			return nil
		}

		rows := make([][]string, 0, len(files))
		for _, path := range files {
			count := "unreadable"
			if records, err := newsfeed.ReadFile(path); err == nil {
				count = strconv.Itoa(len(records))
			}
			rows = append(rows, []string{filepath.Base(path), count})
		}
		printTable(cmd.OutOrStdout(), []string{"FILE", "POSTS"}, rows)
		return nil
	},
}

var outputsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the posts of the latest output file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		feed, err := newsfeed.NewNewsFeed(cfg.OutputDir)
		if err != nil {
			return err
		}
		path, err := feed.LatestFile()
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Fprintln(out, "No output files.")
			return nil
		}
		records, err := newsfeed.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if outputsLimit > 0 && len(records) > outputsLimit {
			records = records[:outputsLimit]
		}

		if outputsJSON {
			data, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "%s\n\n", filepath.Base(path))
		rows := make([][]string, 0, len(records))
		for _, rec := range records {
			rows = append(rows, []string{
				rec.Langs,
				rec.PublishedAt,
				truncate(rec.Title.Get(rec.Langs), 60),
				truncate(rec.Slug, 40),
			})
		}
		printTable(out, []string{"LANG", "PUBLISHED", "TITLE", "SLUG"}, rows)
		return nil
	},
}

func init() {
	outputsLatestCmd.Flags().BoolVar(&outputsJSON, "json", false, "Print records as JSON")
	outputsLatestCmd.Flags().IntVar(&outputsLimit, "limit", 0, "Show at most this many posts")

	outputsCmd.AddCommand(outputsListCmd, outputsLatestCmd)
}
