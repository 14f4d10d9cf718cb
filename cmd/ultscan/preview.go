package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idaraty-prod/ultscan-cfw/content"
	"github.com/idaraty-prod/ultscan-cfw/discovery"
	"github.com/idaraty-prod/ultscan-cfw/fetcher"
	"github.com/idaraty-prod/ultscan-cfw/scraper"
)

var previewList bool

var previewCmd = &cobra.Command{
	Use:   "preview <batch_id> [url]",
	Short: "Extract one post without writing anything",
	Long: `Extract the post at url with the selectors of batch_id and print the record.
Without url, or with --list, print the candidates of the source's first list page instead.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		models, store, err := loadModels(args[:1])
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}
		if len(models) == 0 {
			return fmt.Errorf("source %s not found", args[0])
		}
		model := models[0]
		if err := model.Validate(); err != nil {
			return err
		}

		fetch := fetcher.New(cfg.Fetch, log)
		if len(args) == 1 || previewList {
			firstPage := *model
			firstPage.DeepScan = scraper.Ptr(false)
			harvester := discovery.NewHarvester(fetch, nil, discovery.HarvesterOptions{MonitoringPages: 1}, log)
			var rows [][]string
			for c, err := range harvester.Harvest(cmd.Context(), &firstPage) {
				if err != nil {
					return err
				}
				rows = append(rows, []string{c.Date, truncate(c.Title, 50), c.Link})
			}
			printTable(out, []string{"DATE", "TITLE", "LINK"}, rows)
			return nil
		}

		rec, err := discovery.NewExtractor(fetch, nil, log).Extract(cmd.Context(), model, discovery.Candidate{Link: args[1]})
		if err != nil {
			return err
		}

		fields := [][]string{
			{"slug", rec.Slug},
			{"title", rec.Title.Get(rec.Langs)},
			{"langs", rec.Langs},
			{"published_at", rec.PublishedAt},
			{"deadline", rec.Deadline},
			{"tags", rec.Tags},
			{"sources", rec.Sources},
			{"apply_url", rec.ApplyURL},
			{"image_url", rec.ImageURL},
			{"document_url", rec.DocumentURL},
			{"excerpt", rec.Excerpt.Get(rec.Langs)},
		}
		printTable(out, []string{"FIELD", "VALUE"}, fields)

		body, err := content.Markdown(rec.ContentHTML)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n", body)
		return nil
	},
}

func init() {
	previewCmd.Flags().BoolVar(&previewList, "list", false, "Print the first list page's candidates")
}
