package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idaraty-prod/ultscan-cfw/dates"
)

var (
	datesBatch  string
	datesFormat string
)

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "Debug date normalization",
}

var datesNormalizeCmd = &cobra.Command{
	Use:   "normalize <raw date>...",
	Short: "Print the normalized token of raw dates, and the parsed date when a format is given",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		rows := make([][]string, 0, len(args))
		for _, raw := range args {
			row := []string{raw, dates.Normalize(raw, datesBatch)}
			if datesFormat != "" {
				published, err := dates.Published(raw, datesFormat, datesBatch)
				if err != nil {
					published = fmt.Sprintf("(%v)", err)
				}
				row = append(row, published)
			}
			rows = append(rows, row)
		}

		header := []string{"RAW", "TOKEN"}
		if datesFormat != "" {
			header = append(header, "PUBLISHED")
		}
		printTable(out, header, rows)
		return nil
	},
}

func init() {
	datesNormalizeCmd.Flags().StringVar(&datesBatch, "batch", "", "Batch id whose fixes apply")
	datesNormalizeCmd.Flags().StringVar(&datesFormat, "format", "", "strptime format, or timestamp")

	datesCmd.AddCommand(datesNormalizeCmd)
}
