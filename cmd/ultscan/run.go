package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ultscan "github.com/idaraty-prod/ultscan-cfw"
	"github.com/idaraty-prod/ultscan-cfw/fetcher"
	"github.com/idaraty-prod/ultscan-cfw/images"
	"github.com/idaraty-prod/ultscan-cfw/newsfeed"
	"github.com/idaraty-prod/ultscan-cfw/scraper"
	"github.com/idaraty-prod/ultscan-cfw/sources"
	"github.com/idaraty-prod/ultscan-cfw/state"
	"github.com/idaraty-prod/ultscan-cfw/telemetry"
)

var (
	runDeep        bool
	runNoImages    bool
	runConcurrency int
)

var runCmd = &cobra.Command{
	Use:   "run [batch_id...]",
	Short: "Harvest sources and write a new output file",
	Long:  `Harvest every configured source, or only the given batches, and write the new posts to outputs/posts-<unix>.csv.`,
	RunE:  runHarvest,
}

func init() {
	runCmd.Flags().BoolVar(&runDeep, "deep", false, "Walk every list page, not only the first monitoring pages")
	runCmd.Flags().BoolVar(&runNoImages, "no-images", false, "Do not download cover images")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Number of sources harvested at once")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("deep") {
		cfg.DeepScan = runDeep
	}
	if runNoImages {
		cfg.SaveImages = false
	}
	if runConcurrency > 0 {
		cfg.Concurrency = runConcurrency
	}

	models, store, err := loadModels(args)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	if len(models) == 0 {
		return errors.New("no sources to harvest")
	}

	tracker, err := state.Load(cfg.State)
	if err != nil {
		return err
	}
	feed, err := newsfeed.NewNewsFeed(cfg.OutputDir)
	if err != nil {
		return err
	}
	sink, err := openTelemetry()
	if err != nil {
		return err
	}
	defer sink.Close()

	fetch := fetcher.New(cfg.Fetch, log)
	runner := ultscan.NewRunner(fetch, tracker, feed, &ultscan.RunConfig{
		Concurrency:     cfg.Concurrency,
		DeepScan:        cfg.DeepScan,
		MonitoringPages: cfg.MonitoringPages,
	}, log).
		WithTelemetry(sink).
		WithProgress(cmd.OutOrStdout())
	if cfg.SaveImages {
		runner.WithImages(images.NewPipeline(cfg.ImagesDir, fetch, log))
	}
	if store != nil {
		runner.WithRunRecorder(store)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx, models)
	if err != nil {
		return err
	}
	if result.File == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No new posts.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d posts to %s\n", len(result.Records), result.File)
	return nil
}

// loadModels returns the models of the configured source table, limited to
// batchIDs when any are given. The SQLite store is returned open when it is
// the table in use.
func loadModels(batchIDs []string) ([]*scraper.SourceModel, *sources.SourceStore, error) {
	if cfg.SourcesDSN != "" {
		store, err := sources.NewSourceStore(cfg.SourcesDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open source store: %w", err)
		}
		models, err := store.Models()
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		return sources.Select(models, batchIDs), store, nil
	}

	table, err := sources.LoadCSV(cfg.SourceTable)
	if err != nil {
		return nil, nil, err
	}
	for _, rowErr := range table.Errors {
		log.WithError(rowErr.Err).WithField("line", rowErr.Line).Error("Skipping source row")
	}
	return sources.Select(table.Models, batchIDs), nil, nil
}

// telemetrySink logs every event and keeps it in SQLite when a telemetry
// store is configured.
type telemetrySink struct {
	telemetry.Multi
	store *telemetry.Store
}

func (s *telemetrySink) Close() {
	if s.store != nil {
		s.store.Close()
	}
}

func openTelemetry() (*telemetrySink, error) {
	sink := &telemetrySink{Multi: telemetry.Multi{telemetry.LogSink{Log: log}}}
	if cfg.TelemetryDSN == "" {
		return sink, nil
	}
	store, err := telemetry.NewStore(cfg.TelemetryDSN, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry store: %w", err)
	}
	sink.store = store
	sink.Multi = append(sink.Multi, store)
	return sink, nil
}
