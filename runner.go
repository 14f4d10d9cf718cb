// Package ultscan harvests news and opportunity posts from configured
// sources into one normalized output file per run.
package ultscan

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/idaraty-prod/ultscan-cfw/discovery"
	"github.com/idaraty-prod/ultscan-cfw/newsfeed"
	"github.com/idaraty-prod/ultscan-cfw/scraper"
	"github.com/idaraty-prod/ultscan-cfw/state"
	"github.com/idaraty-prod/ultscan-cfw/telemetry"
)

// RunRecorder keeps the outcome of each source's last run.
type RunRecorder interface {
	RecordRun(batchID string, at time.Time, runErr error) error
}

// RunConfig holds configuration for a run.
type RunConfig struct {
	// Maximum number of sources harvested in parallel
	Concurrency int
	// Default deep scan flag for sources that don't set one
	DeepScan bool
	// Page limit of sources that are not deep scanned
	MonitoringPages int
}

// DefaultRunConfig returns the configuration used when none is given.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		Concurrency:     4,
		MonitoringPages: discovery.DefaultMonitoringPages,
	}
}

// Runner harvests a set of sources and writes their records.
type Runner struct {
	fetch    discovery.Fetcher
	tracker  *state.Tracker
	feed     *newsfeed.NewsFeed
	config   *RunConfig
	images   discovery.ImageSaver
	sink     telemetry.Sink
	runs     RunRecorder
	progress io.Writer
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewRunner creates a runner. tracker gates candidates and receives the
// processed URLs; feed receives the run's output file.
func NewRunner(
	fetch discovery.Fetcher,
	tracker *state.Tracker,
	feed *newsfeed.NewsFeed,
	config *RunConfig,
	log logrus.FieldLogger,
) *Runner {
	if config == nil {
		config = DefaultRunConfig()
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		fetch:    fetch,
		tracker:  tracker,
		feed:     feed,
		config:   config,
		sink:     telemetry.NopSink{},
		progress: io.Discard,
		log:      log,
		now:      time.Now,
	}
}

// WithImages makes the runner download cover images.
func (r *Runner) WithImages(images discovery.ImageSaver) *Runner {
	r.images = images
	return r
}

// WithTelemetry sends one event per source and one per run to sink.
func (r *Runner) WithTelemetry(sink telemetry.Sink) *Runner {
	if sink != nil {
		r.sink = sink
	}
	return r
}

// WithRunRecorder stores each source's outcome in runs.
func (r *Runner) WithRunRecorder(runs RunRecorder) *Runner {
	r.runs = runs
	return r
}

// WithProgress streams one line per record and per finished source to w.
func (r *Runner) WithProgress(w io.Writer) *Runner {
	if w != nil {
		r.progress = w
	}
	return r
}

// SourceResult summarizes the harvest of one source.
type SourceResult struct {
	BatchID    string
	Candidates int
	Records    int
	Skipped    int
	Rejected   int
	Failed     int
	// Err is the ConfigError that skipped the source, or the error that
	// ended its list walk.
	Err error
}

// Result summarizes a run.
type Result struct {
	RunID   string
	File    string
	Records []newsfeed.Record
	Sources []SourceResult
}

// Run harvests models concurrently and writes the accumulated records to a
// single output file, then persists the processed URLs. Per-source and
// per-candidate failures are logged and counted, never returned. When ctx
// is cancelled no new source starts; what was collected is still written and
// ctx's error is returned with the result.
func (r *Runner) Run(ctx context.Context, models []*scraper.SourceModel) (*Result, error) {
	runID := uuid.New().String()
	log := r.log.WithField("run", runID)
	started := r.now()

	log.Infof("Harvesting %d sources", len(models))

	var (
		acc     newsfeed.Accumulator
		mu      sync.Mutex
		results []SourceResult
		wg      sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(r.config.Concurrency))

	for _, model := range models {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(m *scraper.SourceModel) {
			defer wg.Done()
			defer sem.Release(1)

			res := r.runSource(ctx, runID, m, &acc)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(model)
	}
	wg.Wait()

	slices.SortFunc(results, func(a, b SourceResult) int { return cmp.Compare(a.BatchID, b.BatchID) })
	result := &Result{RunID: runID, Records: acc.Records(), Sources: results}

	file, err := r.feed.Write(result.Records, r.now())
	if err != nil {
		return result, fmt.Errorf("failed to write run output: %w", err)
	}
	result.File = file
	if err := r.tracker.Persist(); err != nil {
		return result, fmt.Errorf("failed to persist processed urls: %w", err)
	}

	r.sink.Record(context.WithoutCancel(ctx), r.runEvent(runID, started, result))
	log.WithFields(logrus.Fields{
		"records": len(result.Records),
		"file":    file,
	}).Info("Run finished")
	fmt.Fprintf(r.progress, "Run %s: %d records from %d sources\n", runID, len(result.Records), len(results))

	return result, ctx.Err()
}

// runSource harvests one source into acc.
func (r *Runner) runSource(ctx context.Context, runID string, model *scraper.SourceModel, acc *newsfeed.Accumulator) SourceResult {
	log := r.log.WithFields(logrus.Fields{"run": runID, "batch": model.BatchID})
	res := SourceResult{BatchID: model.BatchID}
	started := r.now()

	defer func() {
		r.sink.Record(context.WithoutCancel(ctx), sourceEvent(runID, started, r.now(), res))
		if r.runs != nil {
			if err := r.runs.RecordRun(model.BatchID, started, res.Err); err != nil {
				log.WithError(err).Debug("Failed to record source run")
			}
		}
		fmt.Fprintf(r.progress, "%s: %d new, %d skipped, %d rejected, %d failed\n",
			model.BatchID, res.Records, res.Skipped, res.Rejected, res.Failed)
	}()

	if err := model.Validate(); err != nil {
		log.WithError(err).Error("Skipping misconfigured source")
		res.Err = err
		return res
	}

	harvester := discovery.NewHarvester(r.fetch, r.tracker, discovery.HarvesterOptions{
		DeepScan:        r.config.DeepScan,
		MonitoringPages: r.config.MonitoringPages,
	}, log)
	extractor := discovery.NewExtractor(r.fetch, r.images, log)

	for c, err := range harvester.Harvest(ctx, model) {
		if err != nil {
			res.Err = err
			continue
		}
		res.Candidates++

		if c.Link == "" || r.tracker.Seen(c.Link) {
			res.Skipped++
			continue
		}

		rec, err := extractor.Extract(ctx, model, c)
		if err != nil {
			if discovery.IsRejected(err) {
				res.Rejected++
				log.WithError(err).WithField("url", c.Link).Warn("Rejected candidate")
			} else {
				res.Failed++
				log.WithError(err).WithField("url", c.Link).Warn("Failed to extract candidate")
			}
			continue
		}

		// Another source may have listed the same post meanwhile.
		if !r.tracker.MarkPost(rec.Sources) {
			res.Skipped++
			continue
		}
		if rec.ImageURL != "" {
			r.tracker.MarkImage(rec.ImageURL)
		}
		if rec.DocumentURL != "" {
			r.tracker.MarkPublication(rec.DocumentURL)
		}

		acc.Add(*rec)
		res.Records++
		fmt.Fprintf(r.progress, "%s: %s\n", model.BatchID, rec.Slug)
	}

	if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
		log.WithError(res.Err).Warn("List walk ended early")
	}
	return res
}

func sourceEvent(runID string, started, finished time.Time, res SourceResult) telemetry.Event {
	e := telemetry.Event{
		RunID:      runID,
		Kind:       telemetry.KindBatch,
		BatchID:    res.BatchID,
		StartedAt:  started,
		FinishedAt: finished,
		Candidates: res.Candidates,
		Records:    res.Records,
		Skipped:    res.Skipped,
		Rejected:   res.Rejected,
		Failed:     res.Failed,
	}
	if res.Err != nil {
		e.Err = res.Err.Error()
	}
	return e
}

func (r *Runner) runEvent(runID string, started time.Time, result *Result) telemetry.Event {
	e := telemetry.Event{
		RunID:      runID,
		Kind:       telemetry.KindRun,
		StartedAt:  started,
		FinishedAt: r.now(),
		Records:    len(result.Records),
	}
	failedSources := 0
	for _, s := range result.Sources {
		e.Candidates += s.Candidates
		e.Skipped += s.Skipped
		e.Rejected += s.Rejected
		e.Failed += s.Failed
		if s.Err != nil {
			failedSources++
		}
	}
	if failedSources > 0 {
		e.Err = fmt.Sprintf("%d sources ended with errors", failedSources)
	}
	return e
}
