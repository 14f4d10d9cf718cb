// Package telemetry reports what each source batch of a run produced.
// Sinks are fire-and-forget: a failing sink never affects the run.
package telemetry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Event kinds.
const (
	KindBatch = "batch"
	KindRun   = "run"
)

// Event summarizes one source batch, or a whole run when Kind is KindRun.
type Event struct {
	RunID      string
	Kind       string
	BatchID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Candidates int
	Records    int
	Skipped    int
	Rejected   int
	Failed     int
	Err        string
}

// Duration returns how long the batch took.
func (e Event) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Sink receives events.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Record(context.Context, Event) {}

// LogSink writes events to a logger.
type LogSink struct {
	Log logrus.FieldLogger
}

func (s LogSink) Record(_ context.Context, e Event) {
	entry := s.Log.WithFields(logrus.Fields{
		"run":        e.RunID,
		"batch":      e.BatchID,
		"candidates": e.Candidates,
		"records":    e.Records,
		"skipped":    e.Skipped,
		"rejected":   e.Rejected,
		"failed":     e.Failed,
		"duration":   e.Duration().Round(time.Millisecond),
	})
	if e.Err != "" {
		entry.WithField("error", e.Err).Warnf("%s finished with errors", e.Kind)
		return
	}
	entry.Infof("%s finished", e.Kind)
}

// Multi fans events out to several sinks.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}
