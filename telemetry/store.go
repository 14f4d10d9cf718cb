package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Store is a sink keeping events in SQLite.
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// NewStore opens or creates the event database at dbPath.
func NewStore(dbPath string, log logrus.FieldLogger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		batch_id TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		candidates INTEGER DEFAULT 0,
		records INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		rejected INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS events_run ON events(run_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts an event. Failures are logged and otherwise ignored.
func (s *Store) Record(ctx context.Context, e Event) {
	var errText any
	if e.Err != "" {
		errText = e.Err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, kind, batch_id, started_at, finished_at,
			candidates, records, skipped, rejected, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Kind, e.BatchID,
		e.StartedAt.UTC().Format(time.RFC3339Nano), e.FinishedAt.UTC().Format(time.RFC3339Nano),
		e.Candidates, e.Records, e.Skipped, e.Rejected, e.Failed, errText,
	)
	if err != nil {
		s.log.WithError(err).WithField("batch", e.BatchID).Warn("Failed to record telemetry")
	}
}

// Events returns the events of a run in insertion order.
func (s *Store) Events(runID string) ([]Event, error) {
	rows, err := s.db.Query(`
		SELECT run_id, kind, batch_id, started_at, finished_at,
			candidates, records, skipped, rejected, failed, error
		FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                   Event
			batchID, errText    sql.NullString
			startedAt, finished string
		)
		if err := rows.Scan(&e.RunID, &e.Kind, &batchID, &startedAt, &finished,
			&e.Candidates, &e.Records, &e.Skipped, &e.Rejected, &e.Failed, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.BatchID = batchID.String
		e.Err = errText.String
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		events = append(events, e)
	}
	return events, rows.Err()
}
