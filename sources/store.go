package sources

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"

	"github.com/idaraty-prod/ultscan-cfw/scraper"
)

// Custom errors for source operations
var (
	ErrSourceNotFound = errors.New("source not found")
	ErrNoBatchID      = errors.New("source has no batch_id")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SourceStore manages source models using SQLite.
type SourceStore struct {
	db *sql.DB
}

// Source is a stored source model with its run bookkeeping.
type Source struct {
	Model         *scraper.SourceModel `json:"model"`
	EnabledAt     *time.Time           `json:"enabled_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	LastRunAt     *time.Time           `json:"last_run_at,omitempty"`
	RunErrorCount int                  `json:"run_error_count"`
	LastError     *string              `json:"last_error,omitempty"`
}

// IsEnabled returns true if the source takes part in runs.
func (s *Source) IsEnabled() bool {
	return s.EnabledAt != nil
}

// SourceFilter represents filtering options for listing sources.
type SourceFilter struct {
	Enabled *bool // Filter by enabled status
	Mode    *string
	Limit   int
	Offset  int
}

// NewSourceStore creates a new source store with the given database path.
func NewSourceStore(dbPath string) (*SourceStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SourceStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the sources table if it doesn't exist.
func (s *SourceStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		batch_id TEXT PRIMARY KEY,
		extraction_mode TEXT NOT NULL,
		model TEXT NOT NULL,
		enabled_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		last_run_at TEXT,
		run_error_count INTEGER DEFAULT 0,
		last_error TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SourceStore) Close() error {
	return s.db.Close()
}

// Import inserts models, replacing the model of batches that already exist.
// New batches are enabled; existing ones keep their enabled state and run
// history. It returns the number of models written.
func (s *SourceStore) Import(models []*scraper.SourceModel) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO sources (batch_id, extraction_mode, model, enabled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id) DO UPDATE SET
			extraction_mode = excluded.extraction_mode,
			model = excluded.model,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	count := 0
	for _, m := range models {
		if strings.TrimSpace(m.BatchID) == "" {
			return 0, ErrNoBatchID
		}
		data, err := json.Marshal(m)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal model %s: %w", m.BatchID, err)
		}
		_, err = tx.Exec(query,
			m.BatchID,
			m.Mode(),
			string(data),
			formatTime(&now),
			formatTime(&now),
			formatTime(&now),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import %s: %w", m.BatchID, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return count, nil
}

// GetSource retrieves a source by batch ID.
func (s *SourceStore) GetSource(batchID string) (*Source, error) {
	query := `
		SELECT model, enabled_at, created_at, updated_at,
		       last_run_at, run_error_count, last_error
		FROM sources
		WHERE batch_id = ?
	`

	source, err := scanSource(s.db.QueryRow(query, batchID))
	if err == sql.ErrNoRows {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}
	return source, nil
}

// ListSources lists sources with optional filtering, ordered by batch ID.
func (s *SourceStore) ListSources(filter SourceFilter) ([]Source, error) {
	query := `
		SELECT model, enabled_at, created_at, updated_at,
		       last_run_at, run_error_count, last_error
		FROM sources
	`

	var whereClauses []string
	var args []any

	if filter.Enabled != nil {
		if *filter.Enabled {
			whereClauses = append(whereClauses, "enabled_at IS NOT NULL")
		} else {
			whereClauses = append(whereClauses, "enabled_at IS NULL")
		}
	}
	if filter.Mode != nil {
		whereClauses = append(whereClauses, "extraction_mode = ?")
		args = append(args, *filter.Mode)
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY batch_id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *source)
	}

	return sources, rows.Err()
}

// Models returns the models of every enabled source.
func (s *SourceStore) Models() ([]*scraper.SourceModel, error) {
	enabled := true
	list, err := s.ListSources(SourceFilter{Enabled: &enabled})
	if err != nil {
		return nil, err
	}
	models := make([]*scraper.SourceModel, len(list))
	for i := range list {
		models[i] = list[i].Model
	}
	return models, nil
}

// SetEnabled enables or disables a source.
func (s *SourceStore) SetEnabled(batchID string, enabled bool) error {
	now := time.Now()
	var enabledAt any
	if enabled {
		enabledAt = formatTime(&now)
	}
	return s.update(batchID, "enabled_at = ?, updated_at = ?", enabledAt, formatTime(&now))
}

// RecordRun stores the outcome of a source's last run. A nil runErr resets
// the error count.
func (s *SourceStore) RecordRun(batchID string, at time.Time, runErr error) error {
	if runErr == nil {
		return s.update(batchID, "last_run_at = ?, run_error_count = 0, last_error = NULL", formatTime(&at))
	}
	return s.update(batchID,
		"last_run_at = ?, run_error_count = run_error_count + 1, last_error = ?",
		formatTime(&at), runErr.Error())
}

// DeleteSource deletes a source.
func (s *SourceStore) DeleteSource(batchID string) error {
	result, err := s.db.Exec("DELETE FROM sources WHERE batch_id = ?", batchID)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return checkAffected(result)
}

func (s *SourceStore) update(batchID, set string, args ...any) error {
	args = append(args, batchID)
	result, err := s.db.Exec("UPDATE sources SET "+set+" WHERE batch_id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	return checkAffected(result)
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSourceNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSource parses one row into a Source. Shared by GetSource and
// ListSources.
func scanSource(row rowScanner) (*Source, error) {
	var modelJSON, createdAtStr, updatedAtStr string
	var enabledAtStr, lastRunAtStr, lastError sql.NullString
	var runErrorCount int

	if err := row.Scan(
		&modelJSON, &enabledAtStr, &createdAtStr, &updatedAtStr,
		&lastRunAtStr, &runErrorCount, &lastError,
	); err != nil {
		return nil, err
	}

	var model scraper.SourceModel
	if err := json.Unmarshal([]byte(modelJSON), &model); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	source := &Source{
		Model:         &model,
		CreatedAt:     parseTime(createdAtStr),
		UpdatedAt:     parseTime(updatedAtStr),
		RunErrorCount: runErrorCount,
	}
	if enabledAtStr.Valid {
		t := parseTime(enabledAtStr.String)
		source.EnabledAt = &t
	}
	if lastRunAtStr.Valid {
		t := parseTime(lastRunAtStr.String)
		source.LastRunAt = &t
	}
	if lastError.Valid {
		source.LastError = &lastError.String
	}
	return source, nil
}

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
