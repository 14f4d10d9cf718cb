// Package sources loads the source table, either from its CSV export or
// from the SQLite source store.
package sources

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/idaraty-prod/ultscan-cfw/scraper"
)

// RowError describes a table row that could not be decoded.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Table is a decoded source table. Rows that failed to decode are kept in
// Errors rather than failing the whole table.
type Table struct {
	Models []*scraper.SourceModel
	Errors []RowError
}

// LoadCSV reads a source table exported as CSV. A missing or unreadable
// file is an error; malformed rows are not.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source table: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV decodes a source table from r.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read source table header: %w", err)
	}

	table := &Table{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read source table: %w", err)
		}

		model, err := scraper.NewRow(header, record).Decode()
		if err != nil {
			line, _ := reader.FieldPos(0)
			table.Errors = append(table.Errors, RowError{Line: line, Err: err})
			continue
		}
		if model.BatchID == "" {
			continue
		}
		table.Models = append(table.Models, model)
	}
	return table, nil
}

// WriteCSV writes models as a source table with the canonical header.
func WriteCSV(w io.Writer, models []*scraper.SourceModel) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(scraper.Columns); err != nil {
		return err
	}
	for _, m := range models {
		if err := writer.Write(scraper.Encode(m).Record()); err != nil {
			return fmt.Errorf("failed to write %s: %w", m.BatchID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Select keeps the models whose batch ID is listed, in table order. An
// empty list keeps every model.
func Select(models []*scraper.SourceModel, batchIDs []string) []*scraper.SourceModel {
	if len(batchIDs) == 0 {
		return models
	}
	var out []*scraper.SourceModel
	for _, m := range models {
		if slices.Contains(batchIDs, m.BatchID) {
			out = append(out, m)
		}
	}
	return out
}
