package state

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CSVStore is an append-only list of URLs kept in a CSV file. Every cell of
// every row is a member; the file is never rewritten.
type CSVStore struct {
	path string
}

// NewCSVStore returns a store backed by path. The file is created on first
// append.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the backing file path.
func (s *CSVStore) Path() string {
	return s.path
}

// Load reads every stored value. A missing file yields an empty set.
func (s *CSVStore) Load() (*URLSet, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewURLSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var values []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
		}
		for _, cell := range record {
			if cell = strings.TrimSpace(cell); cell != "" {
				values = append(values, cell)
			}
		}
	}
	return NewURLSet(values...), nil
}

// Append adds values to the end of the file, one quoted value per line.
func (s *CSVStore) Append(values []string) error {
	if len(values) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", s.path, err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	for _, v := range values {
		if err := WriteQuoted(f, []string{v}); err != nil {
			return fmt.Errorf("failed to append to %s: %w", s.path, err)
		}
	}
	return nil
}

// WriteQuoted writes one CSV record with every field quoted.
func WriteQuoted(w io.Writer, record []string) error {
	var b strings.Builder
	for i, field := range record {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
