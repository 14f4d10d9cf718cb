package newsfeed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/idaraty-prod/ultscan-cfw/state"
)

const (
	filePrefix = "posts-"
	fileExt    = ".csv"
)

// NewsFeed is the directory holding one posts-<timestamp>.csv file per run
type NewsFeed struct {
	storageDir string
}

// ReadError describes a failure to read a single output file.
type ReadError struct {
	Filename string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

// ListResult contains the records read from the output files, including
// any per-file errors that occurred during the operation.
type ListResult struct {
	Records []Record
	Errors  []ReadError
}

// NewNewsFeed creates a news feed in the specified storage directory
func NewNewsFeed(storageDir string) (*NewsFeed, error) {
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &NewsFeed{
		storageDir: storageDir,
	}, nil
}

// Write saves the records of a run to a new posts-<unix seconds>.csv file,
// every field quoted, and returns its path. Nothing is written when there
// are no records.
func (nf *NewsFeed) Write(records []Record, at time.Time) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	filename := filepath.Join(nf.storageDir, filePrefix+strconv.FormatInt(at.Unix(), 10)+fileExt)
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := state.WriteQuoted(f, Columns); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for i := range records {
		if err := state.WriteQuoted(f, records[i].Values()); err != nil {
			return "", fmt.Errorf("failed to write record %s: %w", records[i].Slug, err)
		}
	}

	return filename, nil
}

// Files returns the output files, oldest first.
func (nf *NewsFeed) Files() ([]string, error) {
	entries, err := os.ReadDir(nf.storageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	type stamped struct {
		name string
		ts   int64
	}
	var files []stamped
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || filepath.Ext(name) != fileExt {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, stamped{name: name, ts: ts})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].ts < files[j].ts })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(nf.storageDir, f.name)
	}
	return paths, nil
}

// LatestFile returns the most recent output file, or "" when there is none.
func (nf *NewsFeed) LatestFile() (string, error) {
	files, err := nf.Files()
	if err != nil || len(files) == 0 {
		return "", err
	}
	return files[len(files)-1], nil
}

// List returns the records of every output file. Unreadable files are
// collected in the result's Errors slice rather than failing the whole
// operation.
func (nf *NewsFeed) List() (*ListResult, error) {
	files, err := nf.Files()
	if err != nil {
		return nil, err
	}

	result := &ListResult{}
	for _, path := range files {
		records, err := ReadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, ReadError{
				Filename: filepath.Base(path),
				Err:      err,
			})
			continue
		}
		result.Records = append(result.Records, records...)
	}

	return result, nil
}

// ReadFile reads the records of one output file.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		records = append(records, recordFromValues(header, row))
	}
	return records, nil
}
