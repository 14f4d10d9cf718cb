package sources

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idaraty-prod/ultscan-cfw/scraper"
)

// Test helper: create a test source store
func createTestSourceStore(t *testing.T) *SourceStore {
	t.Helper()
	store, err := NewSourceStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "should create source store")
	t.Cleanup(func() { store.Close() })
	return store
}

// Test helper: create a sample html source model
func createTestModel(batchID string) *scraper.SourceModel {
	return &scraper.SourceModel{
		BatchID:        batchID,
		Lang:           scraper.LangFR,
		ExtractionMode: scraper.ModeHTML,
		ListURL:        scraper.Ptr("https://example.tn/actualites?page=ACTU_NBR"),
		List: scraper.ListConfig{
			Container: scraper.Ptr("ul.news"),
			Item:      scraper.Ptr("li"),
			Link:      scraper.Ptr("a::attr(href)"),
		},
		Article: scraper.ArticleConfig{
			Title:      scraper.Ptr("h1::text"),
			Content:    scraper.Ptr("div.content"),
			DateFormat: scraper.Ptr("%d%m%Y"),
		},
		Pagination: scraper.Pagination{End: scraper.Ptr(5)},
	}
}

const sampleTable = "\ufeffbatch_id,lang,extraction_mode,page_actu_loop,reg_ul,reg_li,single_content,loop_end\n" +
	"news-fr,fr,html,https://a.tn/?p=ACTU_NBR,ul,li,div.body,4\n" +
	"bad-loop,FR,html,https://b.tn/?p=ACTU_NBR,ul,li,div.body,many\n" +
	",,,,,,,\n" +
	"news-ar,AR,,https://c.tn/?p=ACTU_NBR,ul,\"li.item, li.alt\",div.body,nan\n"

// TestReadCSV_DecodesRows verifies rows decode and bad rows are collected
func TestReadCSV_DecodesRows(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleTable))

	require.NoError(t, err)
	require.Len(t, table.Models, 2)
	assert.Equal(t, "news-fr", table.Models[0].BatchID)
	assert.Equal(t, "FR", table.Models[0].Lang, "lang is upper-cased")
	_, _, end := table.Models[0].Pagination.Bounds()
	assert.Equal(t, 4, end)

	assert.Equal(t, "news-ar", table.Models[1].BatchID)
	assert.Equal(t, "li.item, li.alt", scraper.Value(table.Models[1].List.Item))
	assert.Nil(t, table.Models[1].Pagination.End, "nan cells are empty")

	require.Len(t, table.Errors, 1)
	assert.Equal(t, 3, table.Errors[0].Line)
	var cfgErr *scraper.ConfigError
	assert.True(t, errors.As(&table.Errors[0], &cfgErr))
	assert.Equal(t, "loop_end", cfgErr.Field)
}

func TestReadCSV_Empty(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(""))

	require.NoError(t, err)
	assert.Empty(t, table.Models)
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "post_models.csv"))

	assert.Error(t, err)
}

// TestWriteCSV_RoundTrip verifies an exported table loads back unchanged
func TestWriteCSV_RoundTrip(t *testing.T) {
	models := []*scraper.SourceModel{createTestModel("a-fr"), createTestModel("b-fr")}
	models[1].DeepScan = scraper.Ptr(true)
	path := filepath.Join(t.TempDir(), "post_models.csv")

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, models))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	table, err := LoadCSV(path)
	require.NoError(t, err)
	require.Empty(t, table.Errors)
	require.Len(t, table.Models, 2)
	assert.Equal(t, models[0].Article, table.Models[0].Article)
	assert.Equal(t, models[1].DeepScan, table.Models[1].DeepScan)
}

func TestSelect(t *testing.T) {
	models := []*scraper.SourceModel{createTestModel("a"), createTestModel("b"), createTestModel("c")}

	assert.Len(t, Select(models, nil), 3)
	selected := Select(models, []string{"c", "a"})
	require.Len(t, selected, 2)
	assert.Equal(t, "a", selected[0].BatchID, "table order is kept")
	assert.Equal(t, "c", selected[1].BatchID)
}

// TestNewSourceStore_InitializesSchema verifies schema creation
func TestNewSourceStore_InitializesSchema(t *testing.T) {
	store := createTestSourceStore(t)

	sources, err := store.ListSources(SourceFilter{})
	require.NoError(t, err, "sources table should exist")
	assert.Empty(t, sources)
}

// TestImport_StoresModels verifies imported models are enabled and readable
func TestImport_StoresModels(t *testing.T) {
	store := createTestSourceStore(t)

	n, err := store.Import([]*scraper.SourceModel{createTestModel("a-fr"), createTestModel("b-fr")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	source, err := store.GetSource("a-fr")
	require.NoError(t, err)
	assert.True(t, source.IsEnabled())
	assert.Equal(t, "div.content", scraper.Value(source.Model.Article.Content))
	assert.Equal(t, "%d%m%Y", scraper.Value(source.Model.Article.DateFormat))
	assert.False(t, source.CreatedAt.IsZero())
}

// TestImport_UpdatesExisting verifies re-importing keeps the enabled state
func TestImport_UpdatesExisting(t *testing.T) {
	store := createTestSourceStore(t)
	_, err := store.Import([]*scraper.SourceModel{createTestModel("a-fr")})
	require.NoError(t, err)
	require.NoError(t, store.SetEnabled("a-fr", false))

	changed := createTestModel("a-fr")
	changed.Article.Content = scraper.Ptr("article")
	_, err = store.Import([]*scraper.SourceModel{changed})
	require.NoError(t, err)

	source, err := store.GetSource("a-fr")
	require.NoError(t, err)
	assert.Equal(t, "article", scraper.Value(source.Model.Article.Content))
	assert.False(t, source.IsEnabled())
}

func TestImport_RejectsMissingBatchID(t *testing.T) {
	store := createTestSourceStore(t)

	_, err := store.Import([]*scraper.SourceModel{createTestModel("ok"), createTestModel(" ")})

	assert.ErrorIs(t, err, ErrNoBatchID)
	sources, err := store.ListSources(SourceFilter{})
	require.NoError(t, err)
	assert.Empty(t, sources, "the import is all or nothing")
}

func TestGetSource_NotFound(t *testing.T) {
	store := createTestSourceStore(t)

	_, err := store.GetSource("missing")

	assert.ErrorIs(t, err, ErrSourceNotFound)
}

// TestListSources_Filters verifies enabled and mode filters
func TestListSources_Filters(t *testing.T) {
	store := createTestSourceStore(t)
	api := createTestModel("c-api")
	api.ExtractionMode = scraper.ModeAPI
	_, err := store.Import([]*scraper.SourceModel{createTestModel("b-fr"), createTestModel("a-fr"), api})
	require.NoError(t, err)
	require.NoError(t, store.SetEnabled("b-fr", false))

	all, err := store.ListSources(SourceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a-fr", all[0].Model.BatchID, "ordered by batch id")

	enabled := true
	list, err := store.ListSources(SourceFilter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	mode := scraper.ModeAPI
	list, err = store.ListSources(SourceFilter{Mode: &mode})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c-api", list[0].Model.BatchID)

	list, err = store.ListSources(SourceFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b-fr", list[0].Model.BatchID)

	models, err := store.Models()
	require.NoError(t, err)
	assert.Len(t, models, 2)
}

// TestRecordRun verifies error counts grow on failures and reset on success
func TestRecordRun(t *testing.T) {
	store := createTestSourceStore(t)
	_, err := store.Import([]*scraper.SourceModel{createTestModel("a-fr")})
	require.NoError(t, err)
	at := time.Date(2022, 5, 12, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordRun("a-fr", at, errors.New("timeout")))
	require.NoError(t, store.RecordRun("a-fr", at, errors.New("timeout again")))

	source, err := store.GetSource("a-fr")
	require.NoError(t, err)
	assert.Equal(t, 2, source.RunErrorCount)
	require.NotNil(t, source.LastError)
	assert.Equal(t, "timeout again", *source.LastError)
	require.NotNil(t, source.LastRunAt)
	assert.True(t, at.Equal(*source.LastRunAt))

	require.NoError(t, store.RecordRun("a-fr", at, nil))
	source, err = store.GetSource("a-fr")
	require.NoError(t, err)
	assert.Zero(t, source.RunErrorCount)
	assert.Nil(t, source.LastError)
}

func TestDeleteSource(t *testing.T) {
	store := createTestSourceStore(t)
	_, err := store.Import([]*scraper.SourceModel{createTestModel("a-fr")})
	require.NoError(t, err)

	require.NoError(t, store.DeleteSource("a-fr"))
	assert.ErrorIs(t, store.DeleteSource("a-fr"), ErrSourceNotFound)
	assert.ErrorIs(t, store.SetEnabled("a-fr", true), ErrSourceNotFound)
}
