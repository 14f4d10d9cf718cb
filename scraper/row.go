package scraper

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Columns lists the source table header in its canonical order.
var Columns = []string{
	"batch_id", "lang", "extraction_mode", "page_actu_home", "page_actu_loop",
	"reg_ul", "reg_li", "reg_li_a", "reg_li_title", "reg_li_date", "reg_li_image",
	"loop_start", "loop_step", "loop_end",
	"single_title", "single_content", "single_date", "single_date_format",
	"single_image", "single_tags", "deadline", "deadline_format", "apply_url",
	"eligibility_criteria", "guess_apply_url_last_url", "document_url", "document_title",
	"rubrique_website", "orgs", "themes",
	"api_endpoint", "api_method", "api_data", "api_nbr_key", "api_data_encode",
	"api_header_accept", "api_header_accept_language", "api_header_content_type",
	"api_header_request_with", "api_result_type", "api_result_key", "api_loop_mode",
	"deep_scan", "keep_raw_source_url",
}

// Row is one source table row keyed by column name.
type Row map[string]string

// NewRow zips a header with a record. Missing trailing cells are left empty.
func NewRow(header, record []string) Row {
	row := make(Row, len(header))
	for i, col := range header {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		if i < len(record) {
			row[col] = record[i]
		} else {
			row[col] = ""
		}
	}
	return row
}

func (r Row) opt(col string) *string {
	v := strings.TrimSpace(r[col])
	// Tables exported from dataframes carry "nan" for empty cells.
	if v == "" || strings.EqualFold(v, "nan") {
		return nil
	}
	return &v
}

func (r Row) optInt(col string) (*int, error) {
	v := r.opt(col)
	if v == nil {
		return nil, nil
	}
	f, err := strconv.ParseFloat(*v, 64)
	if err != nil || math.IsNaN(f) {
		return nil, fmt.Errorf("%s: not a number: %q", col, *v)
	}
	n := int(f)
	return &n, nil
}

func (r Row) optBool(col string) *bool {
	v := r.opt(col)
	if v == nil {
		return nil
	}
	b := parseBool(*v)
	return &b
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// Decode builds a SourceModel from a row. Malformed numeric cells are
// reported as a ConfigError; required-field checks are left to Validate.
func (r Row) Decode() (*SourceModel, error) {
	m := &SourceModel{
		BatchID:        strings.TrimSpace(r["batch_id"]),
		Lang:           strings.ToUpper(strings.TrimSpace(r["lang"])),
		ExtractionMode: strings.ToLower(strings.TrimSpace(r["extraction_mode"])),
		HomeURL:        r.opt("page_actu_home"),
		ListURL:        r.opt("page_actu_loop"),
		List: ListConfig{
			Container: r.opt("reg_ul"),
			Item:      r.opt("reg_li"),
			Link:      r.opt("reg_li_a"),
			Title:     r.opt("reg_li_title"),
			Date:      r.opt("reg_li_date"),
			Image:     r.opt("reg_li_image"),
		},
		Article: ArticleConfig{
			Title:          r.opt("single_title"),
			Content:        r.opt("single_content"),
			Date:           r.opt("single_date"),
			DateFormat:     r.opt("single_date_format"),
			Image:          r.opt("single_image"),
			Tags:           r.opt("single_tags"),
			Deadline:       r.opt("deadline"),
			DeadlineFormat: r.opt("deadline_format"),
			ApplyURL:       r.opt("apply_url"),
			Eligibility:    r.opt("eligibility_criteria"),
			DocumentURL:    r.opt("document_url"),
			DocumentTitle:  r.opt("document_title"),
		},
		RubriqueWebsite:  r.opt("rubrique_website"),
		Organizations:    r.opt("orgs"),
		Themes:           r.opt("themes"),
		GuessApplyURL:    parseBool(r["guess_apply_url_last_url"]),
		DeepScan:         r.optBool("deep_scan"),
		KeepRawSourceURL: r.optBool("keep_raw_source_url"),
	}

	var err error
	if m.Pagination.Start, err = r.optInt("loop_start"); err != nil {
		return nil, m.configErr("loop_start", err.Error())
	}
	if m.Pagination.Step, err = r.optInt("loop_step"); err != nil {
		return nil, m.configErr("loop_step", err.Error())
	}
	if m.Pagination.End, err = r.optInt("loop_end"); err != nil {
		return nil, m.configErr("loop_end", err.Error())
	}

	if m.ExtractionMode == ModeAPI || r.opt("api_endpoint") != nil {
		m.API = &APIConfig{
			Endpoint:       r.opt("api_endpoint"),
			Method:         r.opt("api_method"),
			DataRaw:        r.opt("api_data"),
			CounterKey:     r.opt("api_nbr_key"),
			Encode:         parseBool(r["api_data_encode"]),
			Accept:         r.opt("api_header_accept"),
			AcceptLanguage: r.opt("api_header_accept_language"),
			ContentType:    r.opt("api_header_content_type"),
			RequestedWith:  r.opt("api_header_request_with"),
			ResultType:     r.opt("api_result_type"),
			ResultKey:      r.opt("api_result_key"),
			LoopMode:       r.opt("api_loop_mode"),
		}
	}

	return m, nil
}

// Encode renders a SourceModel back into a row, the inverse of Decode.
func Encode(m *SourceModel) Row {
	row := Row{
		"batch_id":                 m.BatchID,
		"lang":                     m.Lang,
		"extraction_mode":          m.ExtractionMode,
		"page_actu_home":           Value(m.HomeURL),
		"page_actu_loop":           Value(m.ListURL),
		"reg_ul":                   Value(m.List.Container),
		"reg_li":                   Value(m.List.Item),
		"reg_li_a":                 Value(m.List.Link),
		"reg_li_title":             Value(m.List.Title),
		"reg_li_date":              Value(m.List.Date),
		"reg_li_image":             Value(m.List.Image),
		"loop_start":               intValue(m.Pagination.Start),
		"loop_step":                intValue(m.Pagination.Step),
		"loop_end":                 intValue(m.Pagination.End),
		"single_title":             Value(m.Article.Title),
		"single_content":           Value(m.Article.Content),
		"single_date":              Value(m.Article.Date),
		"single_date_format":       Value(m.Article.DateFormat),
		"single_image":             Value(m.Article.Image),
		"single_tags":              Value(m.Article.Tags),
		"deadline":                 Value(m.Article.Deadline),
		"deadline_format":          Value(m.Article.DeadlineFormat),
		"apply_url":                Value(m.Article.ApplyURL),
		"eligibility_criteria":     Value(m.Article.Eligibility),
		"guess_apply_url_last_url": boolValue(&m.GuessApplyURL),
		"document_url":             Value(m.Article.DocumentURL),
		"document_title":           Value(m.Article.DocumentTitle),
		"rubrique_website":         Value(m.RubriqueWebsite),
		"orgs":                     Value(m.Organizations),
		"themes":                   Value(m.Themes),
		"deep_scan":                boolValue(m.DeepScan),
		"keep_raw_source_url":      boolValue(m.KeepRawSourceURL),
	}
	if api := m.API; api != nil {
		row["api_endpoint"] = Value(api.Endpoint)
		row["api_method"] = Value(api.Method)
		row["api_data"] = Value(api.DataRaw)
		row["api_nbr_key"] = Value(api.CounterKey)
		row["api_data_encode"] = boolValue(&api.Encode)
		row["api_header_accept"] = Value(api.Accept)
		row["api_header_accept_language"] = Value(api.AcceptLanguage)
		row["api_header_content_type"] = Value(api.ContentType)
		row["api_header_request_with"] = Value(api.RequestedWith)
		row["api_result_type"] = Value(api.ResultType)
		row["api_result_key"] = Value(api.ResultKey)
		row["api_loop_mode"] = Value(api.LoopMode)
	}
	return row
}

// Record orders a row by Columns.
func (r Row) Record() []string {
	out := make([]string, len(Columns))
	for i, col := range Columns {
		out[i] = r[col]
	}
	return out
}

func intValue(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func boolValue(b *bool) string {
	if b == nil {
		return ""
	}
	if *b {
		return "True"
	}
	return "False"
}
