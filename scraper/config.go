package scraper

import (
	"strings"
)

// Extraction modes supported by the harvester.
const (
	ModeHTML = "html"
	ModeAPI  = "api"
	ModeRSS  = "rss"
)

// Languages a source may publish in. Each record carries exactly one.
const (
	LangAR = "AR"
	LangFR = "FR"
	LangEN = "EN"
)

// PageCounterToken is replaced by the page counter in list URL templates.
const PageCounterToken = "ACTU_NBR"

// SourceModel describes how to harvest one source (a "batch"). It is loaded
// once per run and never mutated. Optional attributes are pointers: nil means
// the column was left empty in the source table.
type SourceModel struct {
	BatchID        string `json:"batch_id"`
	Lang           string `json:"lang"`
	ExtractionMode string `json:"extraction_mode"`

	// HomeURL is the site's article root, used to rehost relative image
	// paths. ListURL is the paginated list page template.
	HomeURL *string `json:"page_actu_home,omitempty"`
	ListURL *string `json:"page_actu_loop,omitempty"`

	List       ListConfig    `json:"list_config"`
	Article    ArticleConfig `json:"article_config"`
	Pagination Pagination    `json:"pagination"`
	API        *APIConfig    `json:"api_config,omitempty"`

	RubriqueWebsite *string `json:"rubrique_website,omitempty"`
	Organizations   *string `json:"orgs,omitempty"`
	Themes          *string `json:"themes,omitempty"`

	// GuessApplyURL enables the last-link heuristic when no apply link
	// selector matched.
	GuessApplyURL bool `json:"guess_apply_url_last_url"`

	// DeepScan overrides the run-level deep-scan setting for this batch.
	DeepScan *bool `json:"deep_scan,omitempty"`

	// KeepRawSourceURL exempts the batch from percent-encoding its source
	// identity.
	KeepRawSourceURL *bool `json:"keep_raw_source_url,omitempty"`
}

// ListConfig holds list page selectors. Container and Item are joined with a
// space to select list items; the remaining selectors are evaluated inside
// each item.
type ListConfig struct {
	Container *string `json:"reg_ul,omitempty"`
	Item      *string `json:"reg_li,omitempty"`
	Link      *string `json:"reg_li_a,omitempty"`
	Title     *string `json:"reg_li_title,omitempty"`
	Date      *string `json:"reg_li_date,omitempty"`
	Image     *string `json:"reg_li_image,omitempty"`
}

// ItemSelector returns the combined selector for list items.
func (l ListConfig) ItemSelector() string {
	return strings.TrimSpace(Value(l.Container) + " " + Value(l.Item))
}

// ArticleConfig holds detail page selectors and date formats.
type ArticleConfig struct {
	Title          *string `json:"single_title,omitempty"`
	Content        *string `json:"single_content,omitempty"`
	Date           *string `json:"single_date,omitempty"`
	DateFormat     *string `json:"single_date_format,omitempty"` // strptime format or "timestamp"
	Image          *string `json:"single_image,omitempty"`
	Tags           *string `json:"single_tags,omitempty"`
	Deadline       *string `json:"deadline,omitempty"`
	DeadlineFormat *string `json:"deadline_format,omitempty"`
	ApplyURL       *string `json:"apply_url,omitempty"`
	Eligibility    *string `json:"eligibility_criteria,omitempty"`
	DocumentURL    *string `json:"document_url,omitempty"`
	DocumentTitle  *string `json:"document_title,omitempty"`
}

// Pagination bounds as configured. Use Bounds for the effective values.
type Pagination struct {
	Start *int `json:"loop_start,omitempty"`
	Step  *int `json:"loop_step,omitempty"`
	End   *int `json:"loop_end,omitempty"`
}

// Bounds returns the effective start, step and end. Start defaults to 1 and
// must be non-negative, step is only honored above 1, end defaults to 10 and
// must be at least 1.
func (p Pagination) Bounds() (start, step, end int) {
	start, step, end = 1, 1, 10
	if p.Start != nil && *p.Start >= 0 {
		start = *p.Start
	}
	if p.Step != nil && *p.Step > 1 {
		step = *p.Step
	}
	if p.End != nil && *p.End >= 1 {
		end = *p.End
	}
	return start, step, end
}

// APIConfig describes the structured request issued per page in api mode.
type APIConfig struct {
	Endpoint   *string `json:"api_endpoint,omitempty"`
	Method     *string `json:"api_method,omitempty"`
	DataRaw    *string `json:"api_data,omitempty"`
	CounterKey *string `json:"api_nbr_key,omitempty"`
	// Encode sends the payload form-encoded even when the content type is
	// JSON.
	Encode         bool    `json:"api_data_encode"`
	Accept         *string `json:"api_header_accept,omitempty"`
	AcceptLanguage *string `json:"api_header_accept_language,omitempty"`
	ContentType    *string `json:"api_header_content_type,omitempty"`
	RequestedWith  *string `json:"api_header_request_with,omitempty"`
	ResultType     *string `json:"api_result_type,omitempty"` // "json" or "html"
	ResultKey      *string `json:"api_result_key,omitempty"`
	LoopMode       *string `json:"api_loop_mode,omitempty"` // "html" or "json"

	// Data is DataRaw decoded by Validate.
	Data map[string]any `json:"-"`
}

// HTTPMethod returns the configured method, POST when unset or unknown.
func (a *APIConfig) HTTPMethod() string {
	switch strings.ToUpper(Value(a.Method)) {
	case "GET":
		return "GET"
	default:
		return "POST"
	}
}

// ResultKeyOrDefault returns the key unwrapped from JSON responses.
func (a *APIConfig) ResultKeyOrDefault() string {
	if a.ResultKey != nil {
		return *a.ResultKey
	}
	return "data"
}

// Mode returns the effective extraction mode.
func (m *SourceModel) Mode() string {
	switch m.ExtractionMode {
	case ModeAPI, ModeRSS:
		return m.ExtractionMode
	default:
		return ModeHTML
	}
}

// IsDeepScan resolves the batch's deep-scan flag against the run default.
func (m *SourceModel) IsDeepScan(runDefault bool) bool {
	if m.DeepScan != nil {
		return *m.DeepScan
	}
	return runDefault
}

// Value dereferences an optional string, returning "" when absent.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Present reports whether an optional string was configured.
func Present(s *string) bool {
	return s != nil && *s != ""
}

// Ptr returns a pointer to v. Handy for building models in code and tests.
func Ptr[T any](v T) *T {
	return &v
}
