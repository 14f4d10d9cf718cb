package scraper

import (
	"fmt"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ConfigError reports a malformed or missing source table field. It is fatal
// for the source it names and nothing else.
type ConfigError struct {
	BatchID string
	Field   string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.BatchID == "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("config %s: %s: %s", e.BatchID, e.Field, e.Reason)
}

func (m *SourceModel) configErr(field, reason string) *ConfigError {
	return &ConfigError{BatchID: m.BatchID, Field: field, Reason: reason}
}

// Validate checks that every field required by the extraction mode is
// present. It also decodes the API payload template.
func (m *SourceModel) Validate() error {
	if strings.TrimSpace(m.BatchID) == "" {
		return m.configErr("batch_id", "required")
	}

	switch m.Lang {
	case LangAR, LangFR, LangEN:
	default:
		return m.configErr("lang", fmt.Sprintf("must be AR, FR or EN, got %q", m.Lang))
	}

	switch m.ExtractionMode {
	case "", ModeHTML, ModeAPI, ModeRSS:
	default:
		return m.configErr("extraction_mode", fmt.Sprintf("unknown mode %q", m.ExtractionMode))
	}

	if !Present(m.Article.Content) {
		return m.configErr("single_content", "required")
	}

	switch m.Mode() {
	case ModeHTML:
		if !Present(m.ListURL) {
			return m.configErr("page_actu_loop", "required in html mode")
		}
		if err := checkURL(Value(m.ListURL)); err != nil {
			return m.configErr("page_actu_loop", err.Error())
		}
		if !Present(m.List.Item) {
			return m.configErr("reg_li", "required in html mode")
		}
	case ModeRSS:
		if !Present(m.ListURL) {
			return m.configErr("page_actu_loop", "required in rss mode")
		}
	case ModeAPI:
		return m.validateAPI()
	}

	return nil
}

func (m *SourceModel) validateAPI() error {
	api := m.API
	if api == nil || !Present(api.Endpoint) {
		return m.configErr("api_endpoint", "required in api mode")
	}
	if err := checkURL(Value(api.Endpoint)); err != nil {
		return m.configErr("api_endpoint", err.Error())
	}
	if !Present(api.CounterKey) {
		return m.configErr("api_nbr_key", "required in api mode")
	}

	data, err := DecodePayload(Value(api.DataRaw))
	if err != nil {
		return m.configErr("api_data", err.Error())
	}
	if _, ok := data[*api.CounterKey]; !ok {
		return m.configErr("api_nbr_key", fmt.Sprintf("%q not found in api_data", *api.CounterKey))
	}
	api.Data = data

	if strings.EqualFold(Value(api.LoopMode), ModeHTML) && !Present(m.List.Item) {
		return m.configErr("reg_li", "required when api_loop_mode is html")
	}
	return nil
}

// DecodePayload decodes an API payload template. Single-quoted objects, as
// they appear in hand-edited tables, are accepted too.
func DecodePayload(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err == nil {
		return data, nil
	}
	if err := json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &data); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	return data, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(strings.ReplaceAll(raw, PageCounterToken, "1"))
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https")
	}
	return nil
}
