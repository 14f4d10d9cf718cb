package discovery

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"github.com/idaraty-prod/ultscan-cfw/content"
	"github.com/idaraty-prod/ultscan-cfw/dates"
	"github.com/idaraty-prod/ultscan-cfw/fetcher"
	"github.com/idaraty-prod/ultscan-cfw/scraper"
)

// DefaultMonitoringPages is the page limit of sources that are not deep
// scanned.
const DefaultMonitoringPages = 3

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Fetcher performs the HTTP requests of a harvest.
type Fetcher interface {
	Do(ctx context.Context, req fetcher.Request) (*fetcher.Response, error)
	Get(ctx context.Context, rawURL string) (*fetcher.Response, error)
	Head(ctx context.Context, rawURL string) (*fetcher.Response, error)
}

// HarvesterOptions holds run-level pagination settings.
type HarvesterOptions struct {
	// DeepScan is the default for sources without their own deep_scan flag.
	DeepScan bool
	// MonitoringPages replaces loop_end for sources that are not deep
	// scanned.
	MonitoringPages int
}

// Harvester walks the list pages of a source.
type Harvester struct {
	fetch   Fetcher
	history History
	opts    HarvesterOptions
	log     logrus.FieldLogger
}

// NewHarvester creates a harvester. history may be nil, in which case
// nothing counts as already processed.
func NewHarvester(fetch Fetcher, history History, opts HarvesterOptions, log logrus.FieldLogger) *Harvester {
	if opts.MonitoringPages <= 0 {
		opts.MonitoringPages = DefaultMonitoringPages
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Harvester{fetch: fetch, history: history, opts: opts, log: log}
}

// Harvest lazily yields the candidates of every list page of model. The walk
// ends at the first page that yields nothing. A failed page yields its error
// once and ends the walk too.
//
// Sources that are not deep scanned read at most MonitoringPages pages and
// drop links that were already processed, so a page of known links also
// ends the walk.
func (h *Harvester) Harvest(ctx context.Context, model *scraper.SourceModel) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		log := h.log.WithField("batch", model.BatchID)

		start, step, end := model.Pagination.Bounds()
		deep := model.IsDeepScan(h.opts.DeepScan)
		if !deep {
			end = h.opts.MonitoringPages
		}
		if model.Mode() == scraper.ModeRSS && !strings.Contains(scraper.Value(model.ListURL), scraper.PageCounterToken) {
			step, end = 1, start
		}

		for counter := start; counter <= end*step; counter += step {
			if err := ctx.Err(); err != nil {
				yield(Candidate{}, err)
				return
			}

			items, err := h.page(ctx, model, counter)
			if err != nil {
				log.WithError(err).WithField("page", counter).Warn("List page failed")
				yield(Candidate{}, err)
				return
			}

			fresh := 0
			for _, c := range items {
				if !deep && h.history != nil && h.history.Seen(c.Link) {
					continue
				}
				fresh++
				if !yield(c, nil) {
					return
				}
			}
			log.WithField("page", counter).Debugf("Found %d new items", fresh)
			if fresh == 0 {
				return
			}
		}
	}
}

func (h *Harvester) page(ctx context.Context, model *scraper.SourceModel, counter int) ([]Candidate, error) {
	switch model.Mode() {
	case scraper.ModeAPI:
		return h.apiPage(ctx, model, counter)
	case scraper.ModeRSS:
		return h.rssPage(ctx, model, counter)
	default:
		return h.htmlPage(ctx, model, counter)
	}
}

func pageURL(template string, counter int) string {
	return strings.ReplaceAll(template, scraper.PageCounterToken, strconv.Itoa(counter))
}

func (h *Harvester) htmlPage(ctx context.Context, model *scraper.SourceModel, counter int) ([]Candidate, error) {
	resp, err := h.fetch.Get(ctx, pageURL(scraper.Value(model.ListURL), counter))
	if err != nil {
		return nil, err
	}
	return ParseList(string(resp.Body), model, scraper.Value(model.ListURL))
}

// ParseList extracts the candidates of a list page. baseURL is the list URL
// template that relative links are resolved against.
func ParseList(body string, model *scraper.SourceModel, baseURL string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse list page: %w", err)
	}

	base, err := url.Parse(pageURL(baseURL, 1))
	if err != nil {
		base = nil
	}
	var rule *linkRule
	if base != nil {
		rule = ruleFor(base.Host)
	}

	var items []Candidate
	doc.Find(model.List.ItemSelector()).Each(func(_ int, item *goquery.Selection) {
		var link string
		if rule != nil && rule.itemHref && scraper.Present(model.List.Link) {
			link, _ = item.Attr("href")
		}
		if link == "" && scraper.Present(model.List.Link) {
			link = itemLink(item, *model.List.Link)
		}

		c := Candidate{
			Link:  ResolveLink(link, base, model.Lang),
			Title: strings.TrimSpace(content.Text(scraper.Find(item, model.List.Title))),
			Image: strings.TrimSpace(scraper.Find(item, model.List.Image)),
		}
		if raw := scraper.Find(item, model.List.Date); raw != "" {
			c.Date = dates.Normalize(raw, model.BatchID)
		}
		items = append(items, c)
	})
	return items, nil
}

// itemLink reads the link selector of a list item. A bare CSS selector
// reads the href of its first match.
func itemLink(item *goquery.Selection, expr string) string {
	sel := scraper.ParseSelector(expr)
	if sel.Attr != "" || sel.Text {
		v, _ := sel.First(item)
		return v
	}
	href, _ := sel.Nodes(item).First().Attr("href")
	return href
}

func (h *Harvester) apiPage(ctx context.Context, model *scraper.SourceModel, counter int) ([]Candidate, error) {
	api := model.API
	if api == nil {
		return nil, &scraper.ConfigError{BatchID: model.BatchID, Field: "api_endpoint", Reason: "required in api mode"}
	}
	key := scraper.Value(api.CounterKey)
	if _, ok := api.Data[key]; !ok {
		return nil, &scraper.ConfigError{BatchID: model.BatchID, Field: "api_nbr_key", Reason: fmt.Sprintf("%q not found in api_data", key)}
	}

	payload := maps.Clone(api.Data)
	payload[key] = strconv.Itoa(counter)

	header := http.Header{}
	setHeader(header, "Accept", api.Accept)
	setHeader(header, "Accept-Language", api.AcceptLanguage)
	setHeader(header, "Content-Type", api.ContentType)
	setHeader(header, "X-Requested-With", api.RequestedWith)

	req := fetcher.Request{
		Method: api.HTTPMethod(),
		URL:    scraper.Value(api.Endpoint),
		Header: header,
	}
	if req.Method == http.MethodGet {
		u, err := url.Parse(req.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid api endpoint: %w", err)
		}
		q := u.Query()
		for k, v := range formValues(payload) {
			q[k] = v
		}
		u.RawQuery = q.Encode()
		req.URL = u.String()
	} else {
		body, err := encodePayload(payload, api, header)
		if err != nil {
			return nil, err
		}
		req.Body = body
	}

	resp, err := h.fetch.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	base := scraper.Value(model.ListURL)
	if base == "" {
		base = scraper.Value(api.Endpoint)
	}
	return parseAPIResult(resp.Body, model, base)
}

// encodePayload builds the request body. Payloads are form-encoded unless
// the configured content type is JSON and encoding was not requested.
func encodePayload(payload map[string]any, api *scraper.APIConfig, header http.Header) ([]byte, error) {
	if !api.Encode && strings.Contains(header.Get("Content-Type"), "json") {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode api payload: %w", err)
		}
		return body, nil
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return []byte(formValues(payload).Encode()), nil
}

func formValues(payload map[string]any) url.Values {
	values := url.Values{}
	for k, v := range payload {
		if s, ok := v.(string); ok {
			values.Set(k, s)
			continue
		}
		values.Set(k, fmt.Sprint(v))
	}
	return values
}

func setHeader(header http.Header, name string, value *string) {
	if scraper.Present(value) {
		header.Set(name, *value)
	}
}

func parseAPIResult(body []byte, model *scraper.SourceModel, base string) ([]Candidate, error) {
	api := model.API
	var result any = string(body)

	if strings.EqualFold(scraper.Value(api.ResultType), "json") {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode api response: %w", err)
		}
		result = decoded
		if obj, ok := decoded.(map[string]any); ok {
			result = obj[api.ResultKeyOrDefault()]
		}
	}

	if strings.EqualFold(scraper.Value(api.LoopMode), scraper.ModeHTML) {
		fragment, ok := result.(string)
		if !ok {
			return nil, fmt.Errorf("api result for %s is not html", model.BatchID)
		}
		return ParseList(fragment, model, base)
	}

	list, ok := result.([]any)
	if !ok {
		return nil, nil
	}
	baseURL, err := url.Parse(pageURL(base, 1))
	if err != nil {
		baseURL = nil
	}

	var items []Candidate
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		c := Candidate{
			Link:  ResolveLink(stringField(obj, "link"), baseURL, model.Lang),
			Title: strings.TrimSpace(stringField(obj, "title")),
			Image: stringField(obj, "image"),
		}
		if raw := stringField(obj, "date"); raw != "" {
			c.Date = dates.Normalize(raw, model.BatchID)
		}
		items = append(items, c)
	}
	return items, nil
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (h *Harvester) rssPage(ctx context.Context, model *scraper.SourceModel, counter int) ([]Candidate, error) {
	resp, err := h.fetch.Get(ctx, pageURL(scraper.Value(model.ListURL), counter))
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		c := Candidate{
			Link:  strings.TrimSpace(item.Link),
			Title: strings.TrimSpace(item.Title),
			Date:  item.Published,
		}
		if item.Image != nil {
			c.Image = item.Image.URL
		}
		for _, enc := range item.Enclosures {
			if c.Image == "" && strings.HasPrefix(enc.Type, "image/") {
				c.Image = enc.URL
			}
		}
		items = append(items, c)
	}
	return items, nil
}
