package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/idaraty-prod/ultscan-cfw/content"
	"github.com/idaraty-prod/ultscan-cfw/dates"
	"github.com/idaraty-prod/ultscan-cfw/newsfeed"
	"github.com/idaraty-prod/ultscan-cfw/scraper"
)

// ImageSaver stores the cover image of a record under its slug.
type ImageSaver interface {
	Save(ctx context.Context, imageURL, slug string) (string, error)
}

// Extractor turns candidates into records by scraping their detail page.
type Extractor struct {
	fetch  Fetcher
	images ImageSaver
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewExtractor creates an extractor. images may be nil to skip image
// downloads.
func NewExtractor(fetch Fetcher, images ImageSaver, log logrus.FieldLogger) *Extractor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Extractor{fetch: fetch, images: images, log: log, now: time.Now}
}

// Extract scrapes the detail page of c. It returns an error wrapping
// ErrRejected when the page has no title or no content, and the fetch error
// when the page could not be downloaded.
func (e *Extractor) Extract(ctx context.Context, model *scraper.SourceModel, c Candidate) (*newsfeed.Record, error) {
	log := e.log.WithFields(logrus.Fields{"batch": model.BatchID, "url": c.Link})

	resp, err := e.fetch.Get(ctx, c.Link)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch detail page: %w", err)
	}
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail page: %w", err)
	}

	art := model.Article
	root := page.Selection

	title := content.CleanTitle(content.Text(scraper.Find(root, art.Title)))
	if title == "" {
		title = content.CleanTitle(c.Title)
	}
	body := scraper.Find(root, art.Content)

	date := c.Date
	if date == "" {
		date = scraper.Find(root, art.Date)
	}
	deadline := scraper.Find(root, art.Deadline)
	if deadline == "" {
		deadline = date
	}

	lang := model.Lang
	for _, hook := range langHooks {
		if strings.Contains(hostOf(c.Link), hook.host) {
			lang = hook.lang(c.Link)
		}
	}

	rec := &newsfeed.Record{
		Langs:               lang,
		RubriqueWebsite:     scraper.Value(model.RubriqueWebsite),
		Organizations:       scraper.Value(model.Organizations),
		Themes:              scraper.Value(model.Themes),
		EligibilityCriteria: scraper.Find(root, art.Eligibility),
		ExtractedAt:         e.now().Format(dates.DateTimeLayout),
		Tags:                tags(root, art.Tags),
	}
	rec.Title.Set(lang, title)

	if strings.TrimSpace(body) != "" {
		body = content.Prepare(body)
		rec.ContentHTML, err = content.Minify(body)
		if err != nil {
			log.WithError(err).Debug("Minify failed, keeping raw content")
			rec.ContentHTML = body
		}
		text, err := content.PlainText(body)
		if err != nil {
			return nil, fmt.Errorf("failed to clean content: %w", err)
		}
		rec.Content.Set(lang, text)
		rec.Excerpt.Set(lang, content.Excerpt(text))
	}

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRejected, c.Link, err)
	}

	rec.Slug = content.Slug(title)

	identity := c.Link
	if !keepRawIdentity(model) {
		identity = content.EncodeIdentity(c.Link)
	}
	rec.Sources = identity
	rec.SourceURL = identity

	imageURL := e.imageURL(model, root, c)
	rec.ImageURL = imageURL
	downloadURL := imageURL
	if downloadURL != "" && !strings.Contains(downloadURL, "http") {
		downloadURL = siteRoot(homeURL(model, c.Link)) + "/" + strings.TrimPrefix(downloadURL, "/")
	}
	if downloadURL != "" && e.images != nil {
		name, err := e.images.Save(ctx, downloadURL, rec.Slug)
		if err != nil {
			log.WithError(err).WithField("image", downloadURL).Info("Image not kept")
		}
		rec.ImageName = name
	}

	rec.ApplyURL = applyURL(root, art.ApplyURL)
	if rec.ApplyURL == "" && model.GuessApplyURL && rec.ContentHTML != "" {
		rec.ApplyURL = content.GuessApplyURL(rec.ContentHTML)
	}

	if deadline != "" {
		rec.Deadline, err = dates.Deadline(deadline, scraper.Value(art.DeadlineFormat), model.BatchID)
		if err != nil {
			log.WithError(err).Debug("Deadline kept raw")
		}
	}
	if date != "" {
		rec.PublishedAt, err = e.published(model, date)
		if err != nil {
			log.WithError(err).Debug("Publish date kept raw")
		}
	}
	if rec.PublishedAt == "" && downloadURL != "" {
		rec.PublishedAt = e.headerDate(ctx, downloadURL, log)
	}

	for _, hook := range pageHooks {
		if strings.Contains(hostOf(c.Link), hook.host) {
			hook.apply(rec, page, c.Link)
		}
	}

	if raw := scraper.Find(root, art.DocumentURL); raw != "" {
		rec.DocumentURL = resolveAgainst(resp.FinalURL, strings.TrimSpace(raw))
		rec.DocumentTitle = strings.TrimSpace(content.Text(scraper.Find(root, art.DocumentTitle)))
	}

	return rec, nil
}

func (e *Extractor) published(model *scraper.SourceModel, raw string) (string, error) {
	format := scraper.Value(model.Article.DateFormat)
	if format == "" && model.Mode() == scraper.ModeRSS {
		return dates.FromHeader(raw)
	}
	return dates.Published(raw, format, model.BatchID)
}

// imageURL picks the detail image, then the list image, then the page's
// og:image, and rehosts path-absolute results onto the source's site.
func (e *Extractor) imageURL(model *scraper.SourceModel, root *goquery.Selection, c Candidate) string {
	img := strings.TrimSpace(scraper.Find(root, model.Article.Image))
	if img == "" {
		img = strings.TrimSpace(c.Image)
	}
	if img == "" {
		img, _ = root.Find(`meta[property="og:image"]`).Attr("content")
		img = strings.TrimSpace(img)
	}

	img = rewriteImage(img, model.BatchID)
	if strings.HasPrefix(img, "/") && !strings.HasPrefix(img, "//") {
		if site := siteRoot(homeURL(model, c.Link)); site != "" {
			img = site + img
		}
	}
	return img
}

// headerDate reads the publish date from the image's Last-Modified or Date
// header. Failures leave the date empty.
func (e *Extractor) headerDate(ctx context.Context, imageURL string, log logrus.FieldLogger) string {
	resp, err := e.fetch.Head(ctx, imageURL)
	if err != nil {
		log.WithError(err).Debug("Image header check failed")
		return ""
	}
	value := resp.Header.Get("Last-Modified")
	if value == "" {
		value = resp.Header.Get("Date")
	}
	published, err := dates.FromHeader(value)
	if err != nil {
		return ""
	}
	return published
}

// homeURL returns the URL relative images are rehosted on.
func homeURL(model *scraper.SourceModel, link string) string {
	switch {
	case scraper.Present(model.HomeURL):
		return *model.HomeURL
	case scraper.Present(model.ListURL):
		return *model.ListURL
	default:
		return link
	}
}

// tags joins the text of every tag node with ";".
func tags(root *goquery.Selection, expr *string) string {
	if !scraper.Present(expr) {
		return ""
	}
	var out []string
	for _, tag := range scraper.ParseSelector(*expr).All(root) {
		tag = strings.TrimSpace(content.StripTags(tag))
		out = append(out, strings.ReplaceAll(tag, ";", ","))
	}
	return strings.Join(out, ";")
}

// applyURL reads the last match of the apply selector: its href when it is
// a link, otherwise the selected value.
func applyURL(root *goquery.Selection, expr *string) string {
	if !scraper.Present(expr) {
		return ""
	}
	sel := scraper.ParseSelector(*expr)
	if sel.Attr != "" || sel.Text {
		v, _ := sel.Last(root)
		return strings.TrimSpace(v)
	}

	last := sel.Nodes(root).Last()
	if last.Length() == 0 {
		return ""
	}
	if href, ok := last.Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	html, _ := goquery.OuterHtml(last)
	return html
}

func resolveAgainst(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// IsRejected reports whether err is a rejection rather than a failure.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
