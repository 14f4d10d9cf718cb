package discovery

import (
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/idaraty-prod/ultscan-cfw/dates"
	"github.com/idaraty-prod/ultscan-cfw/newsfeed"
	"github.com/idaraty-prod/ultscan-cfw/scraper"
)

// linkRule adjusts relative list links for one host. Rules match on a
// substring of the list page host and apply in table order.
type linkRule struct {
	host string
	// root is appended to scheme+host before the relative link.
	root string
	// itemHref takes the link from the list item's own href.
	itemHref bool
	rewrite  func(link, lang string) string
}

var linkRules = []linkRule{
	{host: "www.pm.gov.tn", root: "/pm/actualites"},
	{host: "tunisair.com.tn", root: "/site/publish/content", itemHref: true},
	{host: "enf.fin.tn", rewrite: func(link, _ string) string {
		if strings.Contains(link, "../") {
			return strings.ReplaceAll(link, "../", "")
		}
		return strings.ReplaceAll(link, "/index", "/ar/index")
	}},
	{host: "intt.tn", rewrite: func(link, lang string) string {
		return strings.ReplaceAll(link, "/index", "/"+strings.ToLower(lang)+"/index")
	}},
}

// imageRule rewrites image URLs for the listed batches.
type imageRule struct {
	batches []string
	from    string
	to      string
}

var imageRules = []imageRule{
	{batches: []string{"pm-ar", "pm-fr"}, from: "../", to: "http://www.pm.gov.tn/pm/"},
	{batches: []string{"onthemove-news"}, from: "/sites/default/", to: "https://on-the-move.org/sites/default/"},
}

// pageHook overrides record fields for hosts whose pages disagree with the
// source model. Hooks run after the record is complete.
type pageHook struct {
	host  string
	apply func(rec *newsfeed.Record, page *goquery.Document, link string)
}

var pageHooks = []pageHook{
	{host: "igppp.tn", apply: func(rec *newsfeed.Record, page *goquery.Document, _ string) {
		updated, ok := page.Find(`meta[property="og:updated_time"]`).Attr("content")
		if !ok {
			return
		}
		if published, err := dates.FromISO(updated); err == nil {
			rec.PublishedAt = published
		}
	}},
}

// langHook picks the record language from the link for hosts that publish
// every language under one source.
type langHook struct {
	host string
	lang func(link string) string
}

var langHooks = []langHook{
	{host: "intes.rnu.tn", lang: func(link string) string {
		if strings.Contains(link, "---") {
			return scraper.LangAR
		}
		return scraper.LangFR
	}},
}

// rawIdentityBatches keep their source URL unencoded.
var rawIdentityBatches = []string{"mini-technologie-ar", "mini-technologie-fr", "pm-ar", "pm-fr"}

func keepRawIdentity(model *scraper.SourceModel) bool {
	if model.KeepRawSourceURL != nil && *model.KeepRawSourceURL {
		return true
	}
	return slices.Contains(rawIdentityBatches, model.BatchID)
}

func ruleFor(host string) *linkRule {
	for i := range linkRules {
		if strings.Contains(host, linkRules[i].host) {
			return &linkRules[i]
		}
	}
	return nil
}

// ResolveLink makes a list link absolute against the list page URL base,
// applying the host's article root and rewrites. Absolute links are returned
// unchanged.
func ResolveLink(link string, base *url.URL, lang string) string {
	link = strings.TrimSpace(link)
	if link == "" || isAbsolute(link) || base == nil {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}

	host := base.Scheme + "://" + base.Host
	for _, rule := range linkRules {
		if strings.Contains(base.Host, rule.host) {
			host += rule.root
		}
	}
	link = host + link

	for _, rule := range linkRules {
		if rule.rewrite != nil && strings.Contains(base.Host, rule.host) {
			link = rule.rewrite(link, lang)
		}
	}
	return link
}

func rewriteImage(imageURL, batchID string) string {
	for _, rule := range imageRules {
		if slices.Contains(rule.batches, batchID) {
			imageURL = strings.ReplaceAll(imageURL, rule.from, rule.to)
		}
	}
	return imageURL
}

func isAbsolute(link string) bool {
	u, err := url.Parse(link)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// siteRoot returns scheme://host of raw, or "" when raw has no host.
func siteRoot(raw string) string {
	u, err := url.Parse(strings.ReplaceAll(raw, scraper.PageCounterToken, "1"))
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
