// Package content turns scraped article fragments into the HTML and plain
// text stored with each record.
package content

import (
	"fmt"
	stdhtml "html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

// shareCaption is the text left behind by a share widget that survives tag
// removal on several sources.
const shareCaption = "Facebook Twitter LinkedIn Whatsapp Share via Email Print"

// Boilerplate blocks removed before extracting text.
var boilerplate = []string{
	"script",
	"style",
	"ul.breadcrumb",
	"div.post-meta",
	"div.addtoany_share_save_container.addtoany_content.addtoany_content_top",
	"div.news-single-backlink",
	"div.post-footer",
	"ul.metas",
	"div.shareBar",
	"div.article-comments",
	"div.news__image.col-sm-6",
	"span.reforme_date",
	"ul.joomla_add_this",
	"div.addthis_inline_share_toolbox",
	"div.ssba.ssba-wrap",
	"div.btn-flip-container",
	"div.cmsImg",
	"div.cmsDate",
	"div.outils1",
	"div.mainFig",
	"div.share-links",
	"div.atclear",
	"div.addthis_toolbox",
	"figure.wp-block-image.size-large",
}

var (
	tagPattern = regexp.MustCompile(`(?s)<.*?>`)
	minifier   = newMinifier()
)

func newMinifier() *minify.M {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	return m
}

// Prepare replaces non-breaking spaces and collapses doubled spaces.
func Prepare(fragment string) string {
	fragment = strings.ReplaceAll(fragment, "\u00a0", " ")
	return strings.ReplaceAll(fragment, "  ", " ")
}

// Minify compacts an HTML fragment, dropping comments and redundant
// whitespace but keeping its structure.
func Minify(fragment string) (string, error) {
	out, err := minifier.String("text/html", fragment)
	if err != nil {
		return "", fmt.Errorf("failed to minify content: %w", err)
	}
	return out, nil
}

// PlainText strips boilerplate blocks and markup from an HTML fragment and
// returns its text, one non-blank phrase per line.
func PlainText(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("failed to parse content: %w", err)
	}
	for _, sel := range boilerplate {
		doc.Find(sel).Remove()
	}

	var chunks []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}

	text := strings.Join(chunks, "\n")
	text = StripTags(text)
	text = strings.ReplaceAll(text, shareCaption, "")
	return strings.TrimSpace(text), nil
}

// StripTags removes anything that looks like a tag.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// Text returns the text content of a fragment. Fragments without markup
// are only unescaped.
func Text(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return stdhtml.UnescapeString(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return StripTags(fragment)
	}
	return doc.Text()
}

// Links returns the href of every anchor in an HTML fragment, skipping bare
// "#" anchors.
func Links(fragment string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if href, _ := a.Attr("href"); href != "#" {
			links = append(links, href)
		}
	})
	return links
}

// GuessApplyURL returns the last link of a fragment that is not a share
// widget link, or "" when there is none.
func GuessApplyURL(fragment string) string {
	links := Links(fragment)
	for i := len(links) - 1; i >= 0; i-- {
		if !strings.Contains(links[i], "www.addtoany.com") {
			return links[i]
		}
	}
	return ""
}
