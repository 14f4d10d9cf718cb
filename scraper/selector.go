package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selector is a CSS selector optionally suffixed with a pseudo-element:
// "::text" selects the element's own text nodes and "::attr(name)" selects an
// attribute. Without a suffix the element's outer HTML is selected.
type Selector struct {
	CSS  string
	Attr string
	Text bool
}

// ParseSelector splits a selector expression into its CSS and pseudo parts.
func ParseSelector(expr string) Selector {
	expr = strings.TrimSpace(expr)
	idx := strings.LastIndex(expr, "::")
	if idx < 0 {
		return Selector{CSS: expr}
	}

	sel := Selector{CSS: strings.TrimSpace(expr[:idx])}
	pseudo := expr[idx+2:]
	switch {
	case pseudo == "text":
		sel.Text = true
	case strings.HasPrefix(pseudo, "attr(") && strings.HasSuffix(pseudo, ")"):
		sel.Attr = strings.TrimSpace(pseudo[len("attr(") : len(pseudo)-1])
	default:
		// Unknown pseudo: treat the whole expression as CSS.
		sel.CSS = expr
	}
	return sel
}

// Nodes returns the elements matched by the CSS part, relative to root. An
// empty CSS part selects root itself.
func (s Selector) Nodes(root *goquery.Selection) *goquery.Selection {
	if s.CSS == "" {
		return root
	}
	return root.Find(s.CSS)
}

// First returns the value of the first match, mirroring a ".get()" call.
func (s Selector) First(root *goquery.Selection) (string, bool) {
	var (
		out   string
		found bool
	)
	s.Nodes(root).EachWithBreak(func(_ int, node *goquery.Selection) bool {
		out, found = s.value(node)
		return !found
	})
	return out, found
}

// All returns the value of every match.
func (s Selector) All(root *goquery.Selection) []string {
	var out []string
	s.Nodes(root).Each(func(_ int, node *goquery.Selection) {
		if v, ok := s.value(node); ok {
			out = append(out, v)
		}
	})
	return out
}

// Last returns the value of the last match.
func (s Selector) Last(root *goquery.Selection) (string, bool) {
	all := s.All(root)
	if len(all) == 0 {
		return "", false
	}
	return all[len(all)-1], true
}

func (s Selector) value(node *goquery.Selection) (string, bool) {
	switch {
	case s.Attr != "":
		return node.Attr(s.Attr)
	case s.Text:
		text := ownText(node)
		return text, text != ""
	default:
		html, err := goquery.OuterHtml(node)
		if err != nil {
			return "", false
		}
		return html, true
	}
}

// ownText returns the first non-blank text node directly under node.
func ownText(node *goquery.Selection) string {
	var text string
	node.Contents().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if goquery.NodeName(child) != "#text" {
			return true
		}
		if t := strings.TrimSpace(child.Text()); t != "" {
			text = child.Text()
			return false
		}
		return true
	})
	return text
}

// Find evaluates an optional selector expression against root. It returns
// "" when the expression is absent or matches nothing.
func Find(root *goquery.Selection, expr *string) string {
	if !Present(expr) {
		return ""
	}
	v, _ := ParseSelector(*expr).First(root)
	return v
}
