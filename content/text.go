package content

import (
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
)

// ExcerptLength is the longest text kept as-is. Longer text is cut so the
// excerpt, ellipsis included, is one character longer than this.
const ExcerptLength = 150

const ellipsis = "..."

const suffixLetters = "abcdefghijklmnopqrstuvwxyz"

var urlLinePattern = regexp.MustCompile(`(?m)^https?://.*[\r\n]*`)

// RemoveURLs drops every line that starts with a URL.
func RemoveURLs(text string) string {
	return urlLinePattern.ReplaceAllString(text, "")
}

// Excerpt returns text without its URL lines, truncated and suffixed with
// "..." when longer than ExcerptLength characters.
func Excerpt(text string) string {
	r := []rune(RemoveURLs(text))
	if len(r) > ExcerptLength {
		keep := ExcerptLength + 1 - len(ellipsis)
		return string(r[:keep]) + ellipsis
	}
	return string(r)
}

// Slug transliterates title to an ASCII slug and appends a random
// six-letter suffix so identical titles get distinct slugs.
func Slug(title string) string {
	suffix := RandomLetters(6)
	base := slug.Make(title)
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}

// RandomLetters returns n random lowercase ASCII letters.
func RandomLetters(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixLetters[rand.IntN(len(suffixLetters))]
	}
	return string(b)
}

// CleanTitle trims a title and removes tabs and newlines.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.ReplaceAll(title, "\t", "")
	return strings.ReplaceAll(title, "\n", "")
}
