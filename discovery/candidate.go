// Package discovery walks a source's list pages and turns each listed
// article into a normalized record.
package discovery

import (
	"errors"
)

// ErrRejected marks a candidate that did not produce a record, either
// because its detail page had no title or no content.
var ErrRejected = errors.New("candidate rejected")

// Candidate is an article reference found on a list page. Date is the list
// date run through the date normalizer, or the raw item date of a feed.
type Candidate struct {
	Title string
	Link  string
	Date  string
	Image string
}

// History reports whether a link was already processed.
type History interface {
	Seen(link string) bool
}
