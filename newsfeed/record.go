package newsfeed

import (
	"errors"
	"strings"
	"sync"
)

// ErrInvalidRecord is returned by Validate for records missing a title or
// content.
var ErrInvalidRecord = errors.New("record has no title or no content")

// Columns is the output column order.
var Columns = []string{
	"slug", "title_en", "title_fr", "title_ar",
	"excerpt_en", "excerpt_fr", "excerpt_ar",
	"tags", "sources", "source_url", "apply_url", "image_url", "image_name",
	"langs", "published_at", "extracted_at", "deadline",
	"rubrique_website", "themes", "organizations", "eligibility_criteria",
	"content_en", "content_fr", "content_ar", "content_html",
}

// Text is a value in each of the three output languages. Only the one
// matching the record's language is set.
type Text struct {
	EN string
	FR string
	AR string
}

// Get returns the value for lang (AR, FR or EN).
func (t Text) Get(lang string) string {
	switch strings.ToUpper(lang) {
	case "AR":
		return t.AR
	case "FR":
		return t.FR
	case "EN":
		return t.EN
	}
	return ""
}

// Set stores v for lang (AR, FR or EN). Other languages are ignored.
func (t *Text) Set(lang, v string) {
	switch strings.ToUpper(lang) {
	case "AR":
		t.AR = v
	case "FR":
		t.FR = v
	case "EN":
		t.EN = v
	}
}

// Record is one normalized post.
type Record struct {
	Slug                string
	Title               Text
	Excerpt             Text
	Content             Text
	Tags                string
	Sources             string
	SourceURL           string
	ApplyURL            string
	ImageURL            string
	ImageName           string
	Langs               string
	PublishedAt         string
	ExtractedAt         string
	Deadline            string
	RubriqueWebsite     string
	Themes              string
	Organizations       string
	EligibilityCriteria string
	ContentHTML         string

	// Attached document, if any. Not written to the output.
	DocumentURL   string
	DocumentTitle string
}

// Validate rejects records without a title or without content in their
// language.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.Title.Get(r.Langs)) == "" || strings.TrimSpace(r.Content.Get(r.Langs)) == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Values returns the record's fields in Columns order.
func (r *Record) Values() []string {
	return []string{
		r.Slug, r.Title.EN, r.Title.FR, r.Title.AR,
		r.Excerpt.EN, r.Excerpt.FR, r.Excerpt.AR,
		r.Tags, r.Sources, r.SourceURL, r.ApplyURL, r.ImageURL, r.ImageName,
		r.Langs, r.PublishedAt, r.ExtractedAt, r.Deadline,
		r.RubriqueWebsite, r.Themes, r.Organizations, r.EligibilityCriteria,
		r.Content.EN, r.Content.FR, r.Content.AR, r.ContentHTML,
	}
}

// recordFromValues maps a row read with the given header back to a record.
func recordFromValues(header, values []string) Record {
	get := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(values) {
			get[strings.TrimPrefix(name, "\ufeff")] = values[i]
		}
	}
	return Record{
		Slug:                get["slug"],
		Title:               Text{EN: get["title_en"], FR: get["title_fr"], AR: get["title_ar"]},
		Excerpt:             Text{EN: get["excerpt_en"], FR: get["excerpt_fr"], AR: get["excerpt_ar"]},
		Content:             Text{EN: get["content_en"], FR: get["content_fr"], AR: get["content_ar"]},
		Tags:                get["tags"],
		Sources:             get["sources"],
		SourceURL:           get["source_url"],
		ApplyURL:            get["apply_url"],
		ImageURL:            get["image_url"],
		ImageName:           get["image_name"],
		Langs:               get["langs"],
		PublishedAt:         get["published_at"],
		ExtractedAt:         get["extracted_at"],
		Deadline:            get["deadline"],
		RubriqueWebsite:     get["rubrique_website"],
		Themes:              get["themes"],
		Organizations:       get["organizations"],
		EligibilityCriteria: get["eligibility_criteria"],
		ContentHTML:         get["content_html"],
	}
}

// Accumulator collects the records of a run. It is safe for concurrent use.
type Accumulator struct {
	mu      sync.Mutex
	records []Record
}

// Add appends a record.
func (a *Accumulator) Add(r Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, r)
}

// Records returns a copy of the collected records.
func (a *Accumulator) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Record(nil), a.records...)
}

// Len returns the number of collected records.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}
