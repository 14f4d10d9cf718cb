package state

import (
	"fmt"
	"strings"

	"github.com/idaraty-prod/ultscan-cfw/content"
)

// Hosts whose post identities are stored encoded. Their URLs carry
// short-lived tokens that do not survive decoding.
var encodedHosts = []string{"mtcen.gov.tn"}

// Paths locates the three stores.
type Paths struct {
	Posts        string
	Images       string
	Publications string
}

// Tracker holds the processed post, image and publication URLs of a run.
type Tracker struct {
	Posts        *URLSet
	Images       *URLSet
	Publications *URLSet

	posts        *CSVStore
	images       *CSVStore
	publications *CSVStore
}

// Load reads the three stores.
func Load(paths Paths) (*Tracker, error) {
	t := &Tracker{
		posts:        NewCSVStore(paths.Posts),
		images:       NewCSVStore(paths.Images),
		publications: NewCSVStore(paths.Publications),
	}

	var err error
	if t.Posts, err = t.posts.Load(); err != nil {
		return nil, fmt.Errorf("failed to load processed posts: %w", err)
	}
	if t.Images, err = t.images.Load(); err != nil {
		return nil, fmt.Errorf("failed to load processed images: %w", err)
	}
	if t.Publications, err = t.publications.Load(); err != nil {
		return nil, fmt.Errorf("failed to load processed publications: %w", err)
	}
	return t, nil
}

// Seen reports whether a post link was already processed, in its raw,
// encoded or decoded form.
func (t *Tracker) Seen(link string) bool {
	if link == "" {
		return false
	}
	return t.Posts.Contains(link) ||
		t.Posts.Contains(content.EncodeIdentity(link)) ||
		t.Posts.Contains(content.DecodeIdentity(link))
}

// MarkPost records the identity of an extracted post.
func (t *Tracker) MarkPost(identity string) bool {
	return t.Posts.Add(identity)
}

// MarkImage records the URL of a record's cover image.
func (t *Tracker) MarkImage(url string) bool {
	return t.Images.Add(url)
}

// MarkPublication records the URL of a document attached to a post.
func (t *Tracker) MarkPublication(url string) bool {
	return t.Publications.Add(url)
}

// Persist appends the values added during the run to their stores. Post
// identities are stored decoded, except for hosts listed in encodedHosts.
func (t *Tracker) Persist() error {
	added := t.Posts.Added()
	posts := make([]string, 0, len(added))
	for _, identity := range added {
		posts = append(posts, storedIdentity(identity))
	}

	if err := t.posts.Append(posts); err != nil {
		return err
	}
	if err := t.images.Append(t.Images.Added()); err != nil {
		return err
	}
	return t.publications.Append(t.Publications.Added())
}

func storedIdentity(identity string) string {
	for _, host := range encodedHosts {
		if strings.Contains(identity, host) {
			return identity
		}
	}
	return content.DecodeIdentity(identity)
}
