// Package images downloads record cover images and keeps only those large
// enough to be used as covers.
package images

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/idaraty-prod/ultscan-cfw/fetcher"
)

// MinCoverSize is the dimension both sides of an image must stay under to
// be rejected as a cover.
const MinCoverSize = 205

// ErrRejected marks an image that was not kept.
var ErrRejected = errors.New("image rejected")

// Getter downloads a resource.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetcher.Response, error)
}

// Pipeline stores cover images under a directory.
type Pipeline struct {
	dir   string
	fetch Getter
	log   logrus.FieldLogger
}

// NewPipeline creates a pipeline writing into dir.
func NewPipeline(dir string, fetch Getter, log logrus.FieldLogger) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{dir: dir, fetch: fetch, log: log}
}

// Save downloads imageURL as <slug><ext> and checks its dimensions. It
// returns the name of the file on disk, or "" and an error when the image
// was not kept.
func (p *Pipeline) Save(ctx context.Context, imageURL, slug string) (string, error) {
	dest := filepath.Join(p.dir, slug+Extension(imageURL))

	if _, err := p.Acquire(ctx, imageURL, dest); err != nil {
		return "", err
	}

	stored := existing(dest)
	ok, err := FilterCoverImage(stored)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s is smaller than %dpx", ErrRejected, imageURL, MinCoverSize)
	}
	return filepath.Base(stored), nil
}

// Acquire downloads imageURL to dest with a lowercased file name. It returns
// false and no error when the file already exists under either name. A body
// that decodes as UTF-8 text is an error page, not an image, and is
// rejected.
func (p *Pipeline) Acquire(ctx context.Context, imageURL, dest string) (bool, error) {
	if fileExists(dest) || fileExists(lowerName(dest)) {
		p.log.WithField("path", dest).Debug("Image already exists")
		return false, nil
	}

	resp, err := p.fetch.Get(ctx, imageURL)
	if err != nil {
		return false, fmt.Errorf("failed to download image: %w", err)
	}
	if utf8.Valid(resp.Body) {
		return false, fmt.Errorf("%w: %s returned text", ErrRejected, imageURL)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, fmt.Errorf("failed to create image directory: %w", err)
	}
	if err := os.WriteFile(lowerName(dest), resp.Body, 0o644); err != nil {
		return false, fmt.Errorf("failed to write image: %w", err)
	}
	return true, nil
}

// FilterCoverImage reports whether the image at path can serve as a cover.
// Images whose width and height are both under MinCoverSize are deleted.
// Files that cannot be decoded are left in place and reported as unusable.
func FilterCoverImage(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, nil
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return false, nil
	}

	if cfg.Width < MinCoverSize && cfg.Height < MinCoverSize {
		if err := os.Remove(path); err != nil {
			return false, fmt.Errorf("failed to remove small image: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// Extension returns the file extension of a URL's path, such as ".jpg".
func Extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}

// existing returns dest, or its lowercase-name form when only that exists.
func existing(dest string) string {
	if lower := lowerName(dest); !fileExists(dest) && fileExists(lower) {
		return lower
	}
	return dest
}

// lowerName lowercases the file name of path, leaving its directory as is.
func lowerName(path string) string {
	return filepath.Join(filepath.Dir(path), strings.ToLower(filepath.Base(path)))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
