package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idaraty-prod/ultscan-cfw/fetcher"
)

// Test helper: PNG bytes of the given size
func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// Test helper: a pipeline writing into a temporary directory
func createTestPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	log, _ := test.NewNullLogger()
	dir := t.TempDir()
	return NewPipeline(dir, fetcher.New(fetcher.Options{Timeout: time.Second}, log), log), dir
}

func serveBytes(t *testing.T, body []byte, calls *atomic.Int32) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

// TestFilterCoverImage_SmallRejected verifies a 100x100 image is deleted
func TestFilterCoverImage_SmallRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.png")
	require.NoError(t, os.WriteFile(path, createTestPNG(t, 100, 100), 0o644))

	ok, err := FilterCoverImage(path)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, path)
}

// TestFilterCoverImage_LargeKept verifies a 300x300 image is retained
func TestFilterCoverImage_LargeKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.png")
	require.NoError(t, os.WriteFile(path, createTestPNG(t, 300, 300), 0o644))

	ok, err := FilterCoverImage(path)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.FileExists(t, path)
}

// TestFilterCoverImage_OneLargeSide verifies only both small sides reject
func TestFilterCoverImage_OneLargeSide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banner.png")
	require.NoError(t, os.WriteFile(path, createTestPNG(t, 600, 100), 0o644))

	ok, err := FilterCoverImage(path)

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilterCoverImage_Undecodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0o644))

	ok, err := FilterCoverImage(path)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquire_WritesLowercasePath(t *testing.T) {
	p, dir := createTestPipeline(t)
	server := serveBytes(t, createTestPNG(t, 300, 300), nil)

	downloaded, err := p.Acquire(context.Background(), server.URL+"/a.PNG", filepath.Join(dir, "Cover.PNG"))

	require.NoError(t, err)
	assert.True(t, downloaded)
	assert.FileExists(t, filepath.Join(dir, "cover.png"))
}

// TestAcquire_RejectsTextBody verifies an HTML error page is not saved
func TestAcquire_RejectsTextBody(t *testing.T) {
	p, dir := createTestPipeline(t)
	server := serveBytes(t, []byte("<html>Not found</html>"), nil)
	dest := filepath.Join(dir, "x.jpg")

	downloaded, err := p.Acquire(context.Background(), server.URL+"/x.jpg", dest)

	assert.ErrorIs(t, err, ErrRejected)
	assert.False(t, downloaded)
	assert.NoFileExists(t, dest)
}

// TestAcquire_SkipsExisting verifies no download happens for a lowercase twin
func TestAcquire_SkipsExisting(t *testing.T) {
	p, dir := createTestPipeline(t)
	var calls atomic.Int32
	server := serveBytes(t, createTestPNG(t, 300, 300), &calls)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "post.jpg"), []byte{1}, 0o644))

	downloaded, err := p.Acquire(context.Background(), server.URL+"/p.jpg", filepath.Join(dir, "Post.jpg"))

	require.NoError(t, err)
	assert.False(t, downloaded)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSave_NamesFileAfterSlug(t *testing.T) {
	p, dir := createTestPipeline(t)
	server := serveBytes(t, createTestPNG(t, 300, 300), nil)

	name, err := p.Save(context.Background(), server.URL+"/img/photo.png?v=2", "appel-a-projets-abcdef")

	require.NoError(t, err)
	assert.Equal(t, "appel-a-projets-abcdef.png", name)
	assert.FileExists(t, filepath.Join(dir, name))
}

func TestSave_SmallImageRejected(t *testing.T) {
	p, dir := createTestPipeline(t)
	server := serveBytes(t, createTestPNG(t, 100, 100), nil)

	name, err := p.Save(context.Background(), server.URL+"/icon.png", "post-abcdef")

	assert.ErrorIs(t, err, ErrRejected)
	assert.Empty(t, name)
	assert.NoFileExists(t, filepath.Join(dir, "post-abcdef.png"))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".jpg", Extension("https://a.tn/x/photo.jpg?w=300"))
	assert.Equal(t, "", Extension("https://a.tn/x/photo"))
}

// TestSave_MixedCaseDirectory verifies only the file name is lowercased
func TestSave_MixedCaseDirectory(t *testing.T) {
	log, _ := test.NewNullLogger()
	dir := filepath.Join(t.TempDir(), "Outputs", "Images")
	p := NewPipeline(dir, fetcher.New(fetcher.Options{Timeout: time.Second}, log), log)
	server := serveBytes(t, createTestPNG(t, 300, 300), nil)

	name, err := p.Save(context.Background(), server.URL+"/a.png", "post-abcdef")

	require.NoError(t, err)
	assert.Equal(t, "post-abcdef.png", name)
	assert.FileExists(t, filepath.Join(dir, name))
}

// TestSave_ReturnsStoredName verifies the name matches the file on disk
func TestSave_ReturnsStoredName(t *testing.T) {
	p, dir := createTestPipeline(t)
	server := serveBytes(t, createTestPNG(t, 300, 300), nil)

	name, err := p.Save(context.Background(), server.URL+"/a.PNG", "post-abcdef")

	require.NoError(t, err)
	assert.Equal(t, "post-abcdef.png", name)
	assert.FileExists(t, filepath.Join(dir, name))
}
