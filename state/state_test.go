package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: tracker paths inside a temporary directory
func createTestPaths(t *testing.T) Paths {
	dir := t.TempDir()
	return Paths{
		Posts:        filepath.Join(dir, "processed_posts_urls.csv"),
		Images:       filepath.Join(dir, "processed_images_urls.csv"),
		Publications: filepath.Join(dir, "processed_publications_urls.csv"),
	}
}

func TestURLSet_AddTracksNewValues(t *testing.T) {
	s := NewURLSet("https://a.tn/1")

	assert.False(t, s.Add("https://a.tn/1"), "loaded value is not new")
	assert.True(t, s.Add("https://a.tn/2"))
	assert.False(t, s.Add("https://a.tn/2"))
	assert.False(t, s.Add(""))

	assert.Equal(t, []string{"https://a.tn/2"}, s.Added())
	assert.Equal(t, 2, s.Len())
}

// TestURLSet_ConcurrentAdd verifies concurrent adds of one value keep one copy
func TestURLSet_ConcurrentAdd(t *testing.T) {
	s := NewURLSet()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add("https://a.tn/same")
		}()
	}
	wg.Wait()

	assert.Len(t, s.Added(), 1)
}

func TestCSVStore_MissingFileIsEmpty(t *testing.T) {
	set, err := NewCSVStore(filepath.Join(t.TempDir(), "none.csv")).Load()

	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

// TestCSVStore_AppendNeverRewrites verifies existing lines are kept as-is
func TestCSVStore_AppendNeverRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.csv")
	require.NoError(t, os.WriteFile(path, []byte("\"0\"\n\"https://a.tn/1\"\n"), 0o644))
	store := NewCSVStore(path)

	require.NoError(t, store.Append([]string{"https://a.tn/2", `say "hi"`}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\"0\"\n\"https://a.tn/1\"\n\"https://a.tn/2\"\n\"say \"\"hi\"\"\"\n", string(data))

	set, err := store.Load()
	require.NoError(t, err)
	assert.True(t, set.Contains("https://a.tn/1"))
	assert.True(t, set.Contains(`say "hi"`))
}

func TestTracker_SeenMatchesEncodedForms(t *testing.T) {
	paths := createTestPaths(t)
	require.NoError(t, os.WriteFile(paths.Posts, []byte("\"https://a.tn/news?id=1\"\n"), 0o644))

	tracker, err := Load(paths)
	require.NoError(t, err)

	assert.True(t, tracker.Seen("https://a.tn/news?id=1"))
	assert.True(t, tracker.Seen("https://a.tn/news%3Fid%3D1"))
	assert.False(t, tracker.Seen("https://a.tn/news?id=2"))
	assert.False(t, tracker.Seen(""))
}

// TestTracker_PersistRoundTrip verifies a second run sees the first run's posts
func TestTracker_PersistRoundTrip(t *testing.T) {
	paths := createTestPaths(t)

	first, err := Load(paths)
	require.NoError(t, err)
	first.MarkPost("https://a.tn/news%3Fid%3D7")
	first.MarkPost("https://www.mtcen.gov.tn/x%3Ftoken%3Dab")
	first.MarkImage("https://a.tn/img.jpg")
	first.MarkPublication("https://a.tn/doc.pdf")
	require.NoError(t, first.Persist())

	second, err := Load(paths)
	require.NoError(t, err)

	assert.True(t, second.Seen("https://a.tn/news?id=7"))
	assert.True(t, second.Posts.Contains("https://a.tn/news?id=7"), "stored decoded")
	assert.True(t, second.Posts.Contains("https://www.mtcen.gov.tn/x%3Ftoken%3Dab"), "stored encoded")
	assert.True(t, second.Images.Contains("https://a.tn/img.jpg"))
	assert.True(t, second.Publications.Contains("https://a.tn/doc.pdf"))
	assert.Empty(t, second.Posts.Added())
}

func TestTracker_PersistNothingNew(t *testing.T) {
	paths := createTestPaths(t)
	tracker, err := Load(paths)
	require.NoError(t, err)

	require.NoError(t, tracker.Persist())

	_, err = os.Stat(paths.Posts)
	assert.True(t, os.IsNotExist(err), "no file is created when nothing was added")
}
