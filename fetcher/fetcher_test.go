package fetcher

import (
	"bytes"
	"compress/zlib"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: a fetcher with short timeouts and no host spacing
func createTestFetcher(t *testing.T, timeout time.Duration) *Fetcher {
	t.Helper()
	log, _ := test.NewNullLogger()
	return New(Options{Timeout: timeout}, log)
}

// TestGet_SendsUserAgent verifies the shared headers are sent
func TestGet_SendsUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	resp, err := createTestFetcher(t, time.Second).Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", string(resp.Body))
}

func TestDo_CustomHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	header := http.Header{}
	header.Set("X-Requested-With", "XMLHttpRequest")
	header.Set("Accept", "application/json")

	resp, err := createTestFetcher(t, time.Second).Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    server.URL,
		Header: header,
		Body:   []byte(`{"page":"2"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, `{"page":"2"}`, string(resp.Body))
}

// TestGet_StatusError verifies non-2xx responses become FetchErrors
func TestGet_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := createTestFetcher(t, time.Second).Get(context.Background(), server.URL)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.ErrorIs(t, err, ErrStatus)
}

// TestGet_RetriesOnceOnTimeout verifies a timed-out attempt is retried
func TestGet_RetriesOnceOnTimeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		w.Write([]byte("late but fine"))
	}))
	defer server.Close()

	resp, err := createTestFetcher(t, 100*time.Millisecond).Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "late but fine", string(resp.Body))
	assert.Equal(t, int32(2), calls.Load())
}

// TestGet_GivesUpAfterSecondTimeout verifies there is no third attempt
func TestGet_GivesUpAfterSecondTimeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	_, err := createTestFetcher(t, 100*time.Millisecond).Get(context.Background(), server.URL)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_NoRetryOnStatusError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := createTestFetcher(t, time.Second).Get(context.Background(), server.URL)

	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_DecodesBrotli(t *testing.T) {
	var encoded bytes.Buffer
	bw := brotli.NewWriter(&encoded)
	bw.Write([]byte("<p>compressed</p>"))
	bw.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.Write(encoded.Bytes())
	}))
	defer server.Close()

	resp, err := createTestFetcher(t, time.Second).Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "<p>compressed</p>", string(resp.Body))
}

// TestGet_DecodesDeflate verifies deflate bodies are read as zlib streams
func TestGet_DecodesDeflate(t *testing.T) {
	var encoded bytes.Buffer
	zw := zlib.NewWriter(&encoded)
	zw.Write([]byte("<p>deflated</p>"))
	zw.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "deflate")
		w.Write(encoded.Bytes())
	}))
	defer server.Close()

	resp, err := createTestFetcher(t, time.Second).Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "<p>deflated</p>", string(resp.Body))
}

func TestHead_ReturnsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Last-Modified", "Thu, 12 May 2022 10:20:30 GMT")
	}))
	defer server.Close()

	resp, err := createTestFetcher(t, time.Second).Head(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "Thu, 12 May 2022 10:20:30 GMT", resp.Header.Get("Last-Modified"))
}

// TestDo_SerializesPerHost verifies only one request per host is in flight
func TestDo_SerializesPerHost(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
	}))
	defer server.Close()

	f := createTestFetcher(t, time.Second)
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Get(context.Background(), server.URL)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestDo_InvalidURL(t *testing.T) {
	_, err := createTestFetcher(t, time.Second).Get(context.Background(), "not a url")

	var fetchErr *FetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestDo_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}, logrus.New()).Get(ctx, server.URL)
	assert.Error(t, err)
}
