// Package fetcher issues the HTTP requests of a harvest run. Requests to the
// same host are serialized and spaced out; a request that times out is
// retried once.
package fetcher

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// UserAgent is sent with every request.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_6_7 rv:5.0; IT) AppleWebKit/533.1.2 (KHTML, like Gecko) Version/7.0.8 Safari/533.1.2"

// Options controls fetching behaviour.
type Options struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// HostInterval is the minimum spacing between requests to one host.
	HostInterval time.Duration
	// MaxBodyBytes caps the size of a decoded response body.
	MaxBodyBytes int64
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Timeout:      30 * time.Second,
		HostInterval: 500 * time.Millisecond,
		MaxBodyBytes: 20 * 1024 * 1024,
	}
}

// Request describes one HTTP call. Method defaults to GET.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	FinalURL   string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher performs HTTP requests with per-host politeness.
type Fetcher struct {
	client       *http.Client
	log          logrus.FieldLogger
	interval     time.Duration
	maxBodyBytes int64

	mu    sync.Mutex
	hosts map[string]*hostGate
}

// hostGate allows one request in flight per host, at most one per interval.
type hostGate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// New creates a fetcher. Zero option fields take their default value.
func New(opts Options, log logrus.FieldLogger) *Fetcher {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.HostInterval < 0 {
		opts.HostInterval = 0
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Fetcher{
		client:       &http.Client{Timeout: opts.Timeout, Transport: transport},
		log:          log,
		interval:     opts.HostInterval,
		maxBodyBytes: opts.MaxBodyBytes,
		hosts:        make(map[string]*hostGate),
	}
}

// Get fetches a page.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	return f.Do(ctx, Request{Method: http.MethodGet, URL: rawURL})
}

// Head fetches only the headers of a resource.
func (f *Fetcher) Head(ctx context.Context, rawURL string) (*Response, error) {
	return f.Do(ctx, Request{Method: http.MethodHead, URL: rawURL})
}

// Do performs req, retrying once if the first attempt times out. Any
// failure, including a non-2xx status, is returned as a *FetchError.
func (f *Fetcher) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("invalid url %q", req.URL)}
	}

	gate := f.gate(u.Host)
	if err := gate.sem.Acquire(ctx, 1); err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	defer gate.sem.Release(1)

	resp, err := f.attempt(ctx, gate, req)
	if err != nil && errors.Is(err, ErrTimeout) && ctx.Err() == nil {
		f.log.WithField("url", req.URL).Warn("Request timed out, retrying once")
		resp, err = f.attempt(ctx, gate, req)
	}
	return resp, err
}

func (f *Fetcher) attempt(ctx context.Context, gate *hostGate, req Request) (*Response, error) {
	if err := gate.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("User-Agent", UserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	data, err := f.readBody(resp)
	if err != nil {
		if isTimeout(err) {
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, &FetchError{URL: req.URL, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: req.URL, StatusCode: resp.StatusCode, Err: ErrStatus}
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		URL:        req.URL,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}

// gate returns the politeness gate of a host, creating it on first use.
func (f *Fetcher) gate(host string) *hostGate {
	host = strings.ToLower(host)

	f.mu.Lock()
	defer f.mu.Unlock()

	g, ok := f.hosts[host]
	if !ok {
		limit := rate.Inf
		if f.interval > 0 {
			limit = rate.Every(f.interval)
		}
		g = &hostGate{
			sem:     semaphore.NewWeighted(1),
			limiter: rate.NewLimiter(limit, 1),
		}
		f.hosts[host] = g
	}
	return g
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("deflate decode: %w", err)
		}
		reader = zr
		closers = append(closers, zr)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	data, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return data, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
