package httputil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

// FetchError is returned once every attempt at a URL has been exhausted.
// It wraps the last underlying cause; callers decide whether it is fatal.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher performs HTTP GETs with a timeout and exponential backoff between
// retries. It is the sole network primitive of the pipeline and does no
// caching of its own.
type Fetcher struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	multiplier float64
	userAgent  string
	referer    string

	sleep func(time.Duration) // swapped in tests
}

// FetchOption applies configuration to a Fetcher.
type FetchOption func(*Fetcher)

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithRetries sets how many times a failed attempt is retried. The total
// number of attempts is retries+1.
func WithRetries(n int) FetchOption {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxRetries = n
		}
	}
}

// WithBackoff sets the delay before the first retry and the factor the delay
// grows by after each one.
func WithBackoff(initial time.Duration, multiplier float64) FetchOption {
	return func(f *Fetcher) {
		if initial > 0 {
			f.retryDelay = initial
		}
		if multiplier > 0 {
			f.multiplier = multiplier
		}
	}
}

// WithUserAgent overrides the client identity header.
func WithUserAgent(ua string) FetchOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithReferer sets a Referer header on every request (some asset hosts refuse
// referer-less downloads).
func WithReferer(ref string) FetchOption {
	return func(f *Fetcher) {
		f.referer = ref
	}
}

// WithHTTPClient sets the HTTP client (e.g. httptest.Server.Client() in tests).
func WithHTTPClient(client *http.Client) FetchOption {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

func NewFetcher(opts ...FetchOption) *Fetcher {
	f := &Fetcher{
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		retryDelay: time.Second,
		multiplier: 2,
		userAgent:  defaultUserAgent,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs the URL, retrying retryable failures (transport errors and
// non-2xx/3xx statuses) with exponential backoff. On success it returns the
// response body; after exhausting retries it returns a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	delay := f.retryDelay
	attempts := f.maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := f.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		slog.Warn("fetch attempt failed", "url", url, "attempt", attempt, "error", err)
		if attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		f.sleep(delay)
		delay = time.Duration(float64(delay) * f.multiplier)
	}
	return nil, &FetchError{URL: url, Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return body, nil
}
