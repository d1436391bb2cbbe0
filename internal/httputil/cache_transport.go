package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultLRUMaxEntries = 256

// CacheTransport is an http.RoundTripper that memoizes successful GET
// responses by URL for the lifetime of the process. It sits under the TMDB
// client so that films sharing a search title (e.g. a subtitled variant merged
// with its base film) cost one network round trip per run. Entries are evicted
// LRU; there is no TTL because a run is short-lived by design.
type CacheTransport struct {
	Base http.RoundTripper

	// MaxEntries caps the number of cached responses. Zero means
	// defaultLRUMaxEntries.
	MaxEntries int

	// OnRoundTrip, if set, is called with the cache key and whether it was
	// served from memory. Used for auditing and tests.
	OnRoundTrip func(key string, hit bool)

	initOnce sync.Once
	cache    *lru.Cache[string, *cachedResponse]
	initErr  error
}

type cachedResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

func (t *CacheTransport) ensureCache() error {
	t.initOnce.Do(func() {
		max := t.MaxEntries
		if max <= 0 {
			max = defaultLRUMaxEntries
		}
		t.cache, t.initErr = lru.New[string, *cachedResponse](max)
	})
	return t.initErr
}

// RoundTrip implements http.RoundTripper.
func (t *CacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.ensureCache(); err != nil {
		return nil, err
	}
	key := req.Method + " " + req.URL.String()
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if entry, ok := t.cache.Get(key); ok {
		if t.OnRoundTrip != nil {
			t.OnRoundTrip(key, true)
		}
		return &http.Response{
			Status:        http.StatusText(entry.Status),
			StatusCode:    entry.Status,
			Header:        entry.Header.Clone(),
			Body:          io.NopCloser(bytes.NewReader(entry.Body)),
			ContentLength: int64(len(entry.Body)),
			Request:       req,
		}, nil
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if t.OnRoundTrip != nil {
		t.OnRoundTrip(key, false)
	}
	// Only memoize successful GETs.
	if req.Method != http.MethodGet || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	t.cache.Add(key, &cachedResponse{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	})
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}
