package httputil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnit_CacheTransport_MemoizesGets(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"n":1}`))
	}))
	t.Cleanup(server.Close)

	var events []bool
	client := &http.Client{Transport: &CacheTransport{
		OnRoundTrip: func(_ string, hit bool) { events = append(events, hit) },
	}}

	for range 3 {
		resp, err := client.Get(server.URL + "/search/movie?query=x")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, `{"n":1}`, string(body))
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	}

	assert.Equal(t, int32(1), calls.Load(), "repeat GETs are served from memory")
	assert.Equal(t, []bool{false, true, true}, events)
}

func TestUnit_CacheTransport_DistinctURLsAreDistinctEntries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(r.URL.RawQuery))
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: &CacheTransport{}}
	for _, query := range []string{"query=a", "query=b", "query=a"} {
		resp, err := client.Get(server.URL + "/search/movie?" + query)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestUnit_CacheTransport_ErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: &CacheTransport{}}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, err = client.Get(server.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body), "a failed response is retried, not replayed")
	assert.Equal(t, int32(2), calls.Load())
}
