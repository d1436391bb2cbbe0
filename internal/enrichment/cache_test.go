package enrichment

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhosking/wtw-watcher/internal"
)

const testRetention = 30 * 24 * time.Hour

func TestUnit_Store_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	store, err := OpenStore(path, testRetention)
	require.NoError(t, err, "a missing cache file yields an empty store")
	assert.Equal(t, 0, store.Len())

	store.Put("send-help", internal.Enrichment{TMDBID: 12345, PosterURL: "https://image.tmdb.org/t/p/w342/x.jpg"})
	require.NoError(t, store.Save())

	reopened, err := OpenStore(path, testRetention)
	require.NoError(t, err)
	entry, ok := reopened.Get("send-help")
	require.True(t, ok)
	assert.Equal(t, int64(12345), entry.TMDBID)
	assert.False(t, entry.CachedAt.IsZero())
}

func TestUnit_Store_ReadTimeExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store, err := OpenStore(path, testRetention, StoreWithNow(func() time.Time { return now }))
	require.NoError(t, err)

	store.Put("send-help", internal.Enrichment{TMDBID: 12345})

	now = now.Add(29 * 24 * time.Hour)
	_, ok := store.Get("send-help")
	assert.True(t, ok, "entry within the retention window is fresh")

	now = now.Add(2 * 24 * time.Hour)
	_, ok = store.Get("send-help")
	assert.False(t, ok, "entry beyond the retention window is invisible to Get")

	stale, ok := store.GetStale("send-help")
	require.True(t, ok, "stale entries remain available as a fallback")
	assert.Equal(t, int64(12345), stale.TMDBID)

	// Save keeps the stale entry on disk.
	require.NoError(t, store.Save())
	reopened, err := OpenStore(path, testRetention, StoreWithNow(func() time.Time { return now }))
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
}

func TestUnit_Store_CorruptFileIsDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := OpenStore(path, testRetention)
	require.NoError(t, err, "a corrupt cache must not fail the run")
	assert.Equal(t, 0, store.Len())
}

func TestUnit_Store_NegativeEntry(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "cache.json"), testRetention)
	require.NoError(t, err)

	store.Put("unknown-film", internal.Enrichment{})
	entry, ok := store.Get("unknown-film")
	require.True(t, ok, "a recorded miss is still a cache hit")
	assert.True(t, entry.Empty())
}

func TestUnit_CacheKey(t *testing.T) {
	tests := []struct {
		name string
		film internal.Film
		want string
	}{
		{"search title", internal.Film{SearchTitle: "Dune: Part Two"}, "dune-part-two"},
		{"punctuation collapses", internal.Film{SearchTitle: "Mission: Impossible - The Final Reckoning"}, "mission-impossible-the-final-reckoning"},
		{"slug fallback", internal.Film{SearchTitle: "???", Slug: "weird-title"}, "weird-title"},
		{"nothing usable", internal.Film{}, "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CacheKey(tc.film))
		})
	}
}
