package enrichment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jhosking/wtw-watcher/internal"
)

// Store is a persistent film-metadata cache keyed by normalized search title.
// Entries older than the retention window are invisible to Get but are kept on
// disk so GetStale can serve them when the upstream API is unavailable.
type Store struct {
	path      string
	retention time.Duration
	entries   map[string]internal.CacheEntry
	now       func() time.Time
}

// StoreOption applies configuration to a cache store.
type StoreOption func(*Store)

// StoreWithNow fixes the clock used for expiry checks. Used in tests.
func StoreWithNow(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// OpenStore loads the cache file at path. A missing file yields an empty
// store. A corrupt file is discarded with a warning rather than failing the
// run, since the cache is only an optimization.
func OpenStore(path string, retention time.Duration, opts ...StoreOption) (*Store, error) {
	s := &Store{
		path:      path,
		retention: retention,
		entries:   make(map[string]internal.CacheEntry),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.entries); err != nil {
		slog.Warn("discarding corrupt metadata cache", "path", path, "error", err)
		s.entries = make(map[string]internal.CacheEntry)
	}
	return s, nil
}

// Get returns the entry for key if it exists and is within the retention
// window.
func (s *Store) Get(key string) (internal.CacheEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return internal.CacheEntry{}, false
	}
	if s.now().Sub(entry.CachedAt) > s.retention {
		return internal.CacheEntry{}, false
	}
	return entry, true
}

// GetStale returns the entry for key regardless of age. Callers use it as a
// fallback when the metadata API cannot be reached.
func (s *Store) GetStale(key string) (internal.CacheEntry, bool) {
	entry, ok := s.entries[key]
	return entry, ok
}

// Put records an entry under key with a fresh timestamp.
func (s *Store) Put(key string, enrichment internal.Enrichment) {
	s.entries[key] = internal.CacheEntry{
		Enrichment: enrichment,
		CachedAt:   s.now(),
	}
}

// Len returns the number of entries currently held, fresh or stale.
func (s *Store) Len() int {
	return len(s.entries)
}

// Save writes every entry back to disk, stale ones included, so a later run
// can still fall back to them.
func (s *Store) Save() error {
	raw, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// CacheKey derives the cache key for a film from its search title, falling
// back to the site slug for films whose titles normalize to nothing.
func CacheKey(film internal.Film) string {
	key := slugify(film.SearchTitle)
	if key == "" {
		key = slugify(film.Slug)
	}
	if key == "" {
		key = "unknown"
	}
	return key
}

func slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
