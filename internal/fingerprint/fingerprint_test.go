package fingerprint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhosking/wtw-watcher/internal"
)

func sampleDocument(generatedAt time.Time) internal.Document {
	return internal.Document{
		GeneratedAt: generatedAt,
		SourceName:  "White River Cinema, St Austell",
		SourceURL:   "https://wtwcinemas.co.uk/st-austell/whats-on/",
		Films: []internal.Film{
			{
				Title:       "Send Help (15)",
				SearchTitle: "Send Help",
				Showtimes: []internal.Showtime{
					{ID: "a", Date: "2026-02-20", Time: "17:45", Screen: 2, Tags: []string{"2D"}},
				},
			},
		},
	}
}

func TestUnit_Compute_IgnoresGeneratedAt(t *testing.T) {
	first, err := Compute(sampleDocument(time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	second, err := Compute(sampleDocument(time.Date(2026, 2, 21, 18, 30, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, first, second, "the generation timestamp must never flip the gate")
	assert.Len(t, first, 64, "sha256 hex digest")
}

func TestUnit_Compute_SensitiveToContent(t *testing.T) {
	base, err := Compute(sampleDocument(time.Time{}))
	require.NoError(t, err)

	changed := sampleDocument(time.Time{})
	changed.Films[0].Showtimes[0].Time = "20:30"
	digest, err := Compute(changed)
	require.NoError(t, err)
	assert.NotEqual(t, base, digest, "a showtime change must flip the digest")

	enriched := sampleDocument(time.Time{})
	enriched.Films[0].Enrichment = &internal.Enrichment{TMDBID: 1}
	digest, err = Compute(enriched)
	require.NoError(t, err)
	assert.NotEqual(t, base, digest, "an enrichment change must flip the digest")
}

func TestUnit_Gate(t *testing.T) {
	gate := NewGate(filepath.Join(t.TempDir(), "fingerprint"))

	previous, err := gate.Previous()
	require.NoError(t, err)
	assert.Empty(t, previous)

	changed, err := gate.HasChanged("abc123")
	require.NoError(t, err)
	assert.True(t, changed, "no stored digest means the first run publishes")

	require.NoError(t, gate.Store("abc123"))

	changed, err = gate.HasChanged("abc123")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = gate.HasChanged("def456")
	require.NoError(t, err)
	assert.True(t, changed)
}
