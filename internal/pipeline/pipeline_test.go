package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhosking/wtw-watcher/internal"
	"github.com/jhosking/wtw-watcher/internal/config"
)

type stubScraper struct {
	films []internal.Film
	err   error
}

func (s *stubScraper) Descriptor() string { return "stub" }

func (s *stubScraper) ScrapeFilms(_ context.Context) ([]internal.Film, error) {
	if s.err != nil {
		return nil, s.err
	}
	// Callers mutate the films they get back.
	out := make([]internal.Film, len(s.films))
	copy(out, s.films)
	return out, nil
}

type stubProvider struct {
	enrichment internal.Enrichment
}

func (p *stubProvider) Enrich(_ context.Context, film internal.Film) (internal.Film, error) {
	enr := p.enrichment
	film.Enrichment = &enr
	return film, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Source: config.SourceConfig{
			BaseURL: "https://example.test",
			Cinema:  "st-austell",
			Name:    "Test Cinema",
		},
		Output: config.OutputConfig{
			DocumentPath:    filepath.Join(dir, "whats_on_data.json"),
			FingerprintPath: filepath.Join(dir, ".whats_on_fingerprint"),
			SitePath:        filepath.Join(dir, "index.html"),
		},
		Quality: config.QualityConfig{MaxMissingEnrichment: -1},
	}
}

func testFilms() []internal.Film {
	start, _ := time.Parse("2006-01-02 15:04", "2026-02-20 17:45")
	return []internal.Film{
		{
			Title:       "Send Help (15)",
			SearchTitle: "Send Help",
			Slug:        "send-help",
			FilmURL:     "https://example.test/film/send-help/",
			Showtimes: []internal.Showtime{
				{ID: "a", Date: "2026-02-20", Time: "17:45", Screen: 2, StartsAt: start, Tags: []string{"2D"}},
			},
		},
	}
}

func TestUnit_Pipeline_PublishesThenSkipsUnchanged(t *testing.T) {
	cfg := testConfig(t)
	scraper := &stubScraper{films: testFilms()}
	now := time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)
	p := New(cfg, scraper, WithNow(func() time.Time { return now }))

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Changed, "the first run always publishes")
	assert.Equal(t, 1, result.Films)
	assert.NotEmpty(t, result.Fingerprint)

	for _, path := range []string{cfg.Output.DocumentPath, cfg.Output.SitePath, cfg.Output.FingerprintPath} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	// Remove the artifacts: an unchanged second run must not recreate them.
	require.NoError(t, os.Remove(cfg.Output.DocumentPath))
	require.NoError(t, os.Remove(cfg.Output.SitePath))

	now = now.Add(time.Hour) // a new timestamp alone is not a change
	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, result.Fingerprint, second.Fingerprint)
	_, err = os.Stat(cfg.Output.DocumentPath)
	assert.True(t, errors.Is(err, os.ErrNotExist), "unchanged runs skip document persistence")
	_, err = os.Stat(cfg.Output.SitePath)
	assert.True(t, errors.Is(err, os.ErrNotExist), "unchanged runs skip site regeneration")
}

func TestUnit_Pipeline_ChangedListingsRepublish(t *testing.T) {
	cfg := testConfig(t)
	scraper := &stubScraper{films: testFilms()}
	p := New(cfg, scraper)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	require.True(t, first.Changed)

	films := testFilms()
	films[0].Showtimes[0].Time = "20:30"
	scraper.films = films

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Changed, "a showtime change reopens the gate")
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
}

func TestUnit_Pipeline_ScrapeFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, &stubScraper{err: errors.New("connection refused")})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	_, statErr := os.Stat(cfg.Output.FingerprintPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "a failed run must not touch the gate")
}

func TestUnit_Pipeline_QualityGate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Quality.MaxMissingEnrichment = 0
	p := New(cfg, &stubScraper{films: testFilms()})

	result, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrQualityGate)
	assert.Equal(t, 1, result.MissingEnrichment)

	// The gate is advisory: the run still published before reporting.
	_, statErr := os.Stat(cfg.Output.SitePath)
	assert.NoError(t, statErr)
}

func TestUnit_Pipeline_CarryForwardWithoutProvider(t *testing.T) {
	cfg := testConfig(t)
	scraper := &stubScraper{films: testFilms()}

	enriched := New(cfg, scraper, WithProvider(&stubProvider{
		enrichment: internal.Enrichment{TMDBID: 12345, PosterURL: "posters/send-help.jpg"},
	}, nil))
	result, err := enriched.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Changed)
	assert.Equal(t, 0, result.MissingEnrichment)

	// Next run has no API key. Metadata survives via the persisted document.
	plain := New(cfg, scraper)
	second, err := plain.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.MissingEnrichment)
	assert.False(t, second.Changed, "carried-forward metadata matches the published document")

	doc, err := LoadDocument(cfg.Output.DocumentPath)
	require.NoError(t, err)
	require.Len(t, doc.Films, 1)
	require.NotNil(t, doc.Films[0].Enrichment)
	assert.Equal(t, int64(12345), doc.Films[0].Enrichment.TMDBID)
}
