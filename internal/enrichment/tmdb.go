package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	tmdb "github.com/cyruzin/golang-tmdb"

	"github.com/jhosking/wtw-watcher/internal"
	"github.com/jhosking/wtw-watcher/internal/httputil"
)

const (
	posterBaseURL      = "https://image.tmdb.org/t/p/w342"
	defaultTMDBDelay   = 200 * time.Millisecond
	defaultTMDBLang    = "en-GB"
	defaultHTTPTimeout = 10 * time.Second
)

// Fallback names for TMDB genre IDs, used when a details response omits the
// expanded genre list.
var genreNames = map[int64]string{
	28: "Action", 12: "Adventure", 16: "Animation", 35: "Comedy", 80: "Crime",
	99: "Documentary", 18: "Drama", 10751: "Family", 14: "Fantasy", 36: "History",
	27: "Horror", 10402: "Music", 9648: "Mystery", 10749: "Romance",
	878: "Science Fiction", 10770: "TV Movie", 53: "Thriller", 10752: "War",
	37: "Western",
}

// Crew jobs that count as writing credits.
var writerJobs = map[string]bool{
	"Screenplay": true, "Writer": true, "Story": true, "Characters": true, "Novel": true,
}

type tmdbProvider struct {
	client     *tmdb.Client
	store      *Store
	delay      time.Duration
	language   string
	httpClient *http.Client
	sleep      func(time.Duration)
}

// TMDBOption applies configuration to the TMDB enrichment provider.
type TMDBOption func(*tmdbProvider)

// TMDBWithDelay sets the pause inserted before each API request. The public
// API tolerates polite clients; the pause keeps a full run under the rate
// limit without request accounting.
func TMDBWithDelay(d time.Duration) TMDBOption {
	return func(p *tmdbProvider) {
		if d >= 0 {
			p.delay = d
		}
	}
}

// TMDBWithLanguage sets the language parameter sent on every request.
func TMDBWithLanguage(lang string) TMDBOption {
	return func(p *tmdbProvider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// TMDBWithHTTPClient overrides the HTTP client, used in tests to stub the API.
func TMDBWithHTTPClient(c *http.Client) TMDBOption {
	return func(p *tmdbProvider) {
		p.httpClient = c
	}
}

// TMDBWithSleep overrides the inter-request pause function. Used in tests.
func TMDBWithSleep(sleep func(time.Duration)) TMDBOption {
	return func(p *tmdbProvider) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// TMDB builds an enrichment provider backed by the TMDB API and the given
// persistent cache store.
func TMDB(apiKey string, store *Store, opts ...TMDBOption) (internal.EnrichmentProvider, error) {
	client, err := tmdb.Init(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize TMDB client: %w", err)
	}
	p := &tmdbProvider{
		client:   client,
		store:    store,
		delay:    defaultTMDBDelay,
		language: defaultTMDBLang,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	httpClient := p.httpClient
	if httpClient == nil {
		// In-run memoization dedupes repeat lookups for films that appear
		// more than once on the page (subtitled variants).
		httpClient = &http.Client{
			Timeout:   defaultHTTPTimeout,
			Transport: &httputil.CacheTransport{Base: http.DefaultTransport},
		}
	}
	client.SetClientConfig(*httpClient)
	return p, nil
}

func (p *tmdbProvider) Enrich(_ context.Context, film internal.Film) (internal.Film, error) {
	if film.SearchTitle == "" {
		return film, nil
	}
	key := CacheKey(film)

	if entry, ok := p.store.Get(key); ok {
		slog.Debug("tmdb: cache hit", "key", key, "negative", entry.Empty())
		return applyEntry(film, entry.Enrichment), nil
	}

	p.sleep(p.delay)
	search, err := p.client.GetSearchMovies(film.SearchTitle, map[string]string{
		"language": p.language,
	})
	if err != nil {
		return p.staleFallback(film, key, fmt.Errorf("failed to search for %q: %w", film.SearchTitle, err))
	}
	if len(search.Results) == 0 {
		// Record the miss so it is not retried on every run.
		slog.Debug("tmdb: no results", "key", key, "query", film.SearchTitle)
		p.store.Put(key, internal.Enrichment{})
		return film, nil
	}

	chosen := pickBestResult(search.Results, film.SearchTitle)
	if chosen.PosterPath == "" {
		// New entries sometimes lack a poster; prefer an equally-titled
		// result that has one.
		for i := range search.Results {
			r := &search.Results[i]
			if r.PosterPath != "" && normalizeForMatch(r.Title) == normalizeForMatch(chosen.Title) {
				chosen = r
				break
			}
		}
	}

	p.sleep(p.delay)
	details, err := p.client.GetMovieDetails(int(chosen.ID), map[string]string{
		"append_to_response": "videos,credits",
		"language":           p.language,
	})
	if err != nil {
		return p.staleFallback(film, key, fmt.Errorf("failed to fetch details for %q (id %d): %w", chosen.Title, chosen.ID, err))
	}

	enr := buildEnrichment(chosen, details)
	p.store.Put(key, enr)
	return applyEntry(film, enr), nil
}

// staleFallback applies an expired cache entry, if one exists, when the API
// could not be reached. The error is still reported so the run can count it.
func (p *tmdbProvider) staleFallback(film internal.Film, key string, err error) (internal.Film, error) {
	if entry, ok := p.store.GetStale(key); ok && !entry.Empty() {
		slog.Warn("tmdb: using stale cache entry after API failure", "key", key, "cached_at", entry.CachedAt, "error", err)
		return applyEntry(film, entry.Enrichment), err
	}
	return film, err
}

func applyEntry(film internal.Film, enr internal.Enrichment) internal.Film {
	if enr.Empty() {
		return film
	}
	film.Enrichment = &enr
	return film
}

func buildEnrichment(chosen *tmdb.MovieResult, details *tmdb.MovieDetails) internal.Enrichment {
	enr := internal.Enrichment{
		TMDBID:   chosen.ID,
		IMDbID:   details.IMDbID,
		Rating:   details.VoteAverage,
		Overview: strings.TrimSpace(details.Overview),
	}

	posterPath := details.PosterPath
	if posterPath == "" {
		posterPath = chosen.PosterPath
	}
	if posterPath != "" {
		enr.PosterURL = posterBaseURL + "/" + strings.TrimPrefix(posterPath, "/")
	}

	if details.MovieVideosAppend != nil && details.Videos != nil {
		for _, v := range details.Videos.Results {
			kind := strings.ToLower(v.Type)
			if v.Site == "YouTube" && v.Key != "" && (kind == "trailer" || kind == "teaser") {
				enr.TrailerURL = "https://www.youtube.com/watch?v=" + v.Key
				break
			}
		}
	}

	for _, g := range details.Genres {
		if name := strings.TrimSpace(g.Name); name != "" {
			enr.Genres = append(enr.Genres, name)
		}
	}
	if len(enr.Genres) == 0 {
		for _, id := range chosen.GenreIDs {
			if name, ok := genreNames[id]; ok {
				enr.Genres = append(enr.Genres, name)
			}
		}
	}

	if details.MovieCreditsAppend != nil && details.Credits.MovieCredits != nil {
		var directors, writers []string
		for _, c := range details.Credits.MovieCredits.Crew {
			name := strings.TrimSpace(c.Name)
			if name == "" {
				continue
			}
			if c.Job == "Director" && !contains(directors, name) {
				directors = append(directors, name)
			}
			if writerJobs[c.Job] && !contains(writers, name) {
				writers = append(writers, name)
			}
		}
		enr.Director = strings.Join(clip(directors, 3), ", ")
		enr.Writer = strings.Join(clip(writers, 5), ", ")

		cast := details.Credits.MovieCredits.Cast
		for i := 0; i < len(cast) && i < 12; i++ {
			name := strings.TrimSpace(cast[i].Name)
			if name == "" {
				continue
			}
			if char := strings.TrimSpace(cast[i].Character); char != "" {
				name = fmt.Sprintf("%s (%s)", name, char)
			}
			enr.Cast = append(enr.Cast, name)
		}
	}

	return enr
}

var matchSeparators = regexp.MustCompile(`[\s\-:]+`)

func normalizeForMatch(title string) string {
	return strings.TrimSpace(matchSeparators.ReplaceAllString(strings.ToLower(title), " "))
}

// pickBestResult chooses the search result whose title best matches the query,
// so a sequel like "Avatar: Fire and Ash" is not shadowed by the earlier film
// with the shorter title. Exact normalized matches win outright; otherwise
// containment and recency score the candidates.
func pickBestResult(results []tmdb.MovieResult, searchTitle string) *tmdb.MovieResult {
	if len(results) == 0 {
		return nil
	}
	normSearch := normalizeForMatch(searchTitle)
	if normSearch == "" {
		return &results[0]
	}

	best := &results[0]
	bestScore := -1
	for i := range results {
		r := &results[i]
		normTitle := normalizeForMatch(r.Title)
		if normTitle == normSearch {
			return r
		}
		var score int
		switch {
		case strings.Contains(normTitle, normSearch):
			score = 90
		case strings.Contains(normSearch, normTitle):
			score = 30
		default:
			score = 10
			if len(r.ReleaseDate) >= 4 {
				if year, err := time.Parse("2006", r.ReleaseDate[:4]); err == nil && year.Year() >= 2020 {
					score = 50
				}
			}
		}
		if score > bestScore {
			bestScore = score
			best = r
		}
	}
	return best
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clip(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
