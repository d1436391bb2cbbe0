package internal

import "time"

// Film is one movie currently showing, with its showtimes and any metadata
// that enrichment resolved for it. Enrichment is nil when no attributes could
// be obtained; the film still renders from scraped fields alone.
type Film struct {
	Title       string   `json:"title"`
	SearchTitle string   `json:"search_title"`
	Slug        string   `json:"film_slug,omitempty"`
	Certificate string   `json:"certificate,omitempty"`
	Synopsis    string   `json:"synopsis,omitempty"`
	Cast        []string `json:"cast,omitempty"`
	RuntimeMin  int      `json:"runtime_min,omitempty"`
	FilmURL     string   `json:"film_url"`

	Showtimes []Showtime `json:"showtimes"`

	Enrichment *Enrichment `json:"enrichment,omitempty"`
}

// Enriched reports whether the film carries any resolved metadata.
func (f Film) Enriched() bool {
	return f.Enrichment != nil && !f.Enrichment.Empty()
}

// Showtime is a single performance. Date and Time are the scraped calendar
// values; StartsAt is the same instant resolved in the cinema's timezone so
// consumers can sort and export without re-parsing.
type Showtime struct {
	ID         string    `json:"id"`
	Date       string    `json:"date"` // 2006-01-02
	Time       string    `json:"time"` // 15:04, local
	Screen     int       `json:"screen"`
	StartsAt   time.Time `json:"starts_at"`
	BookingURL string    `json:"booking_url,omitempty"`
	Tags       []string  `json:"tags"`
}

// Enrichment holds the metadata attributes resolved from the external movie
// database. All fields are optional; an all-zero value means a lookup was made
// and found nothing.
type Enrichment struct {
	PosterURL  string   `json:"poster_url,omitempty"`
	TrailerURL string   `json:"trailer_url,omitempty"`
	Rating     float32  `json:"rating,omitempty"` // 0.0 - 10.0
	Genres     []string `json:"genres,omitempty"`
	TMDBID     int64    `json:"tmdb_id,omitempty"`
	IMDbID     string   `json:"imdb_id,omitempty"`
	Overview   string   `json:"overview,omitempty"`
	Director   string   `json:"director,omitempty"`
	Writer     string   `json:"writer,omitempty"`
	Cast       []string `json:"cast,omitempty"`
}

// Empty reports whether the enrichment carries no attributes at all, i.e. a
// recorded negative lookup.
func (e Enrichment) Empty() bool {
	return e.PosterURL == "" && e.TrailerURL == "" && e.Rating == 0 &&
		len(e.Genres) == 0 && e.TMDBID == 0 && e.IMDbID == "" &&
		e.Overview == "" && e.Director == "" && e.Writer == "" && len(e.Cast) == 0
}

// Document is the canonical assembled output of one pipeline run and the
// system's durable source of truth between runs.
type Document struct {
	GeneratedAt time.Time `json:"generated_at"`
	SourceName  string    `json:"source_name"`
	SourceURL   string    `json:"source_url"`
	Films       []Film    `json:"films"`
}

// CacheEntry is one persisted enrichment lookup, fresh or stale. An entry with
// empty attributes records a lookup that found nothing, so the miss is not
// retried on every run within the retention window.
type CacheEntry struct {
	Enrichment
	CachedAt time.Time `json:"cached_at"`
}
