package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/jhosking/wtw-watcher/internal"
	"github.com/jhosking/wtw-watcher/internal/httputil"
)

// ErrPageStructure signals that the listings page no longer contains the
// expected film listing markup at all. It is distinct from a page that parses
// but legitimately has no films showing.
var ErrPageStructure = errors.New("film listing structure not found in page")

const (
	defaultWTWBaseURL = "https://wtwcinemas.co.uk"
	defaultWTWCinema  = "st-austell"
)

// Accessibility and format labels WTW attaches to individual performances.
var performanceTags = []string{
	"Audio Description", "Subtitles", "Wheelchair access", "Silver Screen",
	"2D", "3D", "Event cinema", "Strobe Light warning", "Parent & Baby",
	"Autism Friendly", "Kids Club",
}

// Promotional blocks that share the film-item markup but are not films.
var skipTitles = []string{
	"looking ahead", "gaming", "private cinema", "onscreen magazine", "book the cinema",
}

var londonTZ *time.Location

func init() {
	var err error
	londonTZ, err = time.LoadLocation("Europe/London")
	if err != nil {
		londonTZ = time.UTC
	}
}

type wtwScraper struct {
	baseURL       string
	cinema        string
	uuidNamespace uuid.UUID
	fetcher       *httputil.Fetcher
	now           func() time.Time
}

// WTWOption applies configuration to a WTW Cinemas scraper.
type WTWOption func(*wtwScraper)

// WTWWithBaseURL sets the site base URL (e.g. httptest.Server.URL in tests).
func WTWWithBaseURL(baseURL string) WTWOption {
	return func(s *wtwScraper) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WTWWithCinema selects the cinema slug whose whats-on page is scraped.
func WTWWithCinema(slug string) WTWOption {
	return func(s *wtwScraper) {
		if slug != "" {
			s.cinema = slug
		}
	}
}

// WTWWithFetcher injects the resilient fetcher used for page retrieval.
func WTWWithFetcher(f *httputil.Fetcher) WTWOption {
	return func(s *wtwScraper) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WTWWithNow fixes the reference time used to resolve "Today"/"Tomorrow" date
// headers. Used in tests against golden pages.
func WTWWithNow(now func() time.Time) WTWOption {
	return func(s *wtwScraper) {
		if now != nil {
			s.now = now
		}
	}
}

func WTW(opts ...WTWOption) internal.Scraper {
	s := &wtwScraper{
		baseURL: defaultWTWBaseURL,
		cinema:  defaultWTWCinema,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.uuidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte(s.baseURL+"/"+s.cinema))
	if s.fetcher == nil {
		s.fetcher = httputil.NewFetcher()
	}
	return s
}

func (s *wtwScraper) Descriptor() string {
	return "wtw:" + s.cinema
}

// WhatsOnURL returns the listings page URL for the configured cinema.
func (s *wtwScraper) WhatsOnURL() string {
	return s.baseURL + "/" + s.cinema + "/whats-on/"
}

func (s *wtwScraper) ScrapeFilms(ctx context.Context) ([]internal.Film, error) {
	body, err := s.fetcher.Fetch(ctx, s.WhatsOnURL())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings page: %w", err)
	}
	return s.extract(body)
}

// PullGolden fetches the live listings page and saves it as golden test data.
func (s *wtwScraper) PullGolden(ctx context.Context, goldenDir string) error {
	body, err := s.fetcher.Fetch(ctx, s.WhatsOnURL())
	if err != nil {
		return fmt.Errorf("failed to fetch golden data: %w", err)
	}
	return writeGoldenFiles(goldenDir, map[string][]byte{
		"whats-on.html": body,
	})
}

func (s *wtwScraper) MountGolden(_ context.Context, goldenDir string) (http.Handler, error) {
	page, err := os.ReadFile(filepath.Join(goldenDir, "whats-on.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to read whats-on golden file: %w", err)
	}

	path := "/" + s.cinema + "/whats-on/"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == path && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write(page)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}), nil
}

// extract parses the listings page into films. Zero recognizable film items is
// only an error when the listing container itself is missing; an empty listing
// is a valid result.
func (s *wtwScraper) extract(page []byte) ([]internal.Film, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse listings page: %w", err)
	}

	items := doc.Find("li.js-film")
	if items.Length() == 0 {
		if doc.Find("ul.listing--items").Length() == 0 {
			return nil, ErrPageStructure
		}
		return nil, nil
	}

	var films []internal.Film
	var skipped int
	items.Each(func(_ int, li *goquery.Selection) {
		film, ok := s.parseFilm(li)
		if !ok {
			skipped++
			return
		}
		if len(film.Showtimes) == 0 {
			// A film with no parseable performances is an empty shell.
			slog.Debug("wtw: dropping film with no showtimes", "title", film.Title)
			return
		}
		films = append(films, film)
	})
	slog.Debug("wtw: extracted films", "films", len(films), "skipped_blocks", skipped)
	return films, nil
}

var (
	runtimePattern = regexp.MustCompile(`(?i)(\d+)\s*minutes?`)
	timePattern    = regexp.MustCompile(`(\d{1,2}:\d{2})`)
	screenPattern  = regexp.MustCompile(`(?i)Screen:?\s*(\d+)`)
	castPattern    = regexp.MustCompile(`(?i)starring\s*:\s*(.+)`)
)

func (s *wtwScraper) parseFilm(li *goquery.Selection) (internal.Film, bool) {
	link := li.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		return ok && strings.Contains(href, "/film/") && strings.Contains(href, s.cinema)
	}).First()
	href, ok := link.Attr("href")
	if !ok {
		slog.Warn("wtw: skipping film block without a film link")
		return internal.Film{}, false
	}

	title := collapseSpace(li.Find("h2").First().Text())
	if title == "" {
		title = collapseSpace(link.Text())
	}
	title = strings.NewReplacer("–", "-", "—", "-").Replace(title)
	title = StripFormatSuffix(title)
	if title == "" {
		slog.Warn("wtw: skipping film block without a title", "href", href)
		return internal.Film{}, false
	}
	lower := strings.ToLower(title)
	for _, skip := range skipTitles {
		if strings.Contains(lower, skip) {
			return internal.Film{}, false
		}
	}

	film := internal.Film{
		Title:       title,
		SearchTitle: NormalizeSearchTitle(title),
		Slug:        slugFromFilmURL(href),
		Certificate: ExtractCertificate(title),
		FilmURL:     s.resolveURL(href),
	}

	li.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := collapseSpace(p.Text())
		lower := strings.ToLower(text)
		if len(text) > 80 && !strings.Contains(lower, "starring") && !strings.Contains(lower, "running time") {
			film.Synopsis = truncate(text, 500)
			return false
		}
		return true
	})

	li.Find("p, li, span, h3").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		m := castPattern.FindStringSubmatch(collapseSpace(el.Text()))
		if m == nil {
			return true
		}
		film.Cast = splitNames(m[1])
		return len(film.Cast) == 0
	})

	if m := runtimePattern.FindStringSubmatch(li.Text()); m != nil {
		film.RuntimeMin, _ = strconv.Atoi(m[1])
	}

	film.Showtimes = s.parseShowtimes(li, film.Slug)
	return film, true
}

func (s *wtwScraper) parseShowtimes(li *goquery.Selection, slug string) []internal.Showtime {
	var showtimes []internal.Showtime
	seen := make(map[string]struct{})

	li.Find("ul.dates li.js-performance-date").Each(func(_ int, dateLI *goquery.Selection) {
		date, ok := parseUKDate(collapseSpace(ownDateText(dateLI)), s.now())
		if !ok {
			return
		}
		dateLI.Find("li.js-performance").Each(func(_ int, perf *goquery.Selection) {
			text := collapseSpace(perf.Text())
			tm := timePattern.FindString(text)
			if tm == "" {
				return
			}
			startsAt, err := time.ParseInLocation("2006-01-02 15:04", date+" "+tm, londonTZ)
			if err != nil {
				return
			}

			screen := 1
			if m := screenPattern.FindStringSubmatch(text); m != nil {
				screen, _ = strconv.Atoi(m[1])
			}

			key := fmt.Sprintf("%s|%s|%d", date, tm, screen)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}

			var tags []string
			lower := strings.ToLower(text)
			for _, tag := range performanceTags {
				if strings.Contains(lower, strings.ToLower(tag)) {
					tags = append(tags, tag)
				}
			}
			if len(tags) == 0 {
				tags = []string{"2D"}
			}

			var bookingURL string
			booking := perf.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
				href, ok := a.Attr("href")
				return ok && strings.Contains(href, "performance=")
			}).First()
			if href, ok := booking.Attr("href"); ok {
				bookingURL = s.resolveURL(href)
			}

			showtimes = append(showtimes, internal.Showtime{
				ID:         uuid.NewSHA1(s.uuidNamespace, []byte(slug+"|"+key)).String(),
				Date:       date,
				Time:       tm,
				Screen:     screen,
				StartsAt:   startsAt,
				BookingURL: bookingURL,
				Tags:       tags,
			})
		})
	})

	slices.SortFunc(showtimes, func(a, b internal.Showtime) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		if c := strings.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		return a.Screen - b.Screen
	})
	return showtimes
}

// ownDateText returns the date header text of a performance-date item without
// the nested performance list, which would otherwise pollute the date parse.
func ownDateText(dateLI *goquery.Selection) string {
	clone := dateLI.Clone()
	clone.Find("ul, ol, li").Remove()
	text := clone.Text()
	if strings.TrimSpace(text) == "" {
		text = dateLI.Text()
	}
	return text
}

func (s *wtwScraper) resolveURL(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(s.baseURL + "/")
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// slugFromFilmURL extracts the film slug used as a stable identity, e.g.
// "/film/send-help/?screen=st-austell" -> "send-help".
func slugFromFilmURL(href string) string {
	if href == "" {
		return ""
	}
	path := strings.TrimRight(strings.SplitN(href, "?", 2)[0], "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

var (
	fullDatePattern = regexp.MustCompile(`(\d{1,2})\s+([A-Za-z]+)\s+(\d{4})`)
	dayMonthPattern = regexp.MustCompile(`(\d{1,2})\s+([A-Za-z]+)(?:\s|$)`)
)

// parseUKDate resolves WTW date headers like "Today 8 February 2026",
// "Tomorrow 9 February", or "Tuesday 10 February" to an ISO date. Year-less
// dates in the past roll into the next year (listings never look backwards).
func parseUKDate(text string, ref time.Time) (string, bool) {
	lower := strings.ToLower(text)
	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	if strings.Contains(lower, "today") {
		return today.Format(time.DateOnly), true
	}
	if strings.Contains(lower, "tomorrow") {
		return today.AddDate(0, 0, 1).Format(time.DateOnly), true
	}
	if m := fullDatePattern.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("2 January 2006", m[1]+" "+m[2]+" "+m[3]); err == nil {
			return t.Format(time.DateOnly), true
		}
	}
	if m := dayMonthPattern.FindStringSubmatch(text); m != nil {
		t, err := time.Parse("2 January 2006", fmt.Sprintf("%s %s %d", m[1], m[2], ref.Year()))
		if err != nil {
			return "", false
		}
		if t.Before(today) {
			t, err = time.Parse("2 January 2006", fmt.Sprintf("%s %s %d", m[1], m[2], ref.Year()+1))
			if err != nil {
				return "", false
			}
		}
		return t.Format(time.DateOnly), true
	}
	return "", false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func splitNames(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
