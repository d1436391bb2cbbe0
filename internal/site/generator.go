// Package site renders the assembled listings document into a static page.
package site

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/jhosking/wtw-watcher/internal"
)

//go:embed index.tmpl
var indexTemplate string

var pageTemplate = template.Must(template.New("index").Parse(indexTemplate))

type page struct {
	SourceName  string
	SourceURL   string
	GeneratedAt string
	Dates       []dateTab
	Films       []filmCard
}

type dateTab struct {
	ISO   string
	Label string
}

type filmCard struct {
	Title       string
	Certificate string
	CertBadge   string // certs/<file> when a local badge exists
	Runtime     string
	Description string
	PosterSrc   string
	Has3D       bool
	RatingPct   int
	RatingLabel string
	Genres      string
	Director    string
	Writer      string
	Cast        string
	TrailerURL  string
	TrailerID   string // YouTube video ID for the embed lightbox
	FilmURL     string
	IMDbURL     string
	RTURL       string
	TraktURL    string
	Days        []dayGroup
}

type dayGroup struct {
	ISO   string
	Label string
	Shows []showRow
}

type showRow struct {
	Time       string
	Screen     int
	BookingURL string
	Tags       []string
}

// Short labels for performance tags so showtime rows stay compact.
var tagShortLabels = map[string]string{
	"Audio Description":    "AD",
	"Subtitles":            "Subs",
	"Wheelchair access":    "WA",
	"Strobe Light warning": "Strobe",
}

var youtubeIDPattern = regexp.MustCompile(`(?:v=|youtu\.be/)([a-zA-Z0-9_-]{11})`)

// Render writes the document as a self-contained HTML page at path.
func Render(doc internal.Document, path string) error {
	var buf strings.Builder
	if err := pageTemplate.Execute(&buf, buildPage(doc)); err != nil {
		return fmt.Errorf("failed to render site template: %w", err)
	}
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write site page: %w", err)
	}
	return nil
}

func buildPage(doc internal.Document) page {
	p := page{
		SourceName:  doc.SourceName,
		SourceURL:   doc.SourceURL,
		GeneratedAt: doc.GeneratedAt.UTC().Format("2 January 2006 15:04 MST"),
	}

	seenDates := make(map[string]struct{})
	for _, film := range doc.Films {
		for _, st := range film.Showtimes {
			if _, ok := seenDates[st.Date]; !ok {
				seenDates[st.Date] = struct{}{}
				p.Dates = append(p.Dates, dateTab{ISO: st.Date, Label: dateLabel(st.Date)})
			}
		}
		p.Films = append(p.Films, buildFilmCard(film))
	}
	sortTabs(p.Dates)
	return p
}

func buildFilmCard(film internal.Film) filmCard {
	card := filmCard{
		Title:       film.Title,
		Certificate: film.Certificate,
		Runtime:     runtimeLabel(film.RuntimeMin),
		Description: film.Synopsis,
		FilmURL:     film.FilmURL,
		Cast:        strings.Join(film.Cast, ", "),
		IMDbURL:     "https://www.imdb.com/find/?q=" + url.QueryEscape(film.SearchTitle),
		RTURL:       "https://www.rottentomatoes.com/search?search=" + url.QueryEscape(film.SearchTitle),
		TraktURL:    "https://trakt.tv/search?query=" + url.QueryEscape(film.SearchTitle),
	}
	if HasCertBadge(film.Certificate) {
		card.CertBadge = "certs/" + certImages[strings.ToUpper(film.Certificate)]
	}

	if enr := film.Enrichment; enr != nil {
		card.PosterSrc = enr.PosterURL
		card.Genres = strings.Join(clipStrings(enr.Genres, 4), ", ")
		card.Director = enr.Director
		card.Writer = enr.Writer
		if enr.Overview != "" {
			card.Description = enr.Overview
		}
		if len(enr.Cast) > 0 {
			card.Cast = strings.Join(enr.Cast, ", ")
		}
		if enr.Rating > 0 {
			pct := int(enr.Rating * 10)
			if pct > 100 {
				pct = 100
			}
			card.RatingPct = pct
			card.RatingLabel = fmt.Sprintf("%.1f/10", enr.Rating)
		}
		if enr.IMDbID != "" {
			card.IMDbURL = "https://www.imdb.com/title/" + enr.IMDbID + "/"
		}
		if enr.TrailerURL != "" {
			card.TrailerURL = enr.TrailerURL
			if m := youtubeIDPattern.FindStringSubmatch(enr.TrailerURL); m != nil {
				card.TrailerID = m[1]
			}
		}
	}
	if card.Description != "" {
		card.Description = truncateRunes(card.Description, 500)
	}

	var current *dayGroup
	for _, st := range film.Showtimes {
		if strings.Contains(strings.Join(st.Tags, " "), "3D") {
			card.Has3D = true
		}
		if current == nil || current.ISO != st.Date {
			card.Days = append(card.Days, dayGroup{ISO: st.Date, Label: dateLabel(st.Date)})
			current = &card.Days[len(card.Days)-1]
		}
		current.Shows = append(current.Shows, showRow{
			Time:       st.Time,
			Screen:     st.Screen,
			BookingURL: st.BookingURL,
			Tags:       shortTags(st.Tags),
		})
	}
	return card
}

func shortTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range clipStrings(tags, 4) {
		if short, ok := tagShortLabels[tag]; ok {
			tag = short
		}
		out = append(out, tag)
	}
	return out
}

func dateLabel(iso string) string {
	t, err := time.Parse(time.DateOnly, iso)
	if err != nil {
		return iso
	}
	return t.Format("Mon 02 Jan")
}

func runtimeLabel(minutes int) string {
	if minutes <= 0 {
		return ""
	}
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%d min (%dh)", minutes, h)
	}
	return fmt.Sprintf("%d min (%dh %dm)", minutes, h, m)
}

func sortTabs(tabs []dateTab) {
	slices.SortFunc(tabs, func(a, b dateTab) int {
		return strings.Compare(a.ISO, b.ISO)
	})
}

func clipStrings(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
