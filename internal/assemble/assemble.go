// Package assemble merges scraped films into the canonical listings document.
package assemble

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jhosking/wtw-watcher/internal"
	"github.com/jhosking/wtw-watcher/internal/scraper"
)

// Assemble folds the scraped films into a deterministic document. Films that
// share a search title (a subtitled screening listed as its own card) are
// merged into one entry holding the union of their showtimes. Two runs over
// semantically identical input yield identical documents apart from
// GeneratedAt, which the fingerprint gate ignores.
func Assemble(films []internal.Film, sourceName, sourceURL string, generatedAt time.Time) internal.Document {
	merged := mergeVariants(films)

	for i := range merged {
		canonicalizeFilm(&merged[i])
	}

	slices.SortStableFunc(merged, func(a, b internal.Film) int {
		if c := compareEarliest(a, b); c != 0 {
			return c
		}
		return strings.Compare(a.Title, b.Title)
	})

	return internal.Document{
		GeneratedAt: generatedAt,
		SourceName:  sourceName,
		SourceURL:   sourceURL,
		Films:       merged,
	}
}

// mergeVariants groups films by search title and folds each group into its
// main entry. The non-subtitled variant is the main card; subtitled showtimes
// sort to the bottom the way the cinema's own site presents them.
func mergeVariants(films []internal.Film) []internal.Film {
	groups := make(map[string][]internal.Film)
	var order []string
	for _, f := range films {
		key := f.SearchTitle
		if key == "" {
			key = f.Title
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f)
	}

	merged := make([]internal.Film, 0, len(order))
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			merged = append(merged, group[0])
			continue
		}

		mainIdx := 0
		for i, f := range group {
			if !scraper.SubtitledTitle(f.Title) {
				mainIdx = i
				break
			}
		}
		main := group[mainIdx]

		seen := make(map[string]struct{}, len(main.Showtimes))
		for _, st := range main.Showtimes {
			seen[showtimeKey(st)] = struct{}{}
		}
		for i, f := range group {
			if i == mainIdx {
				continue
			}
			for _, st := range f.Showtimes {
				if _, dup := seen[showtimeKey(st)]; dup {
					continue
				}
				seen[showtimeKey(st)] = struct{}{}
				main.Showtimes = append(main.Showtimes, st)
			}
			if main.Enrichment == nil && f.Enrichment != nil {
				main.Enrichment = f.Enrichment
			}
		}
		merged = append(merged, main)
	}
	return merged
}

func showtimeKey(st internal.Showtime) string {
	return fmt.Sprintf("%s|%s|%d", st.Date, st.Time, st.Screen)
}

// canonicalizeFilm orders the film's collections so serialization is stable.
func canonicalizeFilm(f *internal.Film) {
	slices.SortFunc(f.Showtimes, func(a, b internal.Showtime) int {
		if c := boolCompare(subtitledShowtime(a), subtitledShowtime(b)); c != 0 {
			return c
		}
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		if c := strings.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		return a.Screen - b.Screen
	})
	for i := range f.Showtimes {
		slices.Sort(f.Showtimes[i].Tags)
	}
	if f.Enrichment != nil {
		slices.Sort(f.Enrichment.Genres)
	}
}

func subtitledShowtime(st internal.Showtime) bool {
	return slices.Contains(st.Tags, "Subtitles")
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

func compareEarliest(a, b internal.Film) int {
	ta, tb := earliestStart(a), earliestStart(b)
	switch {
	case ta.Before(tb):
		return -1
	case tb.Before(ta):
		return 1
	default:
		return 0
	}
}

func earliestStart(f internal.Film) time.Time {
	var earliest time.Time
	for _, st := range f.Showtimes {
		if earliest.IsZero() || st.StartsAt.Before(earliest) {
			earliest = st.StartsAt
		}
	}
	if earliest.IsZero() {
		// Films without start times sort last.
		return time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return earliest
}
