package enrichment

import (
	"context"
	"log/slog"

	"github.com/jhosking/wtw-watcher/internal"
)

// EnrichFilms runs the provider over every film in order, one at a time.
// Provider errors are per-film and never abort the batch; an errored film
// keeps whatever metadata the provider managed to attach. Returns the films
// and the number that ended the pass without metadata.
func EnrichFilms(ctx context.Context, films []internal.Film, provider internal.EnrichmentProvider) ([]internal.Film, int) {
	var missing int
	for i, film := range films {
		enriched, err := provider.Enrich(ctx, film)
		if err != nil {
			slog.Warn("enrichment failed",
				"title", film.Title,
				"search_title", film.SearchTitle,
				"error", err,
			)
		}
		films[i] = enriched
		if !enriched.Enriched() {
			missing++
		}
		slog.Debug("enrichment result",
			"title", film.Title,
			"enriched", enriched.Enriched(),
		)
	}
	return films, missing
}
