package internal

import "context"

type EnrichmentProvider interface {
	// Enrich makes a best-effort attempt to attach metadata to the film.
	// A returned error is per-film and never fatal to the run; the film comes
	// back usable either way.
	Enrich(ctx context.Context, film Film) (Film, error)
}
