package internal

import (
	"context"
	"net/http"
)

type Scraper interface {
	// Descriptor returns the site descriptor (e.g. for registry lookup and golden dirs).
	Descriptor() string
	ScrapeFilms(ctx context.Context) ([]Film, error)
}

// GoldenScraper extends Scraper with the ability to pull and serve golden test data.
type GoldenScraper interface {
	Scraper
	PullGolden(ctx context.Context, goldenDir string) error
	MountGolden(ctx context.Context, goldenDir string) (http.Handler, error)
}
