package scraper

import (
	"errors"
	"fmt"

	"github.com/jhosking/wtw-watcher/internal"
)

// Registry resolves a configured site descriptor to its scraper. Only one
// cinema is polled today, but the lookup keeps the pipeline independent of the
// concrete site.
type Registry interface {
	GetScraper(descriptor string) (internal.Scraper, error)
}

type RegistryOption func(r *registry)

func NewRegistry(opts ...RegistryOption) Registry {
	r := &registry{
		scrapers: make(map[string]internal.Scraper),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func WithScraper(scraper internal.Scraper) RegistryOption {
	return func(r *registry) {
		r.scrapers[scraper.Descriptor()] = scraper
	}
}

type registry struct {
	scrapers map[string]internal.Scraper
}

var ErrScraperNotFound = errors.New("scraper not found")

func (r *registry) GetScraper(descriptor string) (internal.Scraper, error) {
	scraper, ok := r.scrapers[descriptor]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScraperNotFound, descriptor)
	}
	return scraper, nil
}
