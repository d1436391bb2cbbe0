// Package pipeline runs one scrape-enrich-publish cycle end to end.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jhosking/wtw-watcher/internal"
	"github.com/jhosking/wtw-watcher/internal/assemble"
	"github.com/jhosking/wtw-watcher/internal/config"
	"github.com/jhosking/wtw-watcher/internal/enrichment"
	"github.com/jhosking/wtw-watcher/internal/fingerprint"
	"github.com/jhosking/wtw-watcher/internal/site"
)

// ErrQualityGate signals that the run completed and published, but more films
// than allowed ended up without metadata.
var ErrQualityGate = errors.New("too many films without metadata")

// Result summarizes one run for the caller.
type Result struct {
	Changed           bool
	Fingerprint       string
	Films             int
	MissingEnrichment int
}

type Pipeline struct {
	cfg      config.Config
	scraper  internal.Scraper
	provider internal.EnrichmentProvider
	store    *enrichment.Store
	assets   *site.Assets
	gate     *fingerprint.Gate
	now      func() time.Time
}

// Option applies configuration to a pipeline.
type Option func(*Pipeline)

// WithProvider sets the enrichment provider. Without one, metadata is carried
// forward from the previously persisted document instead.
func WithProvider(provider internal.EnrichmentProvider, store *enrichment.Store) Option {
	return func(p *Pipeline) {
		p.provider = provider
		p.store = store
	}
}

// WithAssets sets the downloader that localizes posters and badge images.
func WithAssets(assets *site.Assets) Option {
	return func(p *Pipeline) {
		p.assets = assets
	}
}

// WithNow fixes the clock. Used in tests.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func New(cfg config.Config, scraper internal.Scraper, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		scraper: scraper,
		gate:    fingerprint.NewGate(cfg.Output.FingerprintPath),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one full cycle. Scrape failures are fatal; enrichment and
// asset failures degrade the output but never abort. The fingerprint gate
// decides at the end whether anything is persisted.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	films, err := p.scraper.ScrapeFilms(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("scrape failed: %w", err)
	}
	slog.Info("scraped listings", "source", p.scraper.Descriptor(), "films", len(films))

	var missing int
	if p.provider != nil {
		films, missing = enrichment.EnrichFilms(ctx, films, p.provider)
		if p.store != nil {
			if err := p.store.Save(); err != nil {
				slog.Warn("failed to persist metadata cache", "error", err)
			}
		}
	} else {
		slog.Info("no metadata provider configured; carrying forward previous metadata")
		films, missing = p.carryForward(films)
	}

	if p.assets != nil {
		p.assets.LocalizePosters(ctx, films)
		p.assets.FetchCertBadges(ctx)
	}

	doc := assemble.Assemble(films, p.cfg.Source.Name, p.cfg.Source.WhatsOnURL(), p.now())

	digest, err := fingerprint.Compute(doc)
	if err != nil {
		return Result{}, err
	}
	changed, err := p.gate.HasChanged(digest)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Changed:           changed,
		Fingerprint:       digest,
		Films:             len(doc.Films),
		MissingEnrichment: missing,
	}

	if changed {
		if err := p.publish(doc, digest); err != nil {
			return result, err
		}
		slog.Info("published updated listings", "films", len(doc.Films), "fingerprint", digest)
	} else {
		slog.Info("listings unchanged; skipping publish", "fingerprint", digest)
	}

	if limit := p.cfg.Quality.MaxMissingEnrichment; limit >= 0 && missing > limit {
		return result, fmt.Errorf("%w: %d of %d films (limit %d)", ErrQualityGate, missing, len(doc.Films), limit)
	}
	return result, nil
}

// publish writes the document before the site, and the fingerprint only after
// both, so a crash mid-publish re-publishes on the next run rather than
// leaving the stored digest ahead of the artifacts.
func (p *Pipeline) publish(doc internal.Document, digest string) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := os.WriteFile(p.cfg.Output.DocumentPath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := site.Render(doc, p.cfg.Output.SitePath); err != nil {
		return err
	}
	return p.gate.Store(digest)
}

// carryForward copies metadata from the previously persisted document into
// films that match by film URL, so posters and ratings survive runs made
// without an API key.
func (p *Pipeline) carryForward(films []internal.Film) ([]internal.Film, int) {
	previous, err := LoadDocument(p.cfg.Output.DocumentPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("could not read previous document for metadata carry-forward", "error", err)
		}
	}
	byURL := make(map[string]*internal.Enrichment, len(previous.Films))
	for i := range previous.Films {
		if previous.Films[i].Enrichment != nil {
			byURL[previous.Films[i].FilmURL] = previous.Films[i].Enrichment
		}
	}

	var missing int
	for i := range films {
		if films[i].Enrichment == nil {
			if enr, ok := byURL[films[i].FilmURL]; ok {
				films[i].Enrichment = enr
			}
		}
		if !films[i].Enriched() {
			missing++
		}
	}
	return films, missing
}

// LoadDocument reads a previously persisted listings document.
func LoadDocument(path string) (internal.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return internal.Document{}, fmt.Errorf("failed to read document: %w", err)
	}
	var doc internal.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return internal.Document{}, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}
