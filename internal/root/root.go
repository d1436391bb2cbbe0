// Package root builds the CLI command tree.
package root

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"
	"github.com/urfave/cli/v3"

	"github.com/jhosking/wtw-watcher/internal"
	"github.com/jhosking/wtw-watcher/internal/config"
	"github.com/jhosking/wtw-watcher/internal/enrichment"
	"github.com/jhosking/wtw-watcher/internal/httputil"
	"github.com/jhosking/wtw-watcher/internal/pipeline"
	"github.com/jhosking/wtw-watcher/internal/scraper"
	"github.com/jhosking/wtw-watcher/internal/site"
)

// Exit statuses. The scheduler uses them to tell a broken run from a noisy
// page or an overlapping invocation.
const (
	ExitFailure     = 1
	ExitQualityGate = 2
	ExitLockHeld    = 3
)

// RootOption configures the root command (e.g. for tests).
type RootOption func(*rootConfig)

type rootConfig struct {
	registry scraper.Registry
}

// WithRegistry sets the scraper registry. Use in tests to inject scrapers
// pointed at golden HTTP servers.
func WithRegistry(registry scraper.Registry) RootOption {
	return func(c *rootConfig) {
		c.registry = registry
	}
}

func Root(_ context.Context, opts ...RootOption) (*cli.Command, error) {
	rc := &rootConfig{}
	for _, opt := range opts {
		opt(rc)
	}

	configFlag := &cli.StringFlag{
		Name:  "config",
		Usage: "path to a config file (defaults and environment apply without one)",
	}
	verboseFlag := &cli.BoolFlag{
		Name:  "verbose",
		Usage: "enable debug logging",
	}

	return &cli.Command{
		Name:  "wtw-watcher",
		Usage: "scrape a WTW cinema's listings and regenerate the static site when they change",
		Flags: []cli.Flag{configFlag, verboseFlag},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := slog.LevelInfo
			if cmd.Bool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return ctx, nil
		},
		Commands: []*cli.Command{
			runCommand(rc),
			renderCommand(),
			pullGoldenCommand(rc),
		},
	}, nil
}

func runCommand(rc *rootConfig) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "execute one scrape-enrich-publish cycle",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("config: %v", err), ExitFailure)
			}

			// Overlapping runs would race on the cache, document, and
			// fingerprint files.
			lock := flock.New(cfg.Output.LockPath)
			locked, err := lock.TryLock()
			if err != nil {
				return cli.Exit(fmt.Sprintf("lock: %v", err), ExitFailure)
			}
			if !locked {
				return cli.Exit("another run is already in progress", ExitLockHeld)
			}
			defer func() { _ = lock.Unlock() }()

			p, err := buildPipeline(cfg, rc.registry)
			if err != nil {
				return cli.Exit(err.Error(), ExitFailure)
			}

			result, err := p.Run(ctx)
			switch {
			case errors.Is(err, pipeline.ErrQualityGate):
				return cli.Exit(err.Error(), ExitQualityGate)
			case err != nil:
				return cli.Exit(err.Error(), ExitFailure)
			}
			slog.Info("run complete",
				"changed", result.Changed,
				"films", result.Films,
				"missing_enrichment", result.MissingEnrichment,
			)
			return nil
		},
	}
}

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "regenerate the site from the persisted document without scraping",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("config: %v", err), ExitFailure)
			}
			doc, err := pipeline.LoadDocument(cfg.Output.DocumentPath)
			if err != nil {
				return cli.Exit(err.Error(), ExitFailure)
			}
			if err := site.Render(doc, cfg.Output.SitePath); err != nil {
				return cli.Exit(err.Error(), ExitFailure)
			}
			slog.Info("rendered site", "path", cfg.Output.SitePath, "films", len(doc.Films))
			return nil
		},
	}
}

func pullGoldenCommand(rc *rootConfig) *cli.Command {
	return &cli.Command{
		Name:  "pull-golden",
		Usage: "fetch the live listings page and store it as golden test data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "directory the golden page is written to",
				Value: "internal/scraper/golden/wtw",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("config: %v", err), ExitFailure)
			}
			s, err := resolveScraper(cfg, rc.registry)
			if err != nil {
				return cli.Exit(err.Error(), ExitFailure)
			}
			golden, ok := s.(internal.GoldenScraper)
			if !ok {
				return cli.Exit("scraper does not support golden data", ExitFailure)
			}
			if err := golden.PullGolden(ctx, cmd.String("dir")); err != nil {
				return cli.Exit(err.Error(), ExitFailure)
			}
			slog.Info("pulled golden data", "dir", cmd.String("dir"))
			return nil
		},
	}
}

func buildPipeline(cfg config.Config, registry scraper.Registry) (*pipeline.Pipeline, error) {
	s, err := resolveScraper(cfg, registry)
	if err != nil {
		return nil, err
	}

	// Cert badges come from the same site as the listings, sent with a
	// referer the way a browser viewing the page would.
	assetFetcher := httputil.NewFetcher(
		httputil.WithTimeout(cfg.FetchTimeout()),
		httputil.WithRetries(cfg.Fetch.MaxRetries),
		httputil.WithBackoff(cfg.RetryDelay(), cfg.Fetch.RetryMultiplier),
		httputil.WithUserAgent(cfg.Fetch.UserAgent),
		httputil.WithReferer(cfg.Source.BaseURL+"/"),
	)
	assets := site.NewAssets(assetFetcher, cfg.Output.PostersDir, cfg.Output.CertsDir,
		site.AssetsWithCertBaseURL(cfg.Source.BaseURL+site.CertBadgePath),
		site.AssetsWithIconURL(cfg.Source.BaseURL+site.ThreeDIconPath))

	opts := []pipeline.Option{pipeline.WithAssets(assets)}

	if cfg.TMDB.APIKey != "" {
		store, err := enrichment.OpenStore(cfg.Cache.Path, cfg.CacheRetention())
		if err != nil {
			return nil, err
		}
		provider, err := enrichment.TMDB(cfg.TMDB.APIKey, store,
			enrichment.TMDBWithDelay(cfg.EnrichmentDelay()),
			enrichment.TMDBWithLanguage(cfg.TMDB.Language),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithProvider(provider, store))
	} else {
		slog.Info("TMDB enrichment not configured", "reason", "no api key")
	}

	return pipeline.New(cfg, s, opts...), nil
}

func resolveScraper(cfg config.Config, registry scraper.Registry) (internal.Scraper, error) {
	if registry == nil {
		fetcher := httputil.NewFetcher(
			httputil.WithTimeout(cfg.FetchTimeout()),
			httputil.WithRetries(cfg.Fetch.MaxRetries),
			httputil.WithBackoff(cfg.RetryDelay(), cfg.Fetch.RetryMultiplier),
			httputil.WithUserAgent(cfg.Fetch.UserAgent),
		)
		registry = scraper.NewRegistry(
			scraper.WithScraper(scraper.WTW(
				scraper.WTWWithBaseURL(cfg.Source.BaseURL),
				scraper.WTWWithCinema(cfg.Source.Cinema),
				scraper.WTWWithFetcher(fetcher),
			)),
		)
	}
	return registry.GetScraper("wtw:" + cfg.Source.Cinema)
}
