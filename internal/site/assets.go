package site

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhosking/wtw-watcher/internal"
	"github.com/jhosking/wtw-watcher/internal/httputil"
)

// BBFC certificate badge images served by the cinema's own theme. Downloaded
// once so the generated site never hotlinks them.
var certImages = map[string]string{
	"U": "cert-u.png", "PG": "cert-pg.png", "12A": "cert-12a.png",
	"15": "cert-15.png", "18": "cert-18.png",
}

// CertBadgePath is where the cinema's theme serves its badge images, relative
// to the site base URL.
const CertBadgePath = "/wp-content/themes/wtw-2017/dist/images"

const threeDIconName = "3D-Performance.png"

// ThreeDIconPath is where the site hosts the 3D poster overlay, relative to
// the site base URL. It lives in the uploads area, not the theme.
const ThreeDIconPath = "/wp-content/uploads/2022/11/" + threeDIconName

const (
	defaultCertBaseURL = "https://wtwcinemas.co.uk" + CertBadgePath
	defaultIconURL     = "https://wtwcinemas.co.uk" + ThreeDIconPath
)

// Assets downloads the images the generated site references locally: film
// posters and certificate badges. All downloads are best effort; a missing
// image degrades the page, it never fails the run.
type Assets struct {
	fetcher     *httputil.Fetcher
	postersDir  string
	certsDir    string
	certBaseURL string
	iconURL     string
}

// AssetsOption applies configuration to an asset downloader.
type AssetsOption func(*Assets)

// AssetsWithCertBaseURL overrides the certificate badge source. Used in tests.
func AssetsWithCertBaseURL(baseURL string) AssetsOption {
	return func(a *Assets) {
		if baseURL != "" {
			a.certBaseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// AssetsWithIconURL overrides the 3D overlay icon source. Used in tests.
func AssetsWithIconURL(iconURL string) AssetsOption {
	return func(a *Assets) {
		if iconURL != "" {
			a.iconURL = iconURL
		}
	}
}

func NewAssets(fetcher *httputil.Fetcher, postersDir, certsDir string, opts ...AssetsOption) *Assets {
	a := &Assets{
		fetcher:     fetcher,
		postersDir:  postersDir,
		certsDir:    certsDir,
		certBaseURL: defaultCertBaseURL,
		iconURL:     defaultIconURL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LocalizePosters downloads each film's poster into the posters directory and
// rewrites the poster URL to the local relative path, so the persisted
// document and the generated page reference files under our control. Films
// whose poster cannot be fetched keep the remote URL.
func (a *Assets) LocalizePosters(ctx context.Context, films []internal.Film) {
	for i := range films {
		film := &films[i]
		if film.Enrichment == nil || !strings.HasPrefix(film.Enrichment.PosterURL, "http") {
			continue
		}
		local, err := a.downloadPoster(ctx, film.Enrichment.PosterURL, film.Slug)
		if err != nil {
			slog.Warn("poster download failed", "title", film.Title, "error", err)
			continue
		}
		film.Enrichment.PosterURL = local
	}
}

func (a *Assets) downloadPoster(ctx context.Context, posterURL, slug string) (string, error) {
	name := posterFileName(posterURL, slug)
	path := filepath.Join(a.postersDir, name)
	rel := a.postersDir + "/" + name
	if _, err := os.Stat(path); err == nil {
		return rel, nil
	}

	body, err := a.fetcher.Fetch(ctx, posterURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(a.postersDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create posters dir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return "", fmt.Errorf("failed to write poster: %w", err)
	}
	return rel, nil
}

func posterFileName(posterURL, slug string) string {
	clean := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, strings.ToLower(slug))
	if clean == "" {
		clean = "poster"
	}
	ext := "jpg"
	lower := strings.ToLower(posterURL)
	switch {
	case strings.Contains(lower, ".webp"):
		ext = "webp"
	case strings.Contains(lower, ".png"):
		ext = "png"
	}
	return clean + "." + ext
}

// FetchCertBadges downloads any certificate badge images not already on
// disk, plus the 3D overlay icon the poster references.
func (a *Assets) FetchCertBadges(ctx context.Context) {
	for cert, name := range certImages {
		if err := a.fetchBadge(ctx, a.certBaseURL+"/"+name, name); err != nil {
			slog.Warn("cert badge download failed", "cert", cert, "error", err)
		}
	}
	if err := a.fetchBadge(ctx, a.iconURL, threeDIconName); err != nil {
		slog.Warn("3D icon download failed", "error", err)
	}
}

func (a *Assets) fetchBadge(ctx context.Context, url, name string) error {
	path := filepath.Join(a.certsDir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	body, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.certsDir, 0o750); err != nil {
		return fmt.Errorf("failed to create certs dir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// HasCertBadge reports whether a local badge image exists for the certificate.
func HasCertBadge(cert string) bool {
	_, ok := certImages[strings.ToUpper(cert)]
	return ok
}
