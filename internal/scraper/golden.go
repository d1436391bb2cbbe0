package scraper

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeGoldenFiles creates goldenDir and writes each map entry verbatim.
// Golden pages are stored exactly as fetched so tests exercise the same bytes
// the extractor sees in production.
func writeGoldenFiles(goldenDir string, files map[string][]byte) error {
	if err := os.MkdirAll(goldenDir, 0o750); err != nil {
		return fmt.Errorf("failed to create golden dir: %w", err)
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(goldenDir, name), body, 0o600); err != nil {
			return fmt.Errorf("failed to write %s golden file: %w", name, err)
		}
	}
	return nil
}
