package scraper

import (
	"regexp"
	"strings"
)

// BBFC certificate annotations embedded in listing titles: (15), (12A), (PG), (U), (R18).
var certPattern = regexp.MustCompile(`(?i)\((\d+A?|U|PG|R18)\)`)

// Subtitled-screening annotations at the end of a title: "(with subtitles)", "(subtitled)".
var subtitleSuffix = regexp.MustCompile(`(?i)\s*\((?:with\s+subtitles|subtitled|subtitles)\)\s*$`)

// Format suffix: " - HFR 3D" (high frame rate 3D) is not part of the movie name.
var formatSuffix = regexp.MustCompile(`(?i)\s*-\s*HFR\s*3D\s*$`)

// StripFormatSuffix removes trailing format markers like " - HFR 3D" from a
// display title.
func StripFormatSuffix(title string) string {
	return strings.Trim(formatSuffix.ReplaceAllString(title, ""), " -")
}

// NormalizeSearchTitle strips certificate, subtitle, and format annotations so
// the result is a stable external-search key, e.g. "Send Help (15)" -> "Send Help".
// The output is reproducible for cache-key purposes: whitespace is collapsed
// and stray separators trimmed.
func NormalizeSearchTitle(title string) string {
	t := StripFormatSuffix(title)
	t = subtitleSuffix.ReplaceAllString(t, "")
	t = certPattern.ReplaceAllString(t, "")
	t = strings.Join(strings.Fields(t), " ")
	return strings.Trim(t, " -")
}

// ExtractCertificate returns the BBFC certificate embedded in the title
// ("Send Help (15)" -> "15"), or "" when the title carries none.
func ExtractCertificate(title string) string {
	m := certPattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// SubtitledTitle reports whether the title names a subtitled screening variant.
func SubtitledTitle(title string) bool {
	return subtitleSuffix.MatchString(title)
}
