package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnit_NormalizeSearchTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Send Help (15)", "Send Help"},
		{"Dune: Part Two (12A) (subtitled)", "Dune: Part Two"},
		{"Dune: Part Two (12A) - HFR 3D", "Dune: Part Two"},
		{"The Roses (15) (with subtitles)", "The Roses"},
		{"Downton Abbey: The Grand Finale (PG)", "Downton Abbey: The Grand Finale"},
		{"Caught Stealing (R18)", "Caught Stealing"},
		{"Plain Title", "Plain Title"},
		{"  Spaced   Out  (U) ", "Spaced Out"},
	}
	for _, tc := range tests {
		t.Run(tc.title, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeSearchTitle(tc.title))
		})
	}
}

func TestUnit_ExtractCertificate(t *testing.T) {
	assert.Equal(t, "15", ExtractCertificate("Send Help (15)"))
	assert.Equal(t, "12A", ExtractCertificate("Dune: Part Two (12A) - HFR 3D"))
	assert.Equal(t, "U", ExtractCertificate("Paddington (U)"))
	assert.Equal(t, "PG", ExtractCertificate("Wicked (PG)"))
	assert.Equal(t, "", ExtractCertificate("No Certificate Here"))
	assert.Equal(t, "12A", ExtractCertificate("Lowercase (12a)"), "certificates are normalized to upper case")
}

func TestUnit_SubtitledTitle(t *testing.T) {
	assert.True(t, SubtitledTitle("Send Help (15) (with subtitles)"))
	assert.True(t, SubtitledTitle("Send Help (15) (subtitled)"))
	assert.False(t, SubtitledTitle("Send Help (15)"))
	assert.False(t, SubtitledTitle("Subtitles: A Documentary (PG)"))
}

func TestUnit_StripFormatSuffix(t *testing.T) {
	assert.Equal(t, "Avatar: Fire and Ash (12A)", StripFormatSuffix("Avatar: Fire and Ash (12A) - HFR 3D"))
	assert.Equal(t, "Send Help (15)", StripFormatSuffix("Send Help (15)"))
}
