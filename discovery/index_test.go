package discovery

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIndex(t *testing.T) {
	lines := []string{
		"Our Communities",
		"NOVEL Midtown",
		"Atlanta, GA",
		"Now Leasing",
		"NOVEL Edgewater | Coming Soon",
		"NOVEL Daybreak",
		"NOVEL Old Fourth Ward",
		"Charlotte, NC",
		"Photos",
		"Amenities",
		"Floor Plans",
		"Legacy",
		"NOVEL Midtown",
		"Leasing",
	}

	got := ParseIndex(lines, "NOVEL ", 4)
	require.Len(t, got, 4)
	assert.Equal(t, Candidate{Name: "NOVEL Midtown", Status: StatusLeasing}, got[0])
	assert.Equal(t, Candidate{Name: "NOVEL Edgewater", Status: StatusComingSoon}, got[1])
	// window stops at the next community line
	assert.Equal(t, Candidate{Name: "NOVEL Daybreak", Status: StatusUnknown}, got[2])
	// status is five lines away, outside a lookahead of four
	assert.Equal(t, Candidate{Name: "NOVEL Old Fourth Ward", Status: StatusUnknown}, got[3])
}

func TestParseIndex_EmptyMarker(t *testing.T) {
	assert.Empty(t, ParseIndex([]string{"NOVEL Midtown"}, "", 3))
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusComingSoon, ParseStatus("COMING SOON 2027"))
	assert.Equal(t, StatusComingSoon, ParseStatus("coming_soon"))
	assert.Equal(t, StatusLeasing, ParseStatus("Pre-Leasing Now"))
	assert.Equal(t, StatusLegacy, ParseStatus("Legacy Community"))
	assert.Equal(t, StatusUnknown, ParseStatus("Atlanta, GA"))
}

func TestTextLines(t *testing.T) {
	html := `<html><head><title>x</title></head><body>
		<div>Intro <b>bold</b> tail</div>
		<script>var NOVEL = 1;</script>
		<ul><li>NOVEL   Midtown</li><li>Now Leasing</li></ul>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, []string{"Intro", "bold", "tail", "NOVEL Midtown", "Now Leasing"}, TextLines(doc))
}
