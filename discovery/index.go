// Package discovery builds a provider's property roster from a portfolio
// index page: community names, their canonical sites and the floor plan path
// each site's platform uses.
package discovery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Status string

const (
	StatusLeasing    Status = "leasing"
	StatusLegacy     Status = "legacy"
	StatusComingSoon Status = "coming_soon"
	StatusUnknown    Status = ""
)

// Candidate is one community name found on an index page.
type Candidate struct {
	Name   string
	Status Status
}

var statusTokens = []struct {
	token  string
	status Status
}{
	{"coming soon", StatusComingSoon},
	{"coming_soon", StatusComingSoon},
	{"now leasing", StatusLeasing},
	{"pre-leasing", StatusLeasing},
	{"leasing", StatusLeasing},
	{"legacy", StatusLegacy},
}

// ParseStatus maps free text to a status. Unrecognized text is StatusUnknown.
func ParseStatus(text string) Status {
	lower := strings.ToLower(text)
	for _, st := range statusTokens {
		if strings.Contains(lower, st.token) {
			return st.status
		}
	}
	return StatusUnknown
}

// ParseIndex finds lines starting with marker and looks at most lookahead
// following lines for a status token. The window stops early at the next
// community line. Duplicate names keep their first occurrence.
func ParseIndex(lines []string, marker string, lookahead int) []Candidate {
	var out []Candidate
	seen := map[string]bool{}

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if marker == "" || !strings.HasPrefix(line, marker) {
			continue
		}
		name := cleanName(line)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true

		c := Candidate{Name: name, Status: ParseStatus(strings.TrimPrefix(line, name))}
		for j := i + 1; c.Status == StatusUnknown && j < len(lines) && j <= i+lookahead; j++ {
			next := strings.TrimSpace(lines[j])
			if strings.HasPrefix(next, marker) {
				break
			}
			c.Status = ParseStatus(next)
		}
		out = append(out, c)
	}
	return out
}

// cleanName cuts trailing decoration such as "NOVEL Midtown | Atlanta, GA".
func cleanName(line string) string {
	for _, sep := range []string{" | ", " - ", " – ", " — ", "\t"} {
		if i := strings.Index(line, sep); i > 0 {
			line = line[:i]
		}
	}
	return strings.TrimSpace(line)
}

// TextLines returns the non-empty text runs of a document in order, one per
// text node. Script and style content is skipped.
func TextLines(doc *goquery.Document) []string {
	var lines []string
	collectLines(doc.Find("body"), &lines)
	return lines
}

func collectLines(sel *goquery.Selection, lines *[]string) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			if t := strings.Join(strings.Fields(c.Text()), " "); t != "" {
				*lines = append(*lines, t)
			}
		case "script", "style", "noscript", "#comment":
		default:
			collectLines(c, lines)
		}
	})
}
