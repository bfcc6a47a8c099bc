package identity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"apt_scrooper/models"
)

var (
	streetReplacements = map[string]string{
		"street":    "st",
		"avenue":    "ave",
		"drive":     "dr",
		"road":      "rd",
		"boulevard": "blvd",
		"lane":      "ln",
		"court":     "ct",
		"place":     "pl",
		"circle":    "cir",
		"crescent":  "cres",
		"terrace":   "ter",
		"highway":   "hwy",
		"parkway":   "pkwy",
		"square":    "sq",
		"trail":     "trl",
		"way":       "wy",
		"north":     "n",
		"south":     "s",
		"east":      "e",
		"west":      "w",
		"northeast": "ne",
		"northwest": "nw",
		"southeast": "se",
		"southwest": "sw",
		"apartment": "apt",
		"suite":     "ste",
		"building":  "bldg",
	}
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]`)
	slugRegex       = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeAddress lowercases, strips punctuation and abbreviates street
// words token by token so "123 North Main Street" and "123 N. Main St"
// produce the same key.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	addr = nonAlnumRegex.ReplaceAllString(addr, " ")

	tokens := strings.Fields(addr)
	for i, tok := range tokens {
		if abbrev, ok := streetReplacements[tok]; ok {
			tokens[i] = abbrev
		}
	}
	return multiSpaceRegex.ReplaceAllString(strings.Join(tokens, " "), " ")
}

// PlanKey identifies a floor plan within a building. Named plans key on the
// name; unnamed ones on their shape.
func PlanKey(fp *models.ScrapedFloorPlan) string {
	if name := Slug(fp.Name); name != "" {
		return name
	}
	sqft := "na"
	if fp.SqFtMin != nil {
		sqft = strconv.Itoa(*fp.SqFtMin)
	}
	return fmt.Sprintf("%dbd-%sba-%s", fp.Bedrooms, strconv.FormatFloat(fp.Bathrooms, 'f', -1, 64), sqft)
}

// Slug lowercases and joins alphanumeric runs with dashes.
func Slug(s string) string {
	s = slugRegex.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// CompactSlug is Slug without separators, the shape most vanity domains use.
func CompactSlug(s string) string {
	return strings.ReplaceAll(Slug(s), "-", "")
}
