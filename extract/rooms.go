package extract

import (
	"regexp"
	"strconv"
)

var (
	studioRegex   = regexp.MustCompile(`(?i)\bstudio\b`)
	bedroomRegex  = regexp.MustCompile(`(?i)(\d+)\s*-?\s*(?:bedrooms?|beds?|bd|br)\b`)
	bathroomRegex = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*-?\s*(?:bathrooms?|baths?|ba)\b`)
	planCodeRegex = regexp.MustCompile(`\b([SABC])-?\d{1,2}[A-Za-z]?\b`)
)

// ParseBedrooms returns the bedroom count stated in text. A studio is 0.
func ParseBedrooms(text string) (int, bool) {
	if studioRegex.MatchString(text) {
		return 0, true
	}
	if m := bedroomRegex.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Bedrooms is ParseBedrooms with the default of 1 applied.
func Bedrooms(text string) int {
	if n, ok := ParseBedrooms(text); ok {
		return n
	}
	return 1
}

// PlanCodeBedrooms guesses a bedroom count from a plan code such as S1, A2 or
// B1 (S=studio, A=1, B=2, C=3). The letter convention is a brand habit, not
// something the page states, so this is lossy and only providers that use the
// convention should call it, after ParseBedrooms found nothing.
func PlanCodeBedrooms(code string) (int, bool) {
	m := planCodeRegex.FindStringSubmatch(code)
	if m == nil {
		return 0, false
	}
	switch m[1] {
	case "S":
		return 0, true
	case "A":
		return 1, true
	case "B":
		return 2, true
	case "C":
		return 3, true
	}
	return 0, false
}

// Bathrooms returns the bathroom count in text, 1 when none is stated.
func Bathrooms(text string) float64 {
	if m := bathroomRegex.FindStringSubmatch(text); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			return n
		}
	}
	return 1
}
