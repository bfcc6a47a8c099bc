package extract

import (
	"regexp"
	"strconv"
	"strings"
)

const dash = `(?:-|–|—|to)`

var (
	sqftUnits       = `(?:sq\.?\s*ft|sqft|sf|square\s+f(?:ee|oo)t)\b`
	sqftRangeUnit   = regexp.MustCompile(`(?i)(\d{3,5})\s*` + dash + `\s*(\d{3,5})\s*` + sqftUnits)
	sqftSingleUnit  = regexp.MustCompile(`(?i)(\d{3,5})\s*` + sqftUnits)
	sqftRangeBare   = regexp.MustCompile(`(?:^|[^\d.])(\d{3,4})\s*(?:-|–|—)\s*(\d{3,4})(?:[^\d\-–—]|$)`)
	sqftSingleBare  = regexp.MustCompile(`(?:^|[^\d.])(\d{3,4})(?:[^\d]|$)`)
	phoneNumber     = regexp.MustCompile(`\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]\d{4}\b`)
	dollarAmount    = regexp.MustCompile(`\$\s*\d+(?:\.\d+)?`)
	rentRangeRegex  = regexp.MustCompile(`(?i)\$\s*(\d{3,6})(?:\.\d{2})?\s*` + dash + `\s*\$?\s*(\d{3,6})`)
	rentSingleRegex = regexp.MustCompile(`\$\s*(\d{3,6})`)
)

// RentRange is a monthly rent span. Zero means unparsed, not free.
type RentRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r RentRange) Parsed() bool {
	return r.Min > 0 || r.Max > 0
}

// SquareFeet returns a min/max square footage. A dash-separated pair is a
// range, a lone 3-4 digit number is both ends, anything else is nil/nil.
// Numbers tagged with a square-foot unit are preferred and dollar amounts are
// never considered, nor are phone numbers.
func SquareFeet(text string) (min, max *int) {
	text = stripThousands(text)

	if m := sqftRangeUnit.FindStringSubmatch(text); m != nil {
		return orderedPair(m[1], m[2])
	}
	if m := sqftSingleUnit.FindStringSubmatch(text); m != nil {
		return orderedPair(m[1], m[1])
	}

	text = dollarAmount.ReplaceAllString(text, " ")
	text = phoneNumber.ReplaceAllString(text, " ")
	if m := sqftRangeBare.FindStringSubmatch(text); m != nil {
		return orderedPair(m[1], m[2])
	}
	if m := sqftSingleBare.FindStringSubmatch(text); m != nil {
		return orderedPair(m[1], m[1])
	}
	return nil, nil
}

// Rent parses "$1,500 - $1,800" or "$1,650" style text.
func Rent(text string) RentRange {
	text = stripThousands(text)

	if m := rentRangeRegex.FindStringSubmatch(text); m != nil {
		lo, hi := orderedPair(m[1], m[2])
		if lo != nil && hi != nil {
			return RentRange{Min: *lo, Max: *hi}
		}
	}
	if m := rentSingleRegex.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return RentRange{Min: n, Max: n}
		}
	}
	return RentRange{}
}

func stripThousands(text string) string {
	return strings.ReplaceAll(text, ",", "")
}

func orderedPair(a, b string) (*int, *int) {
	lo, err := strconv.Atoi(a)
	if err != nil {
		return nil, nil
	}
	hi, err := strconv.Atoi(b)
	if err != nil {
		return nil, nil
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return &lo, &hi
}
