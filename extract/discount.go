package extract

import (
	"regexp"
	"strconv"
	"strings"

	"apt_scrooper/models"
)

type discountFamily struct {
	kind    models.DiscountType
	pattern *regexp.Regexp
}

// Checked in order; the first family that matches wins.
var discountFamilies = []discountFamily{
	{models.DiscountMonthsFree, regexp.MustCompile(`(?i)\b(?:months?|weeks?|mos?|wks?)'?\s+(?:of\s+)?(?:rent\s+)?free\b|\bfree\s+(?:months?|weeks?)\b`)},
	{models.DiscountReducedRent, regexp.MustCompile(`(?i)\boff\s+(?:\w+'?s?\s+){0,3}?rent\b|\breduced\b|\$\s*[\d,]+(?:\.\d{2})?\s+off\b|\bsave\s+(?:up\s+to\s+)?\$`)},
	{models.DiscountWaivedFees, regexp.MustCompile(`(?i)\bwaive[ds]?\b|\bno\s+(?:\w+\s+){0,3}?fees?\b|\bfree\s+application\b|\$0\s+(?:application|app|admin|deposit)\b`)},
	{models.DiscountGiftCard, regexp.MustCompile(`(?i)\bgift\s*cards?\b|\bvisa\b|\bamazon\b`)},
}

const durationPattern = `(?i)\b(\d+(?:\.\d+)?|one|two|three|four|five|six|seven|eight|nine|ten|twelve|first|an?|half(?:\s+an?)?)\s+(months?|weeks?|mos?|wks?)\b`

var (
	freeDurationRegex = regexp.MustCompile(durationPattern + `'?\s+(?:of\s+)?(?:rent\s+)?free\b`)
	durationRegex     = regexp.MustCompile(durationPattern)
	dollarRegex       = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d+)?)`)
)

var wordNumbers = map[string]float64{
	"a": 1, "an": 1, "one": 1, "first": 1,
	"two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "twelve": 12,
	"half": 0.5, "half a": 0.5, "half an": 0.5,
}

// ClassifyDiscount reports the discount family the text belongs to, or false
// when the text does not read like a special at all.
func ClassifyDiscount(text string) (models.DiscountType, bool) {
	for _, f := range discountFamilies {
		if f.pattern.MatchString(text) {
			return f.kind, true
		}
	}
	return "", false
}

// DiscountTypeOf is ClassifyDiscount with unmatched text reported as other.
func DiscountTypeOf(text string) models.DiscountType {
	if kind, ok := ClassifyDiscount(text); ok {
		return kind
	}
	return models.DiscountOther
}

// DiscountValue extracts the number that goes with a discount type: a month
// count for months_free (weeks are divided by 4), otherwise the first dollar
// amount in the text. When a description carries several dollar figures the
// first one wins even if it is not the discount.
func DiscountValue(kind models.DiscountType, text string) *float64 {
	switch {
	case kind == models.DiscountMonthsFree:
		// "12 month lease, 1 month free" must read 1, not 12
		m := freeDurationRegex.FindStringSubmatch(text)
		if m == nil {
			m = durationRegex.FindStringSubmatch(text)
		}
		if m == nil {
			return nil
		}
		n, ok := parseQuantity(m[1])
		if !ok {
			return nil
		}
		if strings.HasPrefix(strings.ToLower(m[2]), "w") {
			n = n / 4
		}
		return &n
	case kind.DollarDenominated():
		m := dollarRegex.FindStringSubmatch(text)
		if m == nil {
			return nil
		}
		n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

func parseQuantity(s string) (float64, bool) {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	if n, ok := wordNumbers[s]; ok {
		return n, true
	}
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}
