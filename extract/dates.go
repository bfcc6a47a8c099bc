package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"apt_scrooper/models"
)

const datePattern = `\d{1,2}/\d{1,2}(?:/\d{2,4})?|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?`

var (
	endDateRegex  = regexp.MustCompile(`(?i)\b(?:expires?|expiring|ends?|by|before|through|thru|valid\s+until)\b\s*:?\s*(?:on\s+)?(` + datePattern + `)`)
	moveInRegex   = regexp.MustCompile(`(?i)\bmove[-\s]?in\s+(?:by|before|no\s+later\s+than)\s*:?\s*(` + datePattern + `)`)
	slashDate     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?$`)
	monthNameDate = regexp.MustCompile(`(?i)^([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?$`)
	leaseTerm     = regexp.MustCompile(`(?i)\b(\d{1,2})\s*\+?\s*-?\s*(?:months?|mos?\.?)\s+(?:or\s+longer\s+)?leases?\b|\bleases?\s+(?:terms?\s+)?(?:of\s+)?(\d{1,2})\s*\+?\s*(?:months?|mos?)\b`)
	newResidents  = regexp.MustCompile(`(?i)\bnew\s+(?:residents?|leases?\s+only|move-?ins?)\b|\bfirst[-\s]time\s+residents?\b`)
	selectUnits   = regexp.MustCompile(`(?i)\bselect\s+(?:units?|homes?|apartments?|floor\s*plans?|residences?)\b|\bon\s+select\b`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// EndDate finds an expiry such as "expires 3/31", "through October 15th" or
// "valid until Jan 5, 2026". A missing year means now's year. Returns nil
// when nothing parses.
func EndDate(text string, now time.Time) *time.Time {
	for _, m := range endDateRegex.FindAllStringSubmatch(text, -1) {
		if d := parseDate(m[1], now); d != nil {
			return d
		}
	}
	return nil
}

// Conditions pulls the structured fine print out of promo text. Returns nil
// when none is found.
func Conditions(text string, now time.Time) *models.SpecialConditions {
	c := &models.SpecialConditions{
		NewResidentsOnly: newResidents.MatchString(text),
		SelectUnitsOnly:  selectUnits.MatchString(text),
	}
	if m := leaseTerm.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			c.MinLeaseMonths = &n
		}
	}
	if m := moveInRegex.FindStringSubmatch(text); m != nil {
		c.MoveInBy = parseDate(m[1], now)
	}
	if c.Empty() {
		return nil
	}
	return c
}

func parseDate(raw string, now time.Time) *time.Time {
	raw = strings.TrimSpace(raw)

	var (
		year  = now.Year()
		month time.Month
		day   int
	)

	if m := slashDate.FindStringSubmatch(raw); m != nil {
		mo, _ := strconv.Atoi(m[1])
		if mo < 1 || mo > 12 {
			return nil
		}
		month = time.Month(mo)
		day, _ = strconv.Atoi(m[2])
		if m[3] != "" {
			y, _ := strconv.Atoi(m[3])
			if len(m[3]) == 2 {
				y += 2000
			} else if len(m[3]) != 4 {
				return nil
			}
			year = y
		}
	} else if m := monthNameDate.FindStringSubmatch(raw); m != nil {
		name := strings.ToLower(m[1])
		if len(name) < 3 {
			return nil
		}
		mo, ok := monthNames[name[:3]]
		if !ok {
			return nil
		}
		month = mo
		day, _ = strconv.Atoi(m[2])
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
	} else {
		return nil
	}

	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 2/30 into March; reject instead
	if d.Month() != month || d.Day() != day {
		return nil
	}
	return &d
}
