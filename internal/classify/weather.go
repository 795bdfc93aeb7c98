// Package classify recognizes daily-high temperature markets from their free
// text question. It is best effort: a miss routes the market to the generic
// evaluation path.
package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// cityPatterns is checked in order; longer names come before their prefixes.
var cityPatterns = []struct {
	pattern string
	code    string
}{
	{"New York City", "NYC"},
	{"New York", "NYC"},
	{"NYC", "NYC"},
	{"Los Angeles", "LAX"},
	{"Chicago", "CHI"},
	{"Houston", "HOU"},
	{"Phoenix", "PHX"},
	{"Philadelphia", "PHL"},
	{"San Antonio", "SAN"},
	{"San Diego", "SDG"},
	{"Dallas", "DAL"},
	{"San Jose", "SJC"},
	{"Atlanta", "ATL"},
	{"Miami", "MIA"},
	{"Boston", "BOS"},
	{"Seattle", "SEA"},
	{"Denver", "DEN"},
	{"Washington", "DCA"},
	{"Minneapolis", "MSP"},
	{"Detroit", "DTW"},
	{"Tampa", "TPA"},
	{"St. Louis", "STL"},
	{"St Louis", "STL"},
}

const months = `January|February|March|April|May|June|July|August|September|October|November|December`

var (
	isoDateRe       = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	monthDayYearRe  = regexp.MustCompile(`(?i)(` + months + `)\s+(\d{1,2}),?\s+(\d{4})`)
	onMonthDayRe    = regexp.MustCompile(`(?i)on\s+(` + months + `)\s+(\d{1,2})\b`)
	betweenAndRe    = regexp.MustCompile(`(?i)between\s+(-?\d+)°?F?\s+and\s+(-?\d+)°?F`)
	betweenDashRe   = regexp.MustCompile(`(?i)between\s+(-?\d+)\s*[-–]\s*(-?\d+)°F`)
	rangeRe         = regexp.MustCompile(`(-?\d+)\s*[-–]\s*(-?\d+)°F`)
	orAboveRe       = regexp.MustCompile(`(?i)(-?\d+)°F\s+or\s+(?:above|higher|more)`)
	orBelowRe       = regexp.MustCompile(`(?i)(-?\d+)°F\s+or\s+(?:below|lower|less)`)
	strictlyBelowRe = regexp.MustCompile(`(?i)(?:below|under)\s+(-?\d+)°F`)
)

// Classifier parses weather market questions.
type Classifier struct {
	now func() time.Time
}

// New creates a Classifier. now is used to infer the year of "on Month D"
// dates; nil means time.Now.
func New(now func() time.Time) *Classifier {
	if now == nil {
		now = time.Now
	}
	return &Classifier{now: now}
}

// Classify returns the structured market and true, or false when the question
// is not a recognizable daily-high temperature market.
func (c *Classifier) Classify(question string) (domain.WeatherMarket, bool) {
	if !strings.Contains(strings.ToLower(question), "temperature") {
		return domain.WeatherMarket{}, false
	}

	city, ok := findCity(question)
	if !ok {
		return domain.WeatherMarket{}, false
	}
	date, ok := c.findDate(question)
	if !ok {
		return domain.WeatherMarket{}, false
	}
	wm, ok := findOutcome(question)
	if !ok {
		return domain.WeatherMarket{}, false
	}
	wm.City = city
	wm.Date = date
	return wm, true
}

func findCity(q string) (string, bool) {
	for _, p := range cityPatterns {
		if strings.Contains(q, p.pattern) {
			return p.code, true
		}
	}
	return "", false
}

func (c *Classifier) findDate(q string) (time.Time, bool) {
	if m := isoDateRe.FindStringSubmatch(q); m != nil {
		t, err := time.Parse("2006-01-02", m[1])
		return t, err == nil
	}

	if m := monthDayYearRe.FindStringSubmatch(q); m != nil {
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return makeDate(year, m[1], day)
	}

	if m := onMonthDayRe.FindStringSubmatch(q); m != nil {
		day, _ := strconv.Atoi(m[2])
		now := c.now().UTC()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		t, ok := makeDate(today.Year(), m[1], day)
		if !ok {
			return time.Time{}, false
		}
		// More than a week in the past means the question is about next year.
		if t.Before(today.AddDate(0, 0, -7)) {
			t = t.AddDate(1, 0, 0)
		}
		return t, true
	}

	return time.Time{}, false
}

var monthNumbers = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// makeDate rejects impossible days such as February 30.
func makeDate(year int, month string, day int) (time.Time, bool) {
	mon, ok := monthNumbers[strings.ToLower(month)]
	if !ok {
		return time.Time{}, false
	}
	t := time.Date(year, mon, day, 0, 0, 0, 0, time.UTC)
	if t.Month() != mon || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func findOutcome(q string) (domain.WeatherMarket, bool) {
	for _, re := range []*regexp.Regexp{betweenAndRe, betweenDashRe, rangeRe} {
		if m := re.FindStringSubmatch(q); m != nil {
			lo, _ := strconv.ParseFloat(m[1], 64)
			hi, _ := strconv.ParseFloat(m[2], 64)
			if hi < lo {
				lo, hi = hi, lo
			}
			return domain.WeatherMarket{Kind: domain.OutcomeRange, Lower: lo, Upper: hi}, true
		}
	}
	if m := orAboveRe.FindStringSubmatch(q); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		return domain.WeatherMarket{Kind: domain.OutcomeAtLeast, Lower: lo}, true
	}
	if m := orBelowRe.FindStringSubmatch(q); m != nil {
		hi, _ := strconv.ParseFloat(m[1], 64)
		return domain.WeatherMarket{Kind: domain.OutcomeAtMost, Upper: hi}, true
	}
	if m := strictlyBelowRe.FindStringSubmatch(q); m != nil {
		hi, _ := strconv.ParseFloat(m[1], 64)
		// "below 40°F" on whole degrees is "39°F or below".
		return domain.WeatherMarket{Kind: domain.OutcomeAtMost, Upper: hi - 1}, true
	}
	return domain.WeatherMarket{}, false
}
