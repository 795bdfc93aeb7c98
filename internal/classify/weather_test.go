package classify_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/polyweather/internal/classify"
	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestClassify_Formats(t *testing.T) {
	c := classify.New(fixedNow)

	cases := []struct {
		question string
		want     domain.WeatherMarket
	}{
		{
			"Will the highest temperature in New York City be between 34-35°F on October 21?",
			domain.WeatherMarket{City: "NYC", Date: day(2026, 10, 21), Kind: domain.OutcomeRange, Lower: 34, Upper: 35},
		},
		{
			"Highest temperature in Chicago on 2026-10-22: between 50°F and 51°F?",
			domain.WeatherMarket{City: "CHI", Date: day(2026, 10, 22), Kind: domain.OutcomeRange, Lower: 50, Upper: 51},
		},
		{
			"Will the maximum temperature in Miami be 78°F or higher on October 20, 2026?",
			domain.WeatherMarket{City: "MIA", Date: day(2026, 10, 20), Kind: domain.OutcomeAtLeast, Lower: 78},
		},
		{
			"Will the highest temperature in Seattle be 49°F or below on October 23?",
			domain.WeatherMarket{City: "SEA", Date: day(2026, 10, 23), Kind: domain.OutcomeAtMost, Upper: 49},
		},
		{
			"Will the temperature in St. Louis stay under 40°F on November 2, 2026?",
			domain.WeatherMarket{City: "STL", Date: day(2026, 11, 2), Kind: domain.OutcomeAtMost, Upper: 39},
		},
		{
			"Dallas highest temperature 88-89°F on 2026-10-24?",
			domain.WeatherMarket{City: "DAL", Date: day(2026, 10, 24), Kind: domain.OutcomeRange, Lower: 88, Upper: 89},
		},
	}

	for _, tc := range cases {
		got, ok := c.Classify(tc.question)
		require.True(t, ok, tc.question)
		assert.Equal(t, tc.want, got, tc.question)
	}
}

func TestClassify_YearInference(t *testing.T) {
	c := classify.New(fixedNow)

	// Within the last week: same year.
	got, ok := c.Classify("Highest temperature in Boston between 40-41°F on October 14?")
	require.True(t, ok)
	assert.Equal(t, day(2026, 10, 14), got.Date)

	// Older than a week: next year.
	got, ok = c.Classify("Highest temperature in Boston between 20-21°F on January 5?")
	require.True(t, ok)
	assert.Equal(t, day(2027, 1, 5), got.Date)
}

func TestClassify_NoMatch(t *testing.T) {
	c := classify.New(fixedNow)

	for _, q := range []string{
		"Will the Fed cut rates in December?",
		"Highest temperature in Paris between 20-21°F on October 21?",
		"Highest temperature in Denver on a warm day?",
		"Highest temperature in Denver on October 21?",
		"Highest temperature in Denver between 20-21°F on February 30, 2027?",
	} {
		_, ok := c.Classify(q)
		assert.False(t, ok, q)
	}
}
