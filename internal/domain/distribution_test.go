package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func uniform(lo, hi, width float64) Distribution {
	var buckets []Bucket
	for l := lo; l < hi; l += width {
		buckets = append(buckets, Bucket{Lower: l, Upper: l + width})
	}
	for i := range buckets {
		buckets[i].Probability = 1 / float64(len(buckets))
	}
	return Distribution{Buckets: buckets}
}

func TestDistribution_ValidAndSum(t *testing.T) {
	d := uniform(60, 80, 2)
	assert.InDelta(t, 1.0, d.Sum(), 1e-9)
	assert.True(t, d.Valid())

	d.Buckets[0].Probability = -0.1
	assert.False(t, d.Valid())

	assert.False(t, Distribution{}.Valid())
}

func TestDistribution_ProbabilityBetween_OverlapFraction(t *testing.T) {
	d := uniform(60, 80, 2) // 10 buckets, 0.1 each

	assert.InDelta(t, 0.1, d.ProbabilityBetween(60, 62), 1e-9)
	assert.InDelta(t, 0.05, d.ProbabilityBetween(60, 61), 1e-9)
	assert.InDelta(t, 0.25, d.ProbabilityBetween(61, 66), 1e-9)
	assert.Equal(t, 0.0, d.ProbabilityBetween(66, 66))
}

func TestDistribution_OpenEnded(t *testing.T) {
	d := uniform(60, 80, 2)

	assert.InDelta(t, 0.3, d.ProbabilityAtLeast(74), 1e-9)
	assert.InDelta(t, 0.7, d.ProbabilityBelow(74), 1e-9)
	assert.InDelta(t, 1.0, d.ProbabilityAtLeast(0), 1e-9)
	assert.InDelta(t, 0.0, d.ProbabilityAtLeast(90), 1e-9)
}

func TestWeatherMarket_YesProbability(t *testing.T) {
	d := uniform(60, 80, 2)

	atLeast := WeatherMarket{Kind: OutcomeAtLeast, Lower: 78}
	assert.InDelta(t, 0.1, atLeast.YesProbability(d), 1e-9)

	atMost := WeatherMarket{Kind: OutcomeAtMost, Upper: 61}
	assert.InDelta(t, 0.1, atMost.YesProbability(d), 1e-9)

	// "70-71°F" covers whole degrees 70 and 71.
	rng := WeatherMarket{Kind: OutcomeRange, Lower: 70, Upper: 71}
	assert.InDelta(t, 0.1, rng.YesProbability(d), 1e-9)
}

func TestWeatherMarket_DaysUntil(t *testing.T) {
	now := time.Date(2026, 10, 19, 22, 0, 0, 0, time.UTC)
	w := WeatherMarket{Date: time.Date(2026, 10, 22, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, 3, w.DaysUntil(now))

	w.Date = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, w.DaysUntil(now))
}

func TestBankroll_EquityAndDrawdown(t *testing.T) {
	b := Bankroll{AvailableCash: 50, LiquidationValue: 18, Peak: 100}
	assert.InDelta(t, 68.0, b.Equity(), 1e-9)
	assert.InDelta(t, 0.32, b.Drawdown(), 1e-9)

	b.Peak = 0
	assert.Equal(t, 0.0, b.Drawdown())
}

func TestMarketQuote_PriceFor(t *testing.T) {
	q := MarketQuote{YesPrice: 0.30, NoPrice: 0.72, YesBid: 0.28}
	assert.InDelta(t, 0.30, q.PriceFor(SideYes), 1e-9)
	assert.InDelta(t, 0.72, q.PriceFor(SideNo), 1e-9)
	assert.InDelta(t, 0.28, q.MarkFor(SideYes), 1e-9)
	assert.InDelta(t, 0.72, q.MarkFor(SideNo), 1e-9)

	q.NoPrice = 0
	assert.InDelta(t, 0.70, q.PriceFor(SideNo), 1e-9)
}

func TestStdDev(t *testing.T) {
	assert.InDelta(t, 1.5811388, StdDev([]float64{70, 71, 72, 73, 74}), 1e-6)
	assert.Equal(t, 0.0, StdDev([]float64{70}))
	assert.Equal(t, 0.0, Mean(nil))
}

func TestTruncateQuestion(t *testing.T) {
	assert.Equal(t, "short", TruncateQuestion("short", "0xabc", 10))
	assert.Equal(t, "Will it rain...", TruncateQuestion("Will it rain in Boston tomorrow?", "", 15))
	assert.Equal(t, "0x0123456789abcdef01...", TruncateQuestion("", "0x0123456789abcdef0123456789", 40))
}
