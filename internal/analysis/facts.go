// Package analysis prepares what the analyst sees and sanity-checks what it
// answers. It does no I/O.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// ErrUnusableJudgment is returned when the analyst's answer cannot be used.
var ErrUnusableJudgment = errors.New("analysis: unusable judgment")

// WeatherView is the model side of a weather market, nil for generic markets.
type WeatherView struct {
	Market           domain.WeatherMarket
	Distribution     domain.Distribution
	ModelProbability float64
}

// BuildFacts renders the structured input for one market.
func BuildFacts(m domain.Market, q domain.MarketQuote, now time.Time, w *WeatherView) domain.Facts {
	f := domain.Facts{
		MarketID:          m.ConditionID,
		Question:          m.Question,
		YesPrice:          round4(q.YesPrice),
		NoPrice:           round4(q.PriceFor(domain.SideNo)),
		Volume24h:         round2(q.Volume24h),
		Liquidity:         round2(q.Liquidity),
		HoursToResolution: round2(m.HoursToResolution(now)),
	}
	if w == nil {
		return f
	}

	d := w.Distribution
	f.Weather = &domain.WeatherFacts{
		City:             w.Market.City,
		Date:             w.Market.Date.Format("2006-01-02"),
		Outcome:          w.Market.Describe(),
		ModelProbability: round4(w.ModelProbability),
		EnsembleMean:     round2(d.Mean),
		EnsembleStd:      round2(d.Std),
		RawMean:          round2(d.RawMean),
		Members:          d.MemberCount,
		AnchorSource:     d.AnchorSource,
		SpreadFactor:     round4(d.SpreadFactor),
		Degenerate:       d.Degenerate,
	}
	return f
}

// Validate normalizes a judgment. Probability and confidence are clamped to
// [0, 1], unknown data quality is read as low and a negative cost as zero. A
// non-finite probability makes the judgment unusable; its cost is kept so the
// caller can still book it.
func Validate(j domain.Judgment) (domain.Judgment, error) {
	if math.IsNaN(j.CostUSD) || j.CostUSD < 0 || math.IsInf(j.CostUSD, 0) {
		j.CostUSD = 0
	}
	if math.IsNaN(j.Probability) || math.IsInf(j.Probability, 0) {
		return j, fmt.Errorf("analysis.Validate: probability %v: %w", j.Probability, ErrUnusableJudgment)
	}

	j.Probability = clamp01(j.Probability)
	if math.IsNaN(j.Confidence) {
		j.Confidence = 0
	}
	j.Confidence = clamp01(j.Confidence)

	switch q := strings.ToLower(strings.TrimSpace(j.DataQuality)); q {
	case "high", "medium", "low":
		j.DataQuality = q
	default:
		j.DataQuality = "low"
	}
	j.Reasoning = strings.TrimSpace(j.Reasoning)
	return j, nil
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
