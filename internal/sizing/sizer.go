// Package sizing turns an edge signal into a bounded fractional-Kelly stake.
//
// Every parameter travels with the call (Risk, Snapshot); the package holds no
// state, so concurrent sizing for different markets cannot interfere.
package sizing

import (
	"fmt"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// Risk are the per-call sizing parameters.
type Risk struct {
	KellyMultiplier     float64 // 0.5 = half-Kelly
	MaxPositionFraction float64 // of bankroll, per trade
	MaxTotalExposure    float64 // of bankroll, across open positions
	MaxGroupExposure    float64 // of bankroll, per correlation group; 0 disables
	MinTradeUSD         float64
	TimeDecay           bool
}

// DefaultRisk returns the production limits.
func DefaultRisk() Risk {
	return Risk{
		KellyMultiplier:     0.5,
		MaxPositionFraction: 0.06,
		MaxTotalExposure:    0.40,
		MaxGroupExposure:    0.15,
		MinTradeUSD:         1.0,
		TimeDecay:           true,
	}
}

// WithMultiplier returns a copy of r with the Kelly multiplier scaled by f.
// Used by the drawdown breaker to reduce sizing for one cycle.
func (r Risk) WithMultiplier(f float64) Risk {
	r.KellyMultiplier *= f
	return r
}

// Snapshot is the bankroll and exposure state the decision is based on.
type Snapshot struct {
	Bankroll      float64
	TotalExposure float64
	GroupExposure float64
	HorizonDays   int // days until resolution, -1 when unknown
}

// Result is the sizing outcome. SizeUSD == 0 means do not trade; Reason says why.
type Result struct {
	RawKelly       float64
	AdjustedKelly  float64
	TimeMultiplier float64
	SizeUSD        float64
	Shares         float64
	BuyPrice       float64
	CappedBy       string
	Reason         domain.SkipReason
}

// Kelly returns the binary-market Kelly fraction (win - buy) / (1 - buy).
func Kelly(winProbability, buyPrice float64) float64 {
	return (winProbability - buyPrice) / (1 - buyPrice)
}

// TimeMultiplier discounts longer-horizon forecasts, which are less reliable.
func TimeMultiplier(days int) float64 {
	switch {
	case days < 0:
		return 1.0
	case days <= 2:
		return 1.0
	case days <= 4:
		return 0.7
	case days <= 7:
		return 0.4
	default:
		return 0.2
	}
}

// Size computes the stake for sig. Returns domain.ErrInvalidPrice when the
// buy price is outside (0,1); otherwise it always returns a result, possibly
// with SizeUSD == 0.
func Size(sig domain.EdgeSignal, snap Snapshot, risk Risk) (Result, error) {
	buy := sig.MarketPrice
	if !domain.ValidPrice(buy) {
		return Result{}, fmt.Errorf("sizing.Size %s: buy price %.4f: %w", sig.MarketID, buy, domain.ErrInvalidPrice)
	}

	res := Result{BuyPrice: buy, TimeMultiplier: 1}
	res.RawKelly = Kelly(sig.ModelProbability, buy)
	if res.RawKelly <= 0 || snap.Bankroll <= 0 {
		res.Reason = domain.SkipNonPositiveKelly
		return res, nil
	}

	if risk.TimeDecay {
		res.TimeMultiplier = TimeMultiplier(snap.HorizonDays)
	}
	res.AdjustedKelly = res.RawKelly * risk.KellyMultiplier * res.TimeMultiplier

	size := res.AdjustedKelly * snap.Bankroll
	res.CappedBy = "kelly"

	if c := risk.MaxPositionFraction * snap.Bankroll; c < size {
		size, res.CappedBy = c, "max_position"
	}

	headroom := risk.MaxTotalExposure*snap.Bankroll - snap.TotalExposure
	if headroom <= 0 {
		res.Reason = domain.SkipExposureCap
		return res, nil
	}
	if headroom < size {
		size, res.CappedBy = headroom, "total_exposure"
	}

	if risk.MaxGroupExposure > 0 {
		groupHeadroom := risk.MaxGroupExposure*snap.Bankroll - snap.GroupExposure
		if groupHeadroom <= 0 {
			res.Reason = domain.SkipCorrelationCap
			return res, nil
		}
		if groupHeadroom < size {
			size, res.CappedBy = groupHeadroom, "group_exposure"
		}
	}

	if size <= 0 || size < risk.MinTradeUSD {
		res.Reason = domain.SkipTooSmall
		return res, nil
	}

	res.SizeUSD = size
	res.Shares = size / buy
	return res, nil
}
