// Package edge decides whether a model probability disagrees with the market
// price by enough to trade.
package edge

import (
	"fmt"
	"sort"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// Config holds the detector thresholds.
type Config struct {
	MinEdge            float64 // inclusive
	MinConfidence      float64 // applied only when a judgment is supplied
	MinEnsembleMembers int
	AllowDegenerate    bool
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinEdge:            0.08,
		MinConfidence:      0.5,
		MinEnsembleMembers: 5,
	}
}

// Input is one market to classify. Distribution is nil on the generic path,
// where the probability comes from the analyst alone.
type Input struct {
	MarketID         string
	ModelProbability float64 // probability that YES wins
	Quote            domain.MarketQuote
	Distribution     *domain.Distribution
	Judgment         *domain.Judgment
}

// Result is either a signal (Tradeable) or the reason there is none.
type Result struct {
	Signal    domain.EdgeSignal
	Tradeable bool
	Reason    domain.SkipReason
}

// Detector is a pure classifier; it holds only its thresholds.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect compares the model against the quote. The side with the larger edge
// is chosen (YES on ties). Returns domain.ErrInvalidPrice for malformed quotes.
func (d *Detector) Detect(in Input) (Result, error) {
	if !domain.ValidPrice(in.Quote.YesPrice) {
		return Result{Reason: domain.SkipInvalidPrice},
			fmt.Errorf("edge.Detect %s: yes price %.4f: %w", in.MarketID, in.Quote.YesPrice, domain.ErrInvalidPrice)
	}
	if in.Quote.NoPrice != 0 && !domain.ValidPrice(in.Quote.NoPrice) {
		return Result{Reason: domain.SkipInvalidPrice},
			fmt.Errorf("edge.Detect %s: no price %.4f: %w", in.MarketID, in.Quote.NoPrice, domain.ErrInvalidPrice)
	}

	p := in.ModelProbability
	yesEdge := p - in.Quote.PriceFor(domain.SideYes)
	noEdge := (1 - p) - in.Quote.PriceFor(domain.SideNo)

	sig := domain.EdgeSignal{
		MarketID:            in.MarketID,
		ModelYesProbability: p,
		Side:                domain.SideYes,
		ModelProbability:    p,
		MarketPrice:         in.Quote.PriceFor(domain.SideYes),
		Edge:                yesEdge,
	}
	if noEdge > yesEdge {
		sig.Side = domain.SideNo
		sig.ModelProbability = 1 - p
		sig.MarketPrice = in.Quote.PriceFor(domain.SideNo)
		sig.Edge = noEdge
	}

	res := Result{Signal: sig}
	switch {
	case sig.Edge < d.cfg.MinEdge:
		res.Reason = domain.SkipBelowThreshold
	case !d.qualityOK(in.Distribution):
		res.Reason = domain.SkipLowQuality
	case in.Judgment != nil && in.Judgment.Confidence < d.cfg.MinConfidence:
		res.Reason = domain.SkipLowConfidence
	default:
		res.Tradeable = true
	}
	return res, nil
}

// qualityOK rejects point-mass fallbacks built from too few members unless the
// configuration explicitly allows them.
func (d *Detector) qualityOK(dist *domain.Distribution) bool {
	if dist == nil || !dist.Degenerate || d.cfg.AllowDegenerate {
		return true
	}
	return dist.MemberCount >= d.cfg.MinEnsembleMembers
}

// DetectBatch classifies every input and returns the tradeable signals sorted
// by edge, largest first. Inputs with invalid prices are dropped.
func (d *Detector) DetectBatch(inputs []Input) []domain.EdgeSignal {
	signals := make([]domain.EdgeSignal, 0, len(inputs))
	for _, in := range inputs {
		res, err := d.Detect(in)
		if err != nil || !res.Tradeable {
			continue
		}
		signals = append(signals, res.Signal)
	}
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Edge > signals[j].Edge
	})
	return signals
}
