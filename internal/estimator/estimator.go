package estimator

// estimator.go: turns a raw temperature ensemble into a calibrated bucket
// distribution.
//
// The correction chain runs in a fixed order and the order is part of the
// contract: raw stats → point-anchor shift → spread correction → same-day
// shift → KDE integration (or point-mass fallback) → normalization.

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// Config controls the bucket grid and the correction defaults.
type Config struct {
	BucketMin     float64
	BucketMax     float64
	BucketWidth   float64
	SpreadFactor  float64 // used when neither the anchor nor calibration supply one
	MinKDEMembers int
}

// DefaultConfig returns the production grid: -40°F..130°F in 2°F buckets.
func DefaultConfig() Config {
	return Config{
		BucketMin:     -40,
		BucketMax:     130,
		BucketWidth:   2,
		SpreadFactor:  1.15,
		MinKDEMembers: 5,
	}
}

// Input is one estimation request.
type Input struct {
	Sample      domain.EnsembleSample
	Anchors     domain.CalibrationAnchors
	Calibration *domain.CalibrationParams
	SameDay     bool // the target is today's high
}

// Estimator is stateless; the same Estimator may serve concurrent callers.
type Estimator struct {
	cfg Config
}

// New creates an Estimator, filling zero fields from DefaultConfig.
func New(cfg Config) *Estimator {
	def := DefaultConfig()
	if cfg.BucketWidth <= 0 {
		cfg.BucketWidth = def.BucketWidth
	}
	if cfg.BucketMax <= cfg.BucketMin {
		cfg.BucketMin, cfg.BucketMax = def.BucketMin, def.BucketMax
	}
	if cfg.SpreadFactor <= 0 {
		cfg.SpreadFactor = def.SpreadFactor
	}
	if cfg.MinKDEMembers <= 0 {
		cfg.MinKDEMembers = def.MinKDEMembers
	}
	return &Estimator{cfg: cfg}
}

// Estimate runs the correction chain and returns a normalized distribution.
// Returns domain.ErrNoData for an empty ensemble. A degenerate sample is not an
// error: the result is a point mass with Degenerate set.
func (e *Estimator) Estimate(in Input) (domain.Distribution, error) {
	if in.Sample.Count() == 0 {
		return domain.Distribution{}, fmt.Errorf("estimator.Estimate: %w", domain.ErrNoData)
	}

	dist := domain.Distribution{
		RawMean:     in.Sample.Mean(),
		RawStd:      in.Sample.StdDev(),
		MemberCount: in.Sample.Count(),
	}

	draws := make([]float64, len(in.Sample.Values))
	copy(draws, in.Sample.Values)

	// Point anchor, corrected by the learned city bias when there is one.
	switch {
	case in.Anchors.Point != nil:
		target := *in.Anchors.Point
		if in.Calibration != nil {
			target += in.Calibration.BiasOffset
		}
		draws = ShiftMean(draws, target)
		dist.AnchorSource = in.Anchors.PointSource
		if dist.AnchorSource == "" {
			dist.AnchorSource = "anchor"
		}
	case in.Calibration != nil && in.Calibration.BiasOffset != 0:
		draws = ShiftMean(draws, dist.RawMean+in.Calibration.BiasOffset)
		dist.AnchorSource = "calibration"
	}

	dist.SpreadFactor = e.spreadFactor(in)
	draws = ApplySpread(draws, dist.SpreadFactor)

	if in.SameDay && in.Anchors.SameDay != nil {
		draws = ShiftMean(draws, *in.Anchors.SameDay)
		dist.SameDay = true
	}

	dist.Mean = domain.Mean(draws)
	dist.Std = domain.StdDev(draws)
	dist.Buckets = e.grid()

	if !e.fitDensity(&dist, draws) {
		e.pointMass(&dist)
	}
	normalize(&dist)
	return dist, nil
}

// spreadFactor picks the authoritative anchor spread, then the calibrated
// one, then the configured default.
func (e *Estimator) spreadFactor(in Input) float64 {
	if in.Anchors.Spread != nil && *in.Anchors.Spread > 0 {
		return *in.Anchors.Spread
	}
	if in.Calibration != nil && in.Calibration.SpreadFactor > 0 {
		return in.Calibration.SpreadFactor
	}
	return e.cfg.SpreadFactor
}

// fitDensity fills bucket masses from a Gaussian KDE. Returns false when the
// sample is too small, has no variance, or its mass falls off the grid.
func (e *Estimator) fitDensity(dist *domain.Distribution, draws []float64) bool {
	if len(draws) < e.cfg.MinKDEMembers || dist.Std <= 0 || math.IsNaN(dist.Std) {
		return false
	}
	h := silvermanBandwidth(dist.Std, len(draws))
	if h <= 0 {
		return false
	}

	var total float64
	for i := range dist.Buckets {
		b := &dist.Buckets[i]
		b.Probability = kernelMass(draws, h, b.Lower, b.Upper)
		total += b.Probability
	}
	if total < 1e-9 {
		for i := range dist.Buckets {
			dist.Buckets[i].Probability = 0
		}
		return false
	}
	return true
}

// pointMass places all probability in the bucket holding the mean, clamped to
// the grid.
func (e *Estimator) pointMass(dist *domain.Distribution) {
	dist.Degenerate = true
	idx := int(math.Floor((dist.Mean - e.cfg.BucketMin) / e.cfg.BucketWidth))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(dist.Buckets) {
		idx = len(dist.Buckets) - 1
	}
	for i := range dist.Buckets {
		dist.Buckets[i].Probability = 0
	}
	dist.Buckets[idx].Probability = 1
}

func (e *Estimator) grid() []domain.Bucket {
	n := int(math.Ceil((e.cfg.BucketMax - e.cfg.BucketMin) / e.cfg.BucketWidth))
	buckets := make([]domain.Bucket, n)
	for i := range buckets {
		lower := e.cfg.BucketMin + float64(i)*e.cfg.BucketWidth
		buckets[i] = domain.Bucket{Lower: lower, Upper: lower + e.cfg.BucketWidth}
	}
	return buckets
}

func normalize(dist *domain.Distribution) {
	total := dist.Sum()
	if total <= 0 {
		return
	}
	for i := range dist.Buckets {
		dist.Buckets[i].Probability /= total
	}
}

// ShiftMean translates every draw so the sample mean equals target.
func ShiftMean(draws []float64, target float64) []float64 {
	shift := target - domain.Mean(draws)
	out := make([]float64, len(draws))
	for i, d := range draws {
		out[i] = d + shift
	}
	return out
}

// ApplySpread scales deviations from the mean by factor. The mean is unchanged.
func ApplySpread(draws []float64, factor float64) []float64 {
	out := make([]float64, len(draws))
	if factor == 1 {
		copy(out, draws)
		return out
	}
	m := domain.Mean(draws)
	for i, d := range draws {
		out[i] = m + (d-m)*factor
	}
	return out
}
