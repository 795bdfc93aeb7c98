package domain

import "math"

// SumTolerance is the maximum deviation from 1 allowed for a distribution.
const SumTolerance = 1e-6

// Bucket is a half-open outcome range [Lower, Upper) with its probability mass.
type Bucket struct {
	Lower       float64
	Upper       float64
	Probability float64
}

// Contains reports whether x falls in the bucket.
func (b Bucket) Contains(x float64) bool {
	return x >= b.Lower && x < b.Upper
}

// Width returns the bucket width.
func (b Bucket) Width() float64 {
	return b.Upper - b.Lower
}

// Distribution is a probability distribution over contiguous fixed-width
// buckets, together with the statistics of the corrected sample it came from.
type Distribution struct {
	Buckets []Bucket

	RawMean      float64
	RawStd       float64
	Mean         float64 // mean of the corrected sample
	Std          float64 // std of the corrected sample
	SpreadFactor float64
	AnchorSource string // "" when no point anchor was applied
	SameDay      bool   // same-day override applied
	MemberCount  int

	// Degenerate is set when the density fit was ill-conditioned and the
	// distribution is a point mass at the mean.
	Degenerate bool
}

// Sum returns the total probability mass.
func (d Distribution) Sum() float64 {
	var s float64
	for _, b := range d.Buckets {
		s += b.Probability
	}
	return s
}

// Valid reports whether all masses are non-negative and sum to 1.
func (d Distribution) Valid() bool {
	if len(d.Buckets) == 0 {
		return false
	}
	for _, b := range d.Buckets {
		if b.Probability < 0 {
			return false
		}
	}
	return math.Abs(d.Sum()-1) <= SumTolerance
}

// ProbabilityBetween returns the mass on [lo, hi). Buckets partially covered by
// the range contribute in proportion to the overlap.
func (d Distribution) ProbabilityBetween(lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	var p float64
	for _, b := range d.Buckets {
		l := math.Max(lo, b.Lower)
		u := math.Min(hi, b.Upper)
		if u <= l {
			continue
		}
		p += b.Probability * (u - l) / b.Width()
	}
	return clamp01(p)
}

// ProbabilityAtLeast returns the mass on [x, +inf).
func (d Distribution) ProbabilityAtLeast(x float64) float64 {
	return d.ProbabilityBetween(x, math.Inf(1))
}

// ProbabilityBelow returns the mass on (-inf, x).
func (d Distribution) ProbabilityBelow(x float64) float64 {
	return d.ProbabilityBetween(math.Inf(-1), x)
}

// MostLikely returns the bucket with the highest mass.
func (d Distribution) MostLikely() Bucket {
	var best Bucket
	for _, b := range d.Buckets {
		if b.Probability > best.Probability {
			best = b
		}
	}
	return best
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
