package domain

import "math"

// EnsembleSample is a bag of independent forecast draws (°F) from one or more
// numerical models.
type EnsembleSample struct {
	Models []string
	Values []float64
}

// Count returns the number of draws.
func (s EnsembleSample) Count() int {
	return len(s.Values)
}

// Mean returns the arithmetic mean of the draws, 0 for an empty sample.
func (s EnsembleSample) Mean() float64 {
	return Mean(s.Values)
}

// StdDev returns the sample standard deviation (n-1) of the draws.
func (s EnsembleSample) StdDev() float64 {
	return StdDev(s.Values)
}

// CalibrationAnchors are optional authoritative estimates used to correct the
// ensemble. Each field is independent of the others.
type CalibrationAnchors struct {
	Point       *float64 // official point forecast (NBM p50, NWS high)
	PointSource string
	Spread      *float64 // authoritative spread factor
	SameDay     *float64 // fresh high-resolution point estimate (HRRR)
}

// CalibrationParams are per-city corrections learned from resolved outcomes.
type CalibrationParams struct {
	City         string
	BiasOffset   float64
	SpreadFactor float64
	Observations int
}

// Mean returns the arithmetic mean of xs.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation (n-1) of xs.
// Returns 0 when fewer than two values are given.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// Float64 returns a pointer to v, for optional anchor fields.
func Float64(v float64) *float64 {
	return &v
}
