package estimator

import "math"

// silvermanBandwidth returns Silverman's rule-of-thumb bandwidth for a
// one-dimensional Gaussian kernel: std * (3n/4)^(-1/5).
func silvermanBandwidth(std float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return std * math.Pow(0.75*float64(n), -0.2)
}

// kernelMass integrates the Gaussian mixture centred on xs with bandwidth h
// over [lo, hi). The integral is exact: each kernel contributes the difference
// of two normal CDFs.
func kernelMass(xs []float64, h, lo, hi float64) float64 {
	if len(xs) == 0 || h <= 0 {
		return 0
	}
	var total float64
	for _, x := range xs {
		total += normalCDF((hi-x)/h) - normalCDF((lo-x)/h)
	}
	return total / float64(len(xs))
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}
