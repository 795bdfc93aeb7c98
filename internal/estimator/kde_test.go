package estimator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSilvermanBandwidth(t *testing.T) {
	// n=5: (3.75)^(-0.2) ≈ 0.76770
	assert.InDelta(t, 0.767704, silvermanBandwidth(1, 5), 1e-6)
	assert.InDelta(t, 2*0.767704, silvermanBandwidth(2, 5), 1e-6)
	assert.Equal(t, 0.0, silvermanBandwidth(1, 0))
}

func TestKernelMass_IntegratesToOne(t *testing.T) {
	xs := []float64{70, 71, 72, 73, 74}
	total := kernelMass(xs, 1.2, math.Inf(-1), math.Inf(1))
	assert.InDelta(t, 1.0, total, 1e-12)

	// Symmetric sample: half the mass is above the mean.
	assert.InDelta(t, 0.5, kernelMass(xs, 1.2, 72, math.Inf(1)), 1e-12)
}

func TestKernelMass_DegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, kernelMass(nil, 1, 0, 1))
	assert.Equal(t, 0.0, kernelMass([]float64{1}, 0, 0, 1))
}

func TestNormalCDF(t *testing.T) {
	assert.InDelta(t, 0.5, normalCDF(0), 1e-12)
	assert.InDelta(t, 0.841344746, normalCDF(1), 1e-8)
	assert.InDelta(t, 0.022750132, normalCDF(-2), 1e-8)
}
