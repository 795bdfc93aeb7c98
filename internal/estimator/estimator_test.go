package estimator_test

import (
	"errors"
	"testing"

	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/alejandrodnm/polyweather/internal/estimator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(values ...float64) domain.EnsembleSample {
	return domain.EnsembleSample{Models: []string{"gfs"}, Values: values}
}

func TestEstimate_EmptyEnsemble(t *testing.T) {
	e := estimator.New(estimator.DefaultConfig())
	_, err := e.Estimate(estimator.Input{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoData))
}

func TestEstimate_SumsToOne(t *testing.T) {
	e := estimator.New(estimator.DefaultConfig())
	cases := []domain.EnsembleSample{
		sample(70, 71, 72, 73, 74),
		sample(55.2, 58.9, 61.4, 49.8, 66.1, 60.0, 57.3),
		sample(-35, -30, -38, -41, -29), // partly below the grid
		sample(128, 131, 129, 133, 127), // partly above the grid
		sample(72),
	}
	for _, s := range cases {
		dist, err := e.Estimate(estimator.Input{Sample: s})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, dist.Sum(), domain.SumTolerance)
		assert.True(t, dist.Valid())
	}
}

func TestEstimate_PointAnchorShiftsMean(t *testing.T) {
	e := estimator.New(estimator.DefaultConfig())
	dist, err := e.Estimate(estimator.Input{
		Sample:  sample(70, 71, 72, 73, 74),
		Anchors: domain.CalibrationAnchors{Point: domain.Float64(80), PointSource: "nbm"},
	})
	require.NoError(t, err)

	assert.InDelta(t, 72.0, dist.RawMean, 1e-9)
	assert.InDelta(t, 80.0, dist.Mean, 1e-9)
	assert.Equal(t, "nbm", dist.AnchorSource)
	assert.False(t, dist.Degenerate)
}

func TestShiftMean_MeanEqualsTarget(t *testing.T) {
	for _, draws := range [][]float64{
		{70, 71, 72, 73, 74},
		{12.5},
		{-3.1, 8.7, 0.2, 99.9},
	} {
		shifted := estimator.ShiftMean(draws, 80.25)
		assert.InDelta(t, 80.25, domain.Mean(shifted), 1e-9)
		assert.InDelta(t, domain.StdDev(draws), domain.StdDev(shifted), 1e-9)
	}
}

func TestApplySpread_PreservesMean(t *testing.T) {
	draws := []float64{70, 71, 72, 73, 74}

	wide := estimator.ApplySpread(draws, 1.5)
	assert.InDelta(t, 72.0, domain.Mean(wide), 1e-9)
	assert.InDelta(t, domain.StdDev(draws)*1.5, domain.StdDev(wide), 1e-9)

	assert.Equal(t, draws, estimator.ApplySpread(draws, 1.0))
}

func TestEstimate_SpreadFactorOneIsNoOp(t *testing.T) {
	e := estimator.New(estimator.DefaultConfig())
	s := sample(61, 63, 64, 66, 67, 69)

	one, err := e.Estimate(estimator.Input{
		Sample:  s,
		Anchors: domain.CalibrationAnchors{Spread: domain.Float64(1.0)},
	})
	require.NoError(t, err)
	assert.InDelta(t, one.RawStd, one.Std, 1e-12)

	// Same result as a calibration that also says 1.0.
	cal, err := e.Estimate(estimator.Input{
		Sample:      s,
		Calibration: &domain.CalibrationParams{SpreadFactor: 1.0},
	})
	require.NoError(t, err)
	for i := range one.Buckets {
		assert.InDelta(t, one.Buckets[i].Probability, cal.Buckets[i].Probability, 1e-12)
	}
}

func TestEstimate_SpreadPrecedence(t *testing.T) {
	e := estimator.New(estimator.DefaultConfig())
	s := sample(70, 71, 72, 73, 74)

	dist, err := e.Estimate(estimator.Input{Sample: s})
	require.NoError(t, err)
	assert.InDelta(t, 1.15, dist.SpreadFactor, 1e-12)

	dist, err = e.Estimate(estimator.Input{
		Sample:      s,
		Calibration: &domain.CalibrationParams{SpreadFactor: 1.4},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.4, dist.SpreadFactor, 1e-12)

	dist, err = e.Estimate(estimator.Input{
		Sample:      s,
		Anchors:     domain.CalibrationAnchors{Spread: domain.Float64(1.8)},
		Calibration: &domain.CalibrationParams{SpreadFactor: 1.4},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.8, dist.SpreadFactor, 1e-12)
	assert.InDelta(t, dist.RawStd*1.8, dist.Std, 1e-9)
}

func TestEstimate_CalibrationBias(t *testing.T) {
	e := estimator.New(estimator.DefaultConfig())
	cal := &domain.CalibrationParams{City: "NYC", BiasOffset: 1.5, SpreadFactor: 1.0}

	noAnchor, err := e.Estimate(estimator.Input{Sample: sample(70, 71, 72, 73, 74), Calibration: cal})
	require.NoError(t, err)
	assert.InDelta(t, 73.5, noAnchor.Mean, 1e-9)
	assert.Equal(t, "calibration", noAnchor.AnchorSource)

	anchored, err := e.Estimate(estimator.Input{
		Sample:      sample(70, 71, 72, 73, 74),
		Anchors:     domain.CalibrationAnchors{Point: domain.Float64(76)},
		Calibration: cal,
	})
	require.NoError(t, err)
	assert.InDelta(t, 77.5, anchored.Mean, 1e-9)
}

func TestEstimate_SameDayOverride(t *testing.T) {
	e := estimator.New(estimator.DefaultConfig())
	in := estimator.Input{
		Sample: sample(70, 71, 72, 73, 74),
		Anchors: domain.CalibrationAnchors{
			Point:   domain.Float64(80),
			SameDay: domain.Float64(83),
		},
	}

	longer, err := e.Estimate(in)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, longer.Mean, 1e-9)
	assert.False(t, longer.SameDay)

	in.SameDay = true
	today, err := e.Estimate(in)
	require.NoError(t, err)
	assert.InDelta(t, 83.0, today.Mean, 1e-9)
	assert.True(t, today.SameDay)
	// The second shift keeps the width set by the spread step.
	assert.InDelta(t, longer.Std, today.Std, 1e-9)
}

func TestEstimate_DegenerateFallback(t *testing.T) {
	e := estimator.New(estimator.DefaultConfig())

	zeroVar, err := e.Estimate(estimator.Input{Sample: sample(72, 72, 72, 72, 72)})
	require.NoError(t, err)
	assert.True(t, zeroVar.Degenerate)
	top := zeroVar.MostLikely()
	assert.InDelta(t, 72.0, top.Lower, 1e-9)
	assert.InDelta(t, 1.0, top.Probability, 1e-12)

	few, err := e.Estimate(estimator.Input{Sample: sample(70, 75, 71)})
	require.NoError(t, err)
	assert.True(t, few.Degenerate)
	assert.InDelta(t, 1.0, few.Sum(), domain.SumTolerance)

	offGrid, err := e.Estimate(estimator.Input{Sample: sample(400)})
	require.NoError(t, err)
	assert.True(t, offGrid.Degenerate)
	assert.InDelta(t, 1.0, offGrid.Buckets[len(offGrid.Buckets)-1].Probability, 1e-12)
}

func TestEstimate_AnchoredScenarioAboveThreshold(t *testing.T) {
	e := estimator.New(estimator.DefaultConfig())
	dist, err := e.Estimate(estimator.Input{
		Sample:  sample(70, 71, 72, 73, 74),
		Anchors: domain.CalibrationAnchors{Point: domain.Float64(80)},
	})
	require.NoError(t, err)

	market := domain.WeatherMarket{Kind: domain.OutcomeAtLeast, Lower: 78}
	p := market.YesProbability(dist)
	assert.GreaterOrEqual(t, p, 0.20)
	assert.Less(t, p, 1.0)
}

func TestEstimate_GridShape(t *testing.T) {
	e := estimator.New(estimator.Config{BucketMin: 0, BucketMax: 130, BucketWidth: 2})
	dist, err := e.Estimate(estimator.Input{Sample: sample(50, 52, 54, 56, 58)})
	require.NoError(t, err)

	require.Len(t, dist.Buckets, 65)
	for i := 1; i < len(dist.Buckets); i++ {
		assert.Equal(t, dist.Buckets[i-1].Upper, dist.Buckets[i].Lower)
	}
}
