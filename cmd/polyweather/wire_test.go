package main

import (
	"testing"

	"github.com/alejandrodnm/polyweather/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineConfig_MapsRisk(t *testing.T) {
	cfg, err := config.Parse([]byte("sizing:\n  max_group_exposure: 0.1\n  time_decay: false\ncycle:\n  review_weather: true\n"))
	require.NoError(t, err)

	ec := engineConfig(cfg, "claude-sonnet")
	assert.Equal(t, "claude-sonnet", ec.AnalystProvider)
	assert.True(t, ec.ReviewWeather)
	assert.InDelta(t, 0.5, ec.MaxAPICost, 1e-9)
	assert.InDelta(t, 0.1, ec.Risk.MaxGroupExposure, 1e-9)
	assert.InDelta(t, 0.06, ec.Risk.MaxPositionFraction, 1e-9)
	assert.False(t, ec.Risk.TimeDecay)
}

func TestCalibrationConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("calibration:\n  nws_weight: 0.7\n  min_observations: 8\n"))
	require.NoError(t, err)

	cc := calibrationConfig(cfg)
	assert.InDelta(t, 0.7, cc.AnchorWeight, 1e-9)
	assert.InDelta(t, 8, cc.MinObservations, 1e-9)
	assert.InDelta(t, 2.0, cc.SpreadMax, 1e-9, "unconfigured fields keep their defaults")
}
