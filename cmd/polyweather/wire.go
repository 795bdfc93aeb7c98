package main

import (
	"github.com/alejandrodnm/polyweather/config"
	"github.com/alejandrodnm/polyweather/internal/accounting"
	"github.com/alejandrodnm/polyweather/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyweather/internal/adapters/sidecar"
	"github.com/alejandrodnm/polyweather/internal/adapters/storage"
	"github.com/alejandrodnm/polyweather/internal/application/engine"
	"github.com/alejandrodnm/polyweather/internal/calibration"
	"github.com/alejandrodnm/polyweather/internal/edge"
	"github.com/alejandrodnm/polyweather/internal/estimator"
	"github.com/alejandrodnm/polyweather/internal/ports"
	"github.com/alejandrodnm/polyweather/internal/position"
	"github.com/alejandrodnm/polyweather/internal/sizing"
)

func openStore(cfg *config.Config) (*storage.SQLiteStorage, error) {
	return storage.NewSQLiteStorage(cfg.Storage.DSN)
}

func newAccountant(cfg *config.Config, store accounting.Store, notifier ports.Notifier) *accounting.Accountant {
	return accounting.New(store, notifier, accounting.Config{
		InitialSeed:          cfg.Bankroll.Initial,
		LowBankrollThreshold: cfg.Cycle.LowBankrollThreshold,
		IntervalHigh:         cfg.Cycle.IntervalHigh,
		IntervalLow:          cfg.Cycle.IntervalLow,
		RecentCycles:         cfg.Accounting.RecentCycles,
	})
}

func newSidecar(cfg *config.Config) *sidecar.Client {
	return sidecar.NewClient(sidecar.Config{
		BaseURL:      cfg.API.SidecarURL,
		Timeout:      cfg.API.Timeout,
		RatePerSec:   cfg.API.SidecarRate,
		AnalystModel: cfg.API.AnalystModel,
	})
}

func newPolymarket(cfg *config.Config) *polymarket.Client {
	return polymarket.NewClient(polymarket.Config{
		CLOBBase:     cfg.API.CLOBBase,
		GammaBase:    cfg.API.GammaBase,
		MinLiquidity: cfg.Markets.MinLiquidity,
		MinVolume:    cfg.Markets.MinVolume,
		MaxMarkets:   cfg.Markets.MaxMarkets,
		WeatherTagID: cfg.Markets.WeatherTagID,
	})
}

func calibrationConfig(cfg *config.Config) calibration.Config {
	c := calibration.DefaultConfig()
	c.AnchorWeight = cfg.Calibration.NWSWeight
	c.MinObservations = float64(cfg.Calibration.MinObservations)
	return c
}

func engineConfig(cfg *config.Config, provider string) engine.Config {
	return engine.Config{
		Workers:         cfg.Cycle.Workers,
		MaxAPICost:      cfg.Cycle.MaxAPICost,
		ReviewWeather:   cfg.Cycle.ReviewWeather,
		MaxCycles:       cfg.Cycle.MaxCycles,
		AnalystProvider: provider,
		Risk: sizing.Risk{
			KellyMultiplier:     cfg.Sizing.KellyMultiplier,
			MaxPositionFraction: cfg.Sizing.MaxPositionFraction,
			MaxTotalExposure:    cfg.Sizing.MaxTotalExposure,
			MaxGroupExposure:    cfg.Sizing.MaxGroupExposure,
			MinTradeUSD:         cfg.Sizing.MinTradeUSD,
			TimeDecay:           cfg.Sizing.TimeDecay,
		},
	}
}

func newEstimator(cfg *config.Config) *estimator.Estimator {
	return estimator.New(estimator.Config{
		BucketMin:     cfg.Estimator.BucketMin,
		BucketMax:     cfg.Estimator.BucketMax,
		BucketWidth:   cfg.Estimator.BucketWidth,
		SpreadFactor:  cfg.Estimator.SpreadFactor,
		MinKDEMembers: cfg.Estimator.MinKDEMembers,
	})
}

func newDetector(cfg *config.Config) *edge.Detector {
	return edge.NewDetector(edge.Config{
		MinEdge:            cfg.Edge.MinEdge,
		MinConfidence:      cfg.Edge.MinConfidence,
		MinEnsembleMembers: cfg.Edge.MinEnsembleMembers,
		AllowDegenerate:    cfg.Edge.AllowDegenerate,
	})
}

func newManager(cfg *config.Config) *position.Manager {
	return position.NewManager(position.Config{
		StopLoss:                cfg.Positions.StopLoss,
		TakeProfit:              cfg.Positions.TakeProfit,
		MinExitEdge:             cfg.Positions.MinExitEdge,
		DrawdownThreshold:       cfg.Positions.DrawdownThreshold,
		DrawdownReduction:       cfg.Positions.DrawdownReduction,
		HoldWeatherToResolution: cfg.Positions.HoldWeatherToResolution,
		Groups:                  cfg.Positions.Groups,
	})
}
