// Package calibration learns per-city bias and spread corrections from
// resolved daily highs.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/alejandrodnm/polyweather/internal/ports"
)

// Config controls the fit.
type Config struct {
	AnchorWeight    float64 // weight of the official forecast in the predicted value
	MinObservations float64 // effective (weighted) sample size required per city
	BackfillWeight  float64
	SpreadMin       float64
	SpreadMax       float64
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		AnchorWeight:    0.85,
		MinObservations: 5,
		BackfillWeight:  0.6,
		SpreadMin:       0.8,
		SpreadMax:       2.0,
	}
}

// Compute fits bias and spread per city. Cities below MinObservations get no
// entry. The result is deterministic for a given input.
func Compute(actuals []domain.WeatherActual, cfg Config) map[string]domain.CalibrationParams {
	type obs struct{ actual, predicted, weight float64 }
	byCity := make(map[string][]obs)
	for _, a := range actuals {
		predicted, ok := predictedHigh(a, cfg.AnchorWeight)
		if !ok {
			continue
		}
		w := 1.0
		if a.Backfilled {
			w = cfg.BackfillWeight
		}
		byCity[a.City] = append(byCity[a.City], obs{a.ActualHigh, predicted, w})
	}

	result := make(map[string]domain.CalibrationParams, len(byCity))
	for city, rows := range byCity {
		var wsum, errSum, actSum, predSum float64
		for _, r := range rows {
			wsum += r.weight
			errSum += r.weight * (r.actual - r.predicted)
			actSum += r.weight * r.actual
			predSum += r.weight * r.predicted
		}
		if wsum < cfg.MinObservations {
			slog.Debug("calibration skipped", "city", city, "effective_n", wsum, "rows", len(rows))
			continue
		}

		meanAct, meanPred := actSum/wsum, predSum/wsum
		var varAct, varPred float64
		for _, r := range rows {
			varAct += r.weight * (r.actual - meanAct) * (r.actual - meanAct)
			varPred += r.weight * (r.predicted - meanPred) * (r.predicted - meanPred)
		}
		stdAct, stdPred := math.Sqrt(varAct/wsum), math.Sqrt(varPred/wsum)

		spread := 1.0
		if stdPred > 0 {
			spread = math.Min(math.Max(stdAct/stdPred, cfg.SpreadMin), cfg.SpreadMax)
		}

		result[city] = domain.CalibrationParams{
			City:         city,
			BiasOffset:   round4(errSum / wsum),
			SpreadFactor: round4(spread),
			Observations: len(rows),
		}
	}
	return result
}

// predictedHigh blends the official forecast with the ensemble mean the same
// way the pipeline anchored it.
func predictedHigh(a domain.WeatherActual, anchorWeight float64) (float64, bool) {
	switch {
	case a.AnchorHigh != nil && a.EnsembleMean != nil:
		return anchorWeight*(*a.AnchorHigh) + (1-anchorWeight)*(*a.EnsembleMean), true
	case a.AnchorHigh != nil:
		return *a.AnchorHigh, true
	case a.EnsembleMean != nil:
		return *a.EnsembleMean, true
	default:
		return 0, false
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Service collects resolved highs and refreshes the stored calibration.
type Service struct {
	store    ports.WeatherStore
	forecast ports.ForecastSource
	cfg      Config
	now      func() time.Time
}

// NewService creates a Service.
func NewService(store ports.WeatherStore, forecast ports.ForecastSource, cfg Config) *Service {
	return &Service{store: store, forecast: forecast, cfg: cfg, now: time.Now}
}

// CollectActuals fetches the observed high for every past (city, date) the
// engine forecast and has not resolved yet. Unpublished observations are left
// for the next run.
func (s *Service) CollectActuals(ctx context.Context) (int, error) {
	today := s.now().UTC().Format("2006-01-02")
	pending, err := s.store.PendingActuals(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("calibration.CollectActuals: pending: %w", err)
	}

	saved := 0
	for _, key := range pending {
		date, err := time.Parse("2006-01-02", key.Date)
		if err != nil {
			continue
		}
		high, err := s.forecast.FetchObserved(ctx, key.City, date)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			slog.Warn("observed high fetch failed", "city", key.City, "date", key.Date, "err", err)
			continue
		}

		snap, err := s.store.LatestSnapshot(ctx, key.City, key.Date)
		if err != nil {
			return saved, fmt.Errorf("calibration.CollectActuals: snapshot %s %s: %w", key.City, key.Date, err)
		}
		actual := domain.WeatherActual{
			City:         key.City,
			Date:         key.Date,
			ActualHigh:   high,
			EnsembleMean: domain.Float64(snap.EnsembleMean),
			AnchorHigh:   snap.AnchorHigh,
		}
		if err := s.store.SaveActual(ctx, actual); err != nil {
			return saved, fmt.Errorf("calibration.CollectActuals: save: %w", err)
		}
		saved++
	}

	slog.Info("weather actuals collected", "pending", len(pending), "saved", saved)
	return saved, nil
}

// Recompute fits calibration from all stored actuals and persists it.
func (s *Service) Recompute(ctx context.Context) ([]domain.CalibrationParams, error) {
	actuals, err := s.store.Actuals(ctx)
	if err != nil {
		return nil, fmt.Errorf("calibration.Recompute: load actuals: %w", err)
	}

	fitted := Compute(actuals, s.cfg)
	params := make([]domain.CalibrationParams, 0, len(fitted))
	for _, p := range fitted {
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].City < params[j].City })

	if err := s.store.SaveCalibration(ctx, params); err != nil {
		return nil, fmt.Errorf("calibration.Recompute: save: %w", err)
	}
	for _, p := range params {
		slog.Info("calibration updated",
			"city", p.City,
			"bias", p.BiasOffset,
			"spread", p.SpreadFactor,
			"n", p.Observations,
		)
	}
	return params, nil
}

// Run collects actuals then recomputes. Used by the scheduler.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.CollectActuals(ctx); err != nil {
		return err
	}
	_, err := s.Recompute(ctx)
	return err
}
