package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// candidates pairs every quoted market with its weather reading. Markets
// without a quote are not evaluated this cycle.
func (e *Engine) candidates(markets []domain.Market, quotes map[string]domain.MarketQuote) []*evaluation {
	evals := make([]*evaluation, 0, len(quotes))
	for _, m := range markets {
		q, ok := quotes[m.ConditionID]
		if !ok {
			continue
		}
		ev := &evaluation{market: m, quote: q}
		if wm, ok := e.Classifier.Classify(m.Question); ok {
			ev.weather = &wm
		} else if m.Weather {
			slog.Debug("weather market not classified", "market_id", m.ConditionID, "question", m.Question)
		}
		evals = append(evals, ev)
	}
	return evals
}

type forecastResult struct {
	key    domain.ForecastKey
	bundle domain.ForecastBundle
	err    error
}

// gatherForecasts fetches one bundle per (city, date) and returns them as a
// map that is read-only for the rest of the cycle. Failed keys are absent.
func (e *Engine) gatherForecasts(ctx context.Context, evals []*evaluation) map[domain.ForecastKey]domain.ForecastBundle {
	today := e.now().Format("2006-01-02")
	dates := make(map[domain.ForecastKey]domain.WeatherMarket)
	for _, ev := range evals {
		if ev.isWeather() {
			dates[ev.weather.Key()] = *ev.weather
		}
	}
	keys := make([]domain.ForecastKey, 0, len(dates))
	for k := range dates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].City < keys[j].City
	})

	results := runPool(ctx, keys, e.cfg.Workers, func(ctx context.Context, k domain.ForecastKey) forecastResult {
		b, err := e.Forecast.FetchEnsemble(ctx, k.City, dates[k].Date, k.Date == today)
		return forecastResult{key: k, bundle: b, err: err}
	})

	cache := make(map[domain.ForecastKey]domain.ForecastBundle, len(keys))
	for _, r := range results {
		if r.key.City == "" {
			continue // not started, ctx done
		}
		if r.err != nil {
			slog.Warn("forecast fetch failed", "city", r.key.City, "date", r.key.Date, "err", r.err)
			continue
		}
		r.bundle.Key = r.key
		cache[r.key] = r.bundle
	}
	slog.Debug("forecasts gathered", "keys", len(keys), "ok", len(cache))
	return cache
}

// saveSnapshots stores the raw ensemble view of every fetched key so the
// calibration job can compare it with the observed high later.
func (e *Engine) saveSnapshots(ctx context.Context, cycle int64, cache map[domain.ForecastKey]domain.ForecastBundle) {
	for k, b := range cache {
		if b.Sample.Count() == 0 {
			continue
		}
		snap := domain.WeatherSnapshot{
			Cycle:        cycle,
			City:         k.City,
			Date:         k.Date,
			EnsembleMean: b.Sample.Mean(),
			EnsembleStd:  b.Sample.StdDev(),
			AnchorHigh:   b.Anchors.Point,
			Members:      b.Sample.Count(),
			CreatedAt:    e.now(),
		}
		if err := e.Store.SaveSnapshot(ctx, snap); err != nil {
			slog.Warn("snapshot save failed", "city", k.City, "date", k.Date, "err", err)
		}
	}
}

// calibrations loads the per-city corrections; a failure degrades to none.
func (e *Engine) calibrations(ctx context.Context) map[string]domain.CalibrationParams {
	params, err := e.Store.Calibrations(ctx)
	if err != nil {
		slog.Warn("calibration load failed", "err", fmt.Errorf("engine: %w", err))
		return nil
	}
	return params
}
