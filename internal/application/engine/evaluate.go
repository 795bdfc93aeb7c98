package engine

import (
	"context"

	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/alejandrodnm/polyweather/internal/edge"
	"github.com/alejandrodnm/polyweather/internal/estimator"
)

func pending(evals []*evaluation, keep func(*evaluation) bool) []*evaluation {
	out := make([]*evaluation, 0, len(evals))
	for _, ev := range evals {
		if !ev.decided && keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// estimate builds the distribution of every weather market. Workers only
// read the forecast cache and the calibration map, and each writes to its
// own evaluation.
func (e *Engine) estimate(ctx context.Context, evals []*evaluation,
	cache map[domain.ForecastKey]domain.ForecastBundle, calib map[string]domain.CalibrationParams) {

	weather := pending(evals, (*evaluation).isWeather)
	runPool(ctx, weather, e.cfg.Workers, func(_ context.Context, ev *evaluation) struct{} {
		b, ok := cache[ev.weather.Key()]
		if !ok {
			ev.skip(domain.SkipNoData, "no forecast for "+ev.weather.Key().City+" "+ev.weather.Key().Date)
			return struct{}{}
		}

		in := estimator.Input{Sample: b.Sample, Anchors: b.Anchors, SameDay: b.SameDay}
		if c, ok := calib[ev.weather.City]; ok {
			in.Calibration = &c
		}
		dist, err := e.Estimator.Estimate(in)
		if err != nil {
			ev.skip(domain.SkipNoData, err.Error())
			return struct{}{}
		}
		ev.dist = &dist
		ev.modelYes = ev.weather.YesProbability(dist)
		ev.hasModel = true
		return struct{}{}
	})
}

// detect runs the edge detector over every market still in play.
func (e *Engine) detect(ctx context.Context, evals []*evaluation) {
	open := pending(evals, func(*evaluation) bool { return true })
	runPool(ctx, open, e.cfg.Workers, func(_ context.Context, ev *evaluation) struct{} {
		if !ev.hasModel {
			ev.skip(domain.SkipError, "no model probability")
			return struct{}{}
		}
		res, err := e.Detector.Detect(edge.Input{
			MarketID:         ev.market.ConditionID,
			ModelProbability: ev.modelYes,
			Quote:            ev.quote,
			Distribution:     ev.dist,
			Judgment:         ev.judgment,
		})
		ev.result = res
		switch {
		case err != nil:
			ev.skip(domain.SkipInvalidPrice, err.Error())
		case !res.Tradeable:
			ev.skip(res.Reason, "")
		}
		return struct{}{}
	})

	if ctx.Err() == nil {
		return
	}
	// Markets the pool never reached.
	for _, ev := range open {
		if !ev.decided && ev.result.Signal.MarketID == "" {
			ev.skip(domain.SkipError, "not evaluated: "+context.Cause(ctx).Error())
		}
	}
}
