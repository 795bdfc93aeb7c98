package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polyweather/internal/analysis"
	"github.com/alejandrodnm/polyweather/internal/domain"
)

// analyze asks the analyst about generic markets, and about weather markets
// too when ReviewWeather is set, until the cycle budget is used up. Calls are
// sequential so the budget check sees every cost already booked. A billed
// call is booked before its answer is looked at, failed or not.
//
// A weather market past the budget keeps its model probability and goes on
// unreviewed; a generic one has nothing to trade on and is skipped.
func (e *Engine) analyze(ctx context.Context, cycle int64, evals []*evaluation) (float64, error) {
	var spent float64
	for _, ev := range evals {
		if ev.decided {
			continue
		}
		generic := !ev.isWeather()
		if !generic && !(e.cfg.ReviewWeather && ev.hasModel) {
			continue
		}

		switch {
		case e.Analyst == nil:
			if generic {
				ev.skip(domain.SkipNoJudgment, "no analyst configured")
			}
			continue
		case ctx.Err() != nil:
			ev.skip(domain.SkipError, "not analyzed: "+ctx.Err().Error())
			continue
		case spent >= e.cfg.MaxAPICost:
			if generic {
				ev.skip(domain.SkipBudget, fmt.Sprintf("cycle analysis budget $%.2f spent", e.cfg.MaxAPICost))
			}
			continue
		}

		var view *analysis.WeatherView
		if !generic {
			view = &analysis.WeatherView{Market: *ev.weather, Distribution: *ev.dist, ModelProbability: ev.modelYes}
		}
		j, callErr := e.Analyst.Analyze(ctx, analysis.BuildFacts(ev.market, ev.quote, e.now(), view))
		j, validErr := analysis.Validate(j)

		if j.CostUSD > 0 {
			if err := e.Accountant.AccrueCost(ctx, cycle, ev.market.ConditionID, e.cfg.AnalystProvider, j.CostUSD); err != nil {
				return spent, fmt.Errorf("engine.analyze: %w", err)
			}
			spent += j.CostUSD
			e.Metrics.ObserveAPICost(j.CostUSD)
		}

		if callErr != nil {
			slog.Warn("analysis failed", "market_id", ev.market.ConditionID, "cost", j.CostUSD, "err", callErr)
			ev.fail(domain.SkipNoJudgment, callErr.Error())
			continue
		}
		if validErr != nil {
			slog.Warn("analysis unusable", "market_id", ev.market.ConditionID, "err", validErr)
			ev.fail(domain.SkipNoJudgment, validErr.Error())
			continue
		}

		ev.judgment = &j
		if j.DataQuality == "low" {
			ev.skip(domain.SkipLowQuality, "analyst reports low data quality")
			continue
		}
		if generic {
			ev.modelYes = j.Probability
			ev.hasModel = true
		}
	}
	return spent, nil
}
