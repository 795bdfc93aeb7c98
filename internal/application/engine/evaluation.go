package engine

import (
	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/alejandrodnm/polyweather/internal/edge"
	"github.com/alejandrodnm/polyweather/internal/position"
)

// evaluation is one market's way through a cycle. Phases fill it in order;
// once decided is set later phases leave it alone.
type evaluation struct {
	market   domain.Market
	quote    domain.MarketQuote
	weather  *domain.WeatherMarket
	dist     *domain.Distribution
	modelYes float64
	hasModel bool
	judgment *domain.Judgment
	result   edge.Result

	decided  bool
	decision domain.Decision
}

func (ev *evaluation) isWeather() bool {
	return ev.weather != nil
}

// group is the correlation group of the market, empty for generic markets.
func (ev *evaluation) group(groups *position.Groups) string {
	if ev.weather == nil {
		return ""
	}
	return groups.For(ev.weather.City)
}

// decide closes the evaluation with a final status.
func (ev *evaluation) decide(status domain.DecisionStatus, reason domain.SkipReason, detail string) {
	ev.decided = true
	ev.decision.Status = status
	ev.decision.Reason = reason
	ev.decision.Detail = detail
}

func (ev *evaluation) skip(reason domain.SkipReason, detail string) {
	ev.decide(domain.DecisionSkipped, reason, detail)
}

func (ev *evaluation) fail(reason domain.SkipReason, detail string) {
	ev.decide(domain.DecisionError, reason, detail)
}

// record renders the audit row.
func (ev *evaluation) record(cycle int64) domain.Decision {
	d := ev.decision
	d.Cycle = cycle
	d.MarketID = ev.market.ConditionID
	d.Question = ev.market.Question
	d.Weather = ev.isWeather()

	switch sig := ev.result.Signal; {
	case sig.MarketID != "":
		d.Side = sig.Side
		d.ModelProbability = sig.ModelProbability
		d.MarketPrice = sig.MarketPrice
		d.Edge = sig.Edge
	case ev.hasModel:
		d.Side = domain.SideYes
		d.ModelProbability = ev.modelYes
		d.MarketPrice = ev.quote.YesPrice
		d.Edge = ev.modelYes - ev.quote.YesPrice
	}
	return d
}
