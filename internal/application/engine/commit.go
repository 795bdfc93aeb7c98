package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/alejandrodnm/polyweather/internal/position"
	"github.com/alejandrodnm/polyweather/internal/sizing"
	"github.com/google/uuid"
)

// commit sizes and executes the tradeable signals one at a time, largest
// edge first. Bankroll and exposure are read once; every fill adds to the
// in-cycle exposure before the next market is sized, so caps hold across
// the whole batch. Cancellation stops the loop between trades.
func (e *Engine) commit(ctx context.Context, cycle int64, evals []*evaluation, b domain.Bankroll,
	dd position.DrawdownState, open []domain.Position) (int, error) {

	risk := e.cfg.Risk
	if dd.Active {
		risk = risk.WithMultiplier(dd.Multiplier)
	}
	exposure := position.NewExposure(open)
	held := make(map[string]bool, len(open))
	for _, p := range open {
		held[p.MarketID] = true
	}
	equity := b.Equity()
	cash := b.AvailableCash

	queue := pending(evals, func(*evaluation) bool { return true })
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].result.Signal.Edge > queue[j].result.Signal.Edge
	})

	traded := 0
	for _, ev := range queue {
		if err := ctx.Err(); err != nil {
			ev.skip(domain.SkipError, "not committed: "+err.Error())
			continue
		}
		if held[ev.market.ConditionID] {
			ev.skip(domain.SkipAlreadyHeld, "")
			continue
		}

		sig := ev.result.Signal
		group := ev.group(e.Manager.Groups())
		horizon := -1
		if ev.isWeather() {
			horizon = ev.weather.DaysUntil(e.now())
		}
		res, err := sizing.Size(sig, sizing.Snapshot{
			Bankroll:      equity,
			TotalExposure: exposure.Total,
			GroupExposure: exposure.Group(group),
			HorizonDays:   horizon,
		}, risk)
		if err != nil {
			ev.skip(domain.SkipInvalidPrice, err.Error())
			continue
		}
		if res.SizeUSD == 0 {
			ev.skip(res.Reason, fmt.Sprintf("kelly %.4f capped by %s", res.AdjustedKelly, res.CappedBy))
			continue
		}
		if res.SizeUSD > cash {
			if cash < risk.MinTradeUSD {
				ev.skip(domain.SkipTooSmall, fmt.Sprintf("cash $%.2f below minimum trade", cash))
				continue
			}
			res.SizeUSD, res.Shares, res.CappedBy = cash, cash/res.BuyPrice, "cash"
		}

		cost, err := e.enter(ctx, cycle, ev, res, group)
		if err != nil {
			if errors.Is(err, domain.ErrExecution) {
				slog.Warn("entry not executed", "market_id", ev.market.ConditionID, "err", err)
				ev.fail(domain.SkipExecution, err.Error())
				continue
			}
			ev.fail(domain.SkipError, err.Error())
			return traded, err
		}

		exposure.Add(group, cost)
		cash -= cost
		held[ev.market.ConditionID] = true
		traded++
		ev.decision.SizeUSD = cost
		ev.decide(domain.DecisionTraded, domain.SkipNone, res.CappedBy)
		e.Metrics.ObserveTrade(sig.Side, cost)
	}
	return traded, nil
}

// enter executes the buy and commits trade, position and ledger debit. It
// returns the dollars spent.
func (e *Engine) enter(ctx context.Context, cycle int64, ev *evaluation, res sizing.Result, group string) (float64, error) {
	sig := ev.result.Signal
	token := ev.market.TokenFor(sig.Side)
	fill, err := e.Executor.Execute(ctx, domain.Order{
		MarketID:   ev.market.ConditionID,
		TokenID:    token.TokenID,
		Side:       sig.Side,
		Action:     domain.ActionBuy,
		SizeUSD:    res.SizeUSD,
		Shares:     res.Shares,
		LimitPrice: res.BuyPrice,
	})
	if err != nil {
		return 0, err
	}
	if !fill.Filled || fill.Shares <= 0 {
		return 0, fmt.Errorf("engine.enter %s: not filled: %w", ev.market.ConditionID, domain.ErrExecution)
	}

	now := e.now()
	cost := fill.FillPrice * fill.Shares
	pos := domain.Position{
		ID:               uuid.New().String(),
		MarketID:         ev.market.ConditionID,
		Question:         ev.market.Question,
		TokenID:          token.TokenID,
		Side:             sig.Side,
		EntryPrice:       fill.FillPrice,
		Shares:           fill.Shares,
		CostUSD:          cost,
		CorrelationGroup: group,
		EntryProbability: sig.ModelProbability,
		Weather:          ev.isWeather(),
		Status:           domain.PositionOpen,
		OpenedAt:         now,
		CurrentPrice:     fill.FillPrice,
		MarkedAt:         now,
	}
	trade := domain.TradeRecord{
		ID:         uuid.New().String(),
		PositionID: pos.ID,
		Cycle:      cycle,
		MarketID:   pos.MarketID,
		Question:   pos.Question,
		Side:       pos.Side,
		Action:     domain.ActionBuy,
		Price:      fill.FillPrice,
		Shares:     fill.Shares,
		SizeUSD:    cost,
		Edge:       sig.Edge,
		Reason:     fmt.Sprintf("edge %.3f kelly %.4f", sig.Edge, res.AdjustedKelly),
		Paper:      fill.Paper,
		CreatedAt:  now,
	}
	// A fill that happened must be booked even if the cycle is being cancelled.
	if err := e.Accountant.RecordEntry(context.WithoutCancel(ctx), trade, pos); err != nil {
		return 0, fmt.Errorf("engine.enter: filled order %s not recorded: %w", fill.OrderID, err)
	}

	slog.Info("position opened",
		"market_id", pos.MarketID,
		"side", pos.Side,
		"price", pos.EntryPrice,
		"shares", pos.Shares,
		"cost", cost,
		"edge", sig.Edge,
		"group", group,
		"paper", fill.Paper,
	)
	return cost, nil
}
