package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/alejandrodnm/polyweather/internal/position"
	"github.com/google/uuid"
)

// review marks every open position, lets the manager decide exits and sells
// the ones it flags. A position whose market was evaluated this cycle gets
// the quote and the fresh model probability; one whose market left the scan
// is marked from its own token's book in held. It returns the executed exits
// and the positions still open afterwards.
func (e *Engine) review(ctx context.Context, cycle int64, open []domain.Position, byMarket map[string]*evaluation,
	held map[string]float64) ([]domain.ExitDecision, []domain.Position, error) {

	marks := make(map[string]position.Mark, len(open))
	for i, p := range open {
		var m position.Mark
		if ev, ok := byMarket[p.MarketID]; ok {
			m.Price = ev.quote.MarkFor(p.Side)
			if ev.hasModel {
				prob := ev.modelYes
				if p.Side == domain.SideNo {
					prob = 1 - prob
				}
				m.Probability = &prob
			}
		} else if price, ok := held[p.TokenID]; ok {
			m.Price = price
		} else {
			slog.Warn("position not marked", "position_id", p.ID, "market_id", p.MarketID)
			continue
		}
		marks[p.ID] = m

		if err := e.Store.UpdateMark(ctx, p.ID, m.Price, m.Probability, e.now()); err != nil {
			slog.Warn("mark update failed", "position_id", p.ID, "err", err)
		}
		open[i].CurrentPrice = m.Price
		open[i].CurrentProbability = m.Probability
	}

	var exits []domain.ExitDecision
	exited := make(map[string]bool)
	for _, d := range e.Manager.Review(open, marks) {
		if !d.Exit {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		done, err := e.exit(ctx, cycle, d)
		if err != nil {
			if errors.Is(err, domain.ErrExecution) {
				slog.Warn("exit not executed", "position_id", d.Position.ID, "reason", d.Reason, "err", err)
				continue
			}
			return exits, nil, err
		}
		exits = append(exits, done)
		exited[d.Position.ID] = true
		e.Metrics.ObserveExit(d.Reason)
	}

	still := make([]domain.Position, 0, len(open))
	for _, p := range open {
		if !exited[p.ID] {
			still = append(still, p)
		}
	}
	return exits, still, nil
}

// heldMarks prices the open positions whose market is not among this
// cycle's evaluations, straight from their token's book. A failure leaves
// those positions unmarked for the cycle.
func (e *Engine) heldMarks(ctx context.Context, open []domain.Position, byMarket map[string]*evaluation) map[string]float64 {
	var tokens []string
	for _, p := range open {
		if _, ok := byMarket[p.MarketID]; !ok && p.TokenID != "" {
			tokens = append(tokens, p.TokenID)
		}
	}
	if len(tokens) == 0 {
		return nil
	}
	marks, err := e.Quotes.FetchMarks(ctx, tokens)
	if err != nil {
		slog.Warn("held position marks failed", "positions", len(tokens), "err", err)
		return nil
	}
	slog.Debug("held positions marked", "positions", len(tokens), "marked", len(marks))
	return marks
}

// exit sells a position and books the proceeds.
func (e *Engine) exit(ctx context.Context, cycle int64, d domain.ExitDecision) (domain.ExitDecision, error) {
	p := d.Position
	fill, err := e.Executor.Execute(ctx, domain.Order{
		MarketID:   p.MarketID,
		TokenID:    p.TokenID,
		Side:       p.Side,
		Action:     domain.ActionSell,
		SizeUSD:    d.Price * p.Shares,
		Shares:     p.Shares,
		LimitPrice: d.Price,
	})
	if err != nil {
		return d, err
	}
	if !fill.Filled {
		return d, fmt.Errorf("engine.exit %s: not filled: %w", p.ID, domain.ErrExecution)
	}

	d.Price = fill.FillPrice
	trade := domain.TradeRecord{
		ID:         uuid.New().String(),
		PositionID: p.ID,
		Cycle:      cycle,
		MarketID:   p.MarketID,
		Question:   p.Question,
		Side:       p.Side,
		Action:     domain.ActionSell,
		Price:      fill.FillPrice,
		Shares:     p.Shares,
		SizeUSD:    fill.FillPrice * p.Shares,
		Reason:     string(d.Reason),
		Paper:      fill.Paper,
		CreatedAt:  e.now(),
	}
	pnl, err := e.Accountant.RecordExit(context.WithoutCancel(ctx), trade, d)
	if err != nil {
		return d, fmt.Errorf("engine.exit: %w", err)
	}
	slog.Info("position exited",
		"position_id", p.ID,
		"market_id", p.MarketID,
		"reason", d.Reason,
		"price", fill.FillPrice,
		"pnl", pnl,
	)
	return d, nil
}
