package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// RunCycle runs one full decision cycle and closes it with the accountant.
// Failures of a single market or of an upstream feed are contained and
// reported in the summary. A failure that stops the cycle part-way still
// closes it, flagged as aborted, so the costs and trades already booked keep
// their cycle number. The returned error is that failure, a wrapped
// domain.ErrSolvencyBreach, or both.
func (e *Engine) RunCycle(ctx context.Context) (domain.CycleSummary, error) {
	start := e.now()

	cycle, err := e.Store.NextCycleNumber(ctx)
	if err != nil {
		return domain.CycleSummary{}, fmt.Errorf("engine.RunCycle: %w", err)
	}
	before, err := e.Accountant.CheckSurvival(ctx, cycle)
	if err != nil {
		return domain.CycleSummary{Bankroll: before}, err
	}
	log := slog.With("cycle", cycle)
	log.Info("cycle starting", "equity", before.Equity(), "cash", before.AvailableCash)

	rec := domain.CycleRecord{
		CycleNumber:    cycle,
		BankrollBefore: before.Equity(),
		StartedAt:      start,
	}

	markets, err := e.Markets.FetchMarkets(ctx)
	if err != nil {
		log.Warn("market fetch failed", "err", err)
	}
	quotes := map[string]domain.MarketQuote{}
	if len(markets) > 0 {
		q, err := e.Quotes.FetchQuotes(ctx, markets)
		if err != nil {
			log.Warn("quote fetch failed", "err", err)
		} else {
			quotes = q
		}
	}

	evals := e.candidates(markets, quotes)
	byMarket := make(map[string]*evaluation, len(evals))
	for _, ev := range evals {
		byMarket[ev.market.ConditionID] = ev
	}
	rec.MarketsScanned = len(markets)
	rec.MarketsEvaluated = len(evals)
	rec.MarketsSkipped = len(evals)

	cache := e.gatherForecasts(ctx, evals)
	e.saveSnapshots(ctx, cycle, cache)
	e.estimate(ctx, evals, cache, e.calibrations(ctx))

	spent, err := e.analyze(ctx, cycle, evals)
	rec.APICostUSD = spent
	if err != nil {
		return e.abort(ctx, rec, fmt.Errorf("engine.RunCycle: %w", err))
	}
	e.detect(ctx, evals)

	open, err := e.Store.OpenPositions(ctx)
	if err != nil {
		return e.abort(ctx, rec, fmt.Errorf("engine.RunCycle: %w", err))
	}
	held := e.heldMarks(ctx, open, byMarket)
	exits, open, err := e.review(ctx, cycle, open, byMarket, held)
	rec.PositionsExited = len(exits)
	if err != nil {
		return e.abort(ctx, rec, fmt.Errorf("engine.RunCycle: %w", err))
	}

	b, err := e.Accountant.Bankroll(ctx)
	if err != nil {
		return e.abort(ctx, rec, fmt.Errorf("engine.RunCycle: %w", err))
	}
	dd := e.Manager.Drawdown(b)
	rec.DrawdownActive = dd.Active
	if dd.Active {
		log.Warn("drawdown breaker active", "drawdown", dd.Drawdown, "equity", dd.Equity, "peak", dd.Peak)
	}

	traded, commitErr := e.commit(ctx, cycle, evals, b, dd, open)
	rec.TradesPlaced = traded
	rec.MarketsSkipped = len(evals) - traded

	decisions := make([]domain.Decision, 0, len(evals))
	skipped := make(map[domain.SkipReason]int)
	for _, ev := range evals {
		d := ev.record(cycle)
		d.CreatedAt = e.now()
		decisions = append(decisions, d)
		if d.Status != domain.DecisionTraded {
			skipped[d.Reason]++
			e.Metrics.ObserveSkip(d.Reason)
		}
	}
	if err := e.Store.SaveDecisions(ctx, decisions); err != nil {
		log.Warn("decision log save failed", "err", err)
	}
	if commitErr != nil {
		summary, err := e.abort(ctx, rec, fmt.Errorf("engine.RunCycle: %w", commitErr))
		summary.Decisions = decisions
		summary.Exits = exits
		summary.Skipped = skipped
		return summary, err
	}

	rec.FinishedAt = e.now()
	after, closeErr := e.Accountant.CloseCycle(ctx, rec)
	rec.BankrollAfter = after.Equity()

	summary := domain.CycleSummary{
		Record:    rec,
		Bankroll:  after,
		Drawdown:  after.Drawdown(),
		Decisions: decisions,
		Exits:     exits,
		Skipped:   skipped,
	}
	e.Metrics.ObserveCycle(summary)
	if closeErr != nil {
		if errors.Is(closeErr, domain.ErrSolvencyBreach) {
			log.Error("solvency breach", "equity", after.Equity(), "cash", after.AvailableCash)
		}
		return summary, closeErr
	}

	if e.Notifier != nil {
		if err := e.Notifier.NotifyCycle(ctx, summary); err != nil {
			log.Warn("notifier error", "err", err)
		}
	}
	log.Info("cycle complete",
		"markets", len(markets),
		"evaluated", len(evals),
		"traded", traded,
		"exited", len(exits),
		"api_cost", spent,
		"duration", e.now().Sub(start).Round(time.Millisecond),
	)
	return summary, nil
}

// abort closes a cycle that stopped part-way. The record and the survival
// check are written even when ctx is already cancelled.
func (e *Engine) abort(ctx context.Context, rec domain.CycleRecord, cause error) (domain.CycleSummary, error) {
	rec.Aborted = true
	rec.FinishedAt = e.now()
	after, err := e.Accountant.CloseCycle(context.WithoutCancel(ctx), rec)
	rec.BankrollAfter = after.Equity()
	slog.Error("cycle aborted", "cycle", rec.CycleNumber, "err", cause)

	summary := domain.CycleSummary{Record: rec, Bankroll: after, Drawdown: after.Drawdown()}
	e.Metrics.ObserveCycle(summary)
	if err != nil {
		return summary, errors.Join(cause, err)
	}
	return summary, cause
}
