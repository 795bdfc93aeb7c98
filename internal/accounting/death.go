package accounting

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/shopspring/decimal"
)

// BuildDeathReport assembles the audit of a dead bankroll from the store:
// full trade history, open and closed positions, recent cycles and a PnL
// breakdown.
func (a *Accountant) BuildDeathReport(ctx context.Context, cycle int64, b domain.Bankroll) (domain.DeathReport, error) {
	s, err := a.status(ctx, b)
	if err != nil {
		return domain.DeathReport{}, fmt.Errorf("accounting.BuildDeathReport: %w", err)
	}
	return domain.DeathReport{
		Cause:           deathCause(b, s.TotalAPICost, s.RealizedPnL+s.UnrealizedPnL),
		Cycle:           cycle,
		Bankroll:        b,
		InitialSeed:     s.InitialSeed,
		RealizedPnL:     s.RealizedPnL,
		UnrealizedPnL:   s.UnrealizedPnL,
		TotalAPICost:    s.TotalAPICost,
		TotalPnL:        s.TotalPnL,
		TradeCount:      s.TradeCount,
		Trades:          s.Trades,
		OpenPositions:   s.OpenPositions,
		ClosedPositions: s.ClosedPositions,
		RecentCycles:    s.RecentCycles,
		CreatedAt:       s.CreatedAt,
	}, nil
}

// Status reconstructs the bankroll and its PnL breakdown.
func (a *Accountant) Status(ctx context.Context) (domain.StatusReport, error) {
	b, err := a.Bankroll(ctx)
	if err != nil {
		return domain.StatusReport{}, fmt.Errorf("accounting.Status: %w", err)
	}
	s, err := a.status(ctx, b)
	if err != nil {
		return domain.StatusReport{}, fmt.Errorf("accounting.Status: %w", err)
	}
	return s, nil
}

func (a *Accountant) status(ctx context.Context, b domain.Bankroll) (domain.StatusReport, error) {
	entries, err := a.store.LedgerEntries(ctx)
	if err != nil {
		return domain.StatusReport{}, fmt.Errorf("ledger: %w", err)
	}
	trades, err := a.store.Trades(ctx)
	if err != nil {
		return domain.StatusReport{}, fmt.Errorf("trades: %w", err)
	}
	open, err := a.store.OpenPositions(ctx)
	if err != nil {
		return domain.StatusReport{}, fmt.Errorf("open positions: %w", err)
	}
	closed, err := a.store.ClosedPositions(ctx)
	if err != nil {
		return domain.StatusReport{}, fmt.Errorf("closed positions: %w", err)
	}
	recent, err := a.store.RecentCycles(ctx, a.cfg.RecentCycles)
	if err != nil {
		return domain.StatusReport{}, fmt.Errorf("cycles: %w", err)
	}

	seed, apiCost := decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.Kind {
		case domain.EntrySeed:
			seed = seed.Add(decimal.NewFromFloat(e.Amount))
		case domain.EntryAPICost:
			apiCost = apiCost.Sub(decimal.NewFromFloat(e.Amount))
		}
	}

	realized := decimal.Zero
	for _, p := range closed {
		realized = realized.Add(decimal.NewFromFloat(p.RealizedPnL))
	}
	unrealized := decimal.Zero
	for _, p := range open {
		unrealized = unrealized.Add(decimal.NewFromFloat(p.UnrealizedPnL()))
	}

	equity := decimal.NewFromFloat(b.AvailableCash).Add(decimal.NewFromFloat(b.LiquidationValue))
	return domain.StatusReport{
		Bankroll:        b,
		Alive:           Alive(b),
		InitialSeed:     seed.InexactFloat64(),
		RealizedPnL:     realized.InexactFloat64(),
		UnrealizedPnL:   unrealized.InexactFloat64(),
		TotalAPICost:    apiCost.InexactFloat64(),
		TotalPnL:        equity.Sub(seed).InexactFloat64(),
		TradeCount:      len(trades),
		Trades:          trades,
		OpenPositions:   open,
		ClosedPositions: closed,
		RecentCycles:    recent,
		CreatedAt:       a.now(),
	}, nil
}

// deathCause names the dominant drain on the bankroll.
func deathCause(b domain.Bankroll, apiCost, tradingPnL float64) string {
	base := fmt.Sprintf("bankroll depleted: cash $%.2f + liquidation $%.2f <= 0", b.AvailableCash, b.LiquidationValue)
	switch {
	case apiCost > 0 && apiCost >= -tradingPnL:
		return base + fmt.Sprintf(" (analysis costs $%.2f)", apiCost)
	case tradingPnL < 0:
		return base + fmt.Sprintf(" (trading losses $%.2f)", -tradingPnL)
	default:
		return base
	}
}
