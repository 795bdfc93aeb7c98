// Package accounting owns the bankroll. Nothing is cached between calls:
// every read re-sums the persisted ledger and the open positions, so a
// restarted process sees exactly what the database says.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/alejandrodnm/polyweather/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the persistence the accountant reads and appends to.
type Store interface {
	ports.Ledger
	ports.PositionStore
	ports.CycleStore
}

// Config holds the accountant settings.
type Config struct {
	InitialSeed          float64
	LowBankrollThreshold float64
	IntervalHigh         time.Duration
	IntervalLow          time.Duration
	RecentCycles         int // cycles included in a death report
}

// Accountant books costs and trades and decides survival.
type Accountant struct {
	store    Store
	notifier ports.Notifier
	cfg      Config
	now      func() time.Time
}

// New creates an Accountant. notifier may be nil.
func New(store Store, notifier ports.Notifier, cfg Config) *Accountant {
	if cfg.RecentCycles <= 0 {
		cfg.RecentCycles = 10
	}
	return &Accountant{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSeed writes the initial seed on an empty ledger. It reports whether
// a seed was written.
func (a *Accountant) EnsureSeed(ctx context.Context) (bool, error) {
	entries, err := a.store.LedgerEntries(ctx)
	if err != nil {
		return false, fmt.Errorf("accounting.EnsureSeed: %w", err)
	}
	if len(entries) > 0 {
		return false, nil
	}

	seed := domain.LedgerEntry{
		ID:          uuid.New().String(),
		Kind:        domain.EntrySeed,
		Amount:      a.cfg.InitialSeed,
		Description: "initial bankroll",
		CreatedAt:   a.now(),
	}
	if err := a.store.AppendLedgerEntry(ctx, seed); err != nil {
		return false, fmt.Errorf("accounting.EnsureSeed: %w", err)
	}
	if err := a.store.RecordPeak(ctx, 0, a.cfg.InitialSeed); err != nil {
		return false, fmt.Errorf("accounting.EnsureSeed: %w", err)
	}
	slog.Info("bankroll seeded", "amount", a.cfg.InitialSeed)
	return true, nil
}

// Bankroll reconstructs the solvency picture from the ledger and the open
// positions at their latest marks.
func (a *Accountant) Bankroll(ctx context.Context) (domain.Bankroll, error) {
	entries, err := a.store.LedgerEntries(ctx)
	if err != nil {
		return domain.Bankroll{}, fmt.Errorf("accounting.Bankroll: ledger: %w", err)
	}
	open, err := a.store.OpenPositions(ctx)
	if err != nil {
		return domain.Bankroll{}, fmt.Errorf("accounting.Bankroll: positions: %w", err)
	}
	peak, err := a.store.PeakBankroll(ctx)
	if err != nil {
		return domain.Bankroll{}, fmt.Errorf("accounting.Bankroll: peak: %w", err)
	}
	return reconstruct(entries, open, peak), nil
}

func reconstruct(entries []domain.LedgerEntry, open []domain.Position, peak float64) domain.Bankroll {
	cash := decimal.Zero
	for _, e := range entries {
		cash = cash.Add(decimal.NewFromFloat(e.Amount))
	}

	exposure, liquidation := decimal.Zero, decimal.Zero
	for _, p := range open {
		exposure = exposure.Add(decimal.NewFromFloat(p.CostUSD))
		liquidation = liquidation.Add(decimal.NewFromFloat(p.Mark()).Mul(decimal.NewFromFloat(p.Shares)))
	}

	b := domain.Bankroll{
		AvailableCash:    cash.InexactFloat64(),
		OpenExposure:     exposure.InexactFloat64(),
		LiquidationValue: liquidation.InexactFloat64(),
		Peak:             peak,
		OpenPositions:    len(open),
	}
	// The stored peak lags until CloseCycle records a new high.
	if eq := b.Equity(); eq > b.Peak {
		b.Peak = eq
	}
	return b
}

// Alive reports whether the bankroll is solvent: cash plus liquidation value
// strictly above zero.
func Alive(b domain.Bankroll) bool {
	equity := decimal.NewFromFloat(b.AvailableCash).Add(decimal.NewFromFloat(b.LiquidationValue))
	return equity.IsPositive()
}

// AccrueCost books a metered analysis charge the moment it is incurred.
// A zero (or invalid) cost writes nothing.
func (a *Accountant) AccrueCost(ctx context.Context, cycle int64, marketID, provider string, costUSD float64) error {
	if !(costUSD > 0) || math.IsInf(costUSD, 1) {
		return nil
	}
	cost := domain.APICost{
		Cycle:     cycle,
		MarketID:  marketID,
		Provider:  provider,
		CostUSD:   costUSD,
		CreatedAt: a.now(),
	}
	entry := domain.LedgerEntry{
		ID:          uuid.New().String(),
		Cycle:       cycle,
		Kind:        domain.EntryAPICost,
		Amount:      -costUSD,
		MarketID:    marketID,
		Description: provider + " analysis",
		CreatedAt:   cost.CreatedAt,
	}
	if err := a.store.RecordAPICost(ctx, cost, entry); err != nil {
		return fmt.Errorf("accounting.AccrueCost %s: %w", marketID, err)
	}
	return nil
}

// RecordEntry commits a filled buy: trade, position and cash debit.
func (a *Accountant) RecordEntry(ctx context.Context, trade domain.TradeRecord, pos domain.Position) error {
	entry := domain.LedgerEntry{
		ID:          uuid.New().String(),
		Cycle:       trade.Cycle,
		Kind:        domain.EntryTrade,
		Amount:      -pos.CostUSD,
		MarketID:    pos.MarketID,
		Description: fmt.Sprintf("buy %s %.2f sh @ %.4f", pos.Side, pos.Shares, pos.EntryPrice),
		CreatedAt:   a.now(),
	}
	if err := a.store.CommitEntry(ctx, trade, pos, entry); err != nil {
		return fmt.Errorf("accounting.RecordEntry %s: %w", pos.MarketID, err)
	}
	return nil
}

// RecordExit commits a filled sell and returns the realized PnL.
func (a *Accountant) RecordExit(ctx context.Context, trade domain.TradeRecord, exit domain.ExitDecision) (float64, error) {
	proceeds := decimal.NewFromFloat(trade.Price).Mul(decimal.NewFromFloat(trade.Shares))
	pnl := proceeds.Sub(decimal.NewFromFloat(exit.Position.CostUSD))

	entry := domain.LedgerEntry{
		ID:          uuid.New().String(),
		Cycle:       trade.Cycle,
		Kind:        domain.EntryExit,
		Amount:      proceeds.InexactFloat64(),
		MarketID:    exit.Position.MarketID,
		Description: fmt.Sprintf("sell %s (%s) @ %.4f", exit.Position.Side, exit.Reason, trade.Price),
		CreatedAt:   a.now(),
	}
	realized := pnl.InexactFloat64()
	if err := a.store.CommitExit(ctx, trade, exit, realized, entry); err != nil {
		return 0, fmt.Errorf("accounting.RecordExit %s: %w", exit.Position.ID, err)
	}
	return realized, nil
}

// CloseCycle appends the cycle record with the reconstructed bankroll,
// raises the peak when equity beats it, and runs the survival check. On a
// breach the death report is persisted and shown, and the returned error
// wraps domain.ErrSolvencyBreach.
func (a *Accountant) CloseCycle(ctx context.Context, rec domain.CycleRecord) (domain.Bankroll, error) {
	b, err := a.Bankroll(ctx)
	if err != nil {
		return domain.Bankroll{}, fmt.Errorf("accounting.CloseCycle: %w", err)
	}

	if err := a.store.RecordPeak(ctx, rec.CycleNumber, b.Equity()); err != nil {
		return b, fmt.Errorf("accounting.CloseCycle: %w", err)
	}

	rec.BankrollAfter = b.Equity()
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = a.now()
	}
	if err := a.store.AppendCycle(ctx, rec); err != nil {
		return b, fmt.Errorf("accounting.CloseCycle: %w", err)
	}

	slog.Info("cycle closed",
		"cycle", rec.CycleNumber,
		"cash", round2(b.AvailableCash),
		"equity", round2(b.Equity()),
		"peak", round2(b.Peak),
		"open_positions", b.OpenPositions,
		"api_cost", rec.APICostUSD,
	)
	return b, a.checkSurvival(ctx, rec.CycleNumber, b)
}

// CheckSurvival runs the solvency check outside a cycle close, e.g. at
// startup so a dead ledger is never traded again.
func (a *Accountant) CheckSurvival(ctx context.Context, cycle int64) (domain.Bankroll, error) {
	b, err := a.Bankroll(ctx)
	if err != nil {
		return domain.Bankroll{}, fmt.Errorf("accounting.CheckSurvival: %w", err)
	}
	return b, a.checkSurvival(ctx, cycle, b)
}

func (a *Accountant) checkSurvival(ctx context.Context, cycle int64, b domain.Bankroll) error {
	if Alive(b) {
		return nil
	}

	prior, err := a.store.LatestDeathReport(ctx)
	switch {
	case err == nil:
		slog.Error("ledger already dead", "died_at_cycle", prior.Cycle, "cause", prior.Cause)
		return fmt.Errorf("accounting: dead since cycle %d: %w", prior.Cycle, domain.ErrSolvencyBreach)
	case !errors.Is(err, domain.ErrNotFound):
		slog.Error("death report lookup failed", "err", err)
	}

	report, err := a.BuildDeathReport(ctx, cycle, b)
	if err != nil {
		// The breach stands even if the report is incomplete.
		slog.Error("death report build failed", "err", err)
		report = domain.DeathReport{Cause: deathCause(b, 0, 0), Cycle: cycle, Bankroll: b, CreatedAt: a.now()}
	}
	if err := a.store.SaveDeathReport(ctx, report); err != nil {
		slog.Error("death report persist failed", "err", err)
	}
	if a.notifier != nil {
		if err := a.notifier.NotifyDeath(ctx, report); err != nil {
			slog.Error("death report notify failed", "err", err)
		}
	}
	return fmt.Errorf("accounting: cycle %d equity %.4f: %w", cycle, b.Equity(), domain.ErrSolvencyBreach)
}

// CycleInterval picks the pause before the next cycle from current equity.
func (a *Accountant) CycleInterval(equity float64) time.Duration {
	if equity >= a.cfg.LowBankrollThreshold {
		return a.cfg.IntervalHigh
	}
	return a.cfg.IntervalLow
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
