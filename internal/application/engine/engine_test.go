package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/polyweather/internal/accounting"
	"github.com/alejandrodnm/polyweather/internal/adapters/paper"
	"github.com/alejandrodnm/polyweather/internal/adapters/storage"
	"github.com/alejandrodnm/polyweather/internal/application/engine"
	"github.com/alejandrodnm/polyweather/internal/classify"
	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/alejandrodnm/polyweather/internal/edge"
	"github.com/alejandrodnm/polyweather/internal/estimator"
	"github.com/alejandrodnm/polyweather/internal/position"
	"github.com/alejandrodnm/polyweather/internal/sizing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeMarkets struct {
	markets []domain.Market
	quotes  map[string]domain.MarketQuote
	marks   map[string]float64 // by token ID
	err     error
}

func (f *fakeMarkets) FetchMarkets(context.Context) ([]domain.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.markets, nil
}

func (f *fakeMarkets) FetchMarks(_ context.Context, tokenIDs []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, id := range tokenIDs {
		if m, ok := f.marks[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (f *fakeMarkets) FetchQuotes(_ context.Context, markets []domain.Market) (map[string]domain.MarketQuote, error) {
	out := make(map[string]domain.MarketQuote)
	for _, m := range markets {
		if q, ok := f.quotes[m.ConditionID]; ok {
			out[m.ConditionID] = q
		}
	}
	return out, nil
}

type fakeForecast struct {
	members []float64
	fail    map[string]bool

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeForecast) FetchEnsemble(_ context.Context, city string, date time.Time, sameDay bool) (domain.ForecastBundle, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[city]++
	f.mu.Unlock()

	if f.fail[city] {
		return domain.ForecastBundle{}, errors.New("sidecar down")
	}
	return domain.ForecastBundle{
		SameDay: sameDay,
		Sample:  domain.EnsembleSample{Models: []string{"gefs"}, Values: f.members},
	}, nil
}

func (f *fakeForecast) FetchObserved(context.Context, string, time.Time) (float64, error) {
	return 0, domain.ErrNotFound
}

type fakeAnalyst struct {
	judgment domain.Judgment
	err      error
	calls    int
}

func (f *fakeAnalyst) Analyze(context.Context, domain.Facts) (domain.Judgment, error) {
	f.calls++
	return f.judgment, f.err
}

type recorder struct {
	cycles []domain.CycleSummary
	deaths []domain.DeathReport
}

func (r *recorder) NotifyCycle(_ context.Context, s domain.CycleSummary) error {
	r.cycles = append(r.cycles, s)
	return nil
}

func (r *recorder) NotifyDeath(_ context.Context, d domain.DeathReport) error {
	r.deaths = append(r.deaths, d)
	return nil
}

// cancelAfterFirst fills through the paper executor and cancels the cycle
// context right after the first fill.
type cancelAfterFirst struct {
	paper  *paper.Executor
	cancel context.CancelFunc
}

func (c *cancelAfterFirst) Paper() bool { return true }

func (c *cancelAfterFirst) Execute(ctx context.Context, o domain.Order) (domain.Fill, error) {
	fill, err := c.paper.Execute(ctx, o)
	c.cancel()
	return fill, err
}

type failingExecutor struct{}

func (failingExecutor) Paper() bool { return true }

func (failingExecutor) Execute(context.Context, domain.Order) (domain.Fill, error) {
	return domain.Fill{}, errors.New("order gateway unreachable")
}

// --- harness ---

type harness struct {
	eng      *engine.Engine
	db       *storage.SQLiteStorage
	acct     *accounting.Accountant
	notes    *recorder
	markets  *fakeMarkets
	forecast *fakeForecast
}

func newHarness(t *testing.T, seed float64, opts ...func(*engine.Config, *engine.Deps)) *harness {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	notes := &recorder{}
	acct := accounting.New(db, notes, accounting.Config{
		InitialSeed:          seed,
		LowBankrollThreshold: 200,
		IntervalHigh:         time.Millisecond,
		IntervalLow:          time.Millisecond,
	})
	_, err = acct.EnsureSeed(context.Background())
	require.NoError(t, err)

	h := &harness{
		db:       db,
		acct:     acct,
		notes:    notes,
		markets:  &fakeMarkets{quotes: map[string]domain.MarketQuote{}},
		forecast: &fakeForecast{members: []float64{69.5, 70, 70.5, 71, 71, 71.5, 70.5, 70}},
	}
	cfg := engine.Config{
		Workers:    4,
		MaxAPICost: 0.5,
		MaxCycles:  1,
		Risk:       sizing.DefaultRisk(),
	}
	deps := engine.Deps{
		Markets:    h.markets,
		Quotes:     h.markets,
		Forecast:   h.forecast,
		Executor:   paper.NewExecutor(),
		Store:      db,
		Accountant: acct,
		Classifier: classify.New(nil),
		Estimator:  estimator.New(estimator.DefaultConfig()),
		Detector:   edge.NewDetector(edge.DefaultConfig()),
		Manager:    position.NewManager(position.DefaultConfig()),
		Notifier:   notes,
	}
	for _, o := range opts {
		o(&cfg, &deps)
	}
	h.eng = engine.New(cfg, deps)
	return h
}

func tomorrow() time.Time {
	return time.Now().UTC().AddDate(0, 0, 1)
}

func binary(id, question string, weather bool) domain.Market {
	return domain.Market{
		ConditionID: id,
		Question:    question,
		Weather:     weather,
		Active:      true,
		Tokens: [2]domain.Token{
			{TokenID: id + "-yes", Outcome: "Yes"},
			{TokenID: id + "-no", Outcome: "No"},
		},
	}
}

func (h *harness) addWeather(id, city string, yesAsk float64) {
	q := fmt.Sprintf("Highest temperature in %s on %s: between 70°F and 71°F?", city, tomorrow().Format("2006-01-02"))
	h.markets.markets = append(h.markets.markets, binary(id, q, true))
	h.markets.quotes[id] = domain.MarketQuote{
		MarketID: id, YesPrice: yesAsk, NoPrice: 1 - yesAsk + 0.02, YesBid: yesAsk - 0.02, NoBid: 1 - yesAsk - 0.02,
	}
}

func (h *harness) addGeneric(id string, yesAsk float64) {
	h.markets.markets = append(h.markets.markets, binary(id, "Will "+id+" happen?", false))
	h.markets.quotes[id] = domain.MarketQuote{MarketID: id, YesPrice: yesAsk, NoPrice: 1 - yesAsk + 0.02, YesBid: yesAsk - 0.02}
}

// hold books an open YES position straight into the ledger.
func (h *harness) hold(t *testing.T, id, marketID string, entry, shares float64) {
	t.Helper()
	pos := domain.Position{
		ID: id, MarketID: marketID, Question: "Will " + marketID + " happen?", TokenID: marketID + "-yes",
		Side: domain.SideYes, EntryPrice: entry, Shares: shares, CostUSD: entry * shares,
		Status: domain.PositionOpen, OpenedAt: time.Now().UTC(),
	}
	trade := domain.TradeRecord{
		ID: "t-" + id, PositionID: id, MarketID: marketID, Side: domain.SideYes,
		Action: domain.ActionBuy, Price: entry, Shares: shares, SizeUSD: entry * shares, Paper: true, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.acct.RecordEntry(context.Background(), trade, pos))
}

func (h *harness) decisions(t *testing.T, s domain.CycleSummary) map[string]domain.Decision {
	t.Helper()
	out := make(map[string]domain.Decision)
	for _, d := range s.Decisions {
		out[d.MarketID] = d
	}
	return out
}

// --- tests ---

func TestRunCycle_WeatherTrade(t *testing.T) {
	h := newHarness(t, 50)
	h.addWeather("0xnyc", "New York City", 0.10)
	ctx := context.Background()

	s, err := h.eng.RunCycle(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 1, s.Record.CycleNumber)
	assert.Equal(t, 1, s.Record.TradesPlaced)
	assert.Equal(t, 1, s.Record.MarketsEvaluated)

	d := h.decisions(t, s)["0xnyc"]
	assert.Equal(t, domain.DecisionTraded, d.Status)
	assert.Equal(t, domain.SideYes, d.Side)
	assert.True(t, d.Weather)
	assert.Greater(t, d.Edge, 0.08)
	assert.InDelta(t, 3.0, d.SizeUSD, 1e-9, "capped at 6% of 50")

	open, err := h.db.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "Northeast", open[0].CorrelationGroup)
	assert.Equal(t, "0xnyc-yes", open[0].TokenID)
	assert.True(t, open[0].Weather)

	b, err := h.acct.Bankroll(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 47.0, b.AvailableCash, 1e-9)

	snap, err := h.db.LatestSnapshot(ctx, "NYC", tomorrow().Format("2006-01-02"))
	require.NoError(t, err)
	assert.Equal(t, 8, snap.Members)

	counts, err := h.db.CountDecisions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.DecisionTraded])

	require.Len(t, h.notes.cycles, 1)
}

func TestRunCycle_ExposureUpdatedBetweenTrades(t *testing.T) {
	h := newHarness(t, 50, func(c *engine.Config, _ *engine.Deps) {
		c.Risk.MaxGroupExposure = 0.10 // $5 for the whole Northeast
	})
	h.addWeather("0xnyc", "New York City", 0.10)
	h.addWeather("0xbos", "Boston", 0.12)
	h.addWeather("0xphl", "Philadelphia", 0.14)
	ctx := context.Background()

	s, err := h.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Record.TradesPlaced)

	d := h.decisions(t, s)
	assert.Equal(t, domain.DecisionTraded, d["0xnyc"].Status, "largest edge goes first")
	assert.Equal(t, domain.DecisionTraded, d["0xbos"].Status)
	assert.Less(t, d["0xbos"].SizeUSD, 3.0)
	assert.NotEqual(t, domain.DecisionTraded, d["0xphl"].Status)

	open, err := h.db.OpenPositions(ctx)
	require.NoError(t, err)
	var group float64
	for _, p := range open {
		assert.Equal(t, "Northeast", p.CorrelationGroup)
		group += p.CostUSD
	}
	assert.LessOrEqual(t, group, 5.0+1e-9)

	// One forecast per city, not per market.
	assert.Equal(t, 1, h.forecast.calls["NYC"])
}

func TestRunCycle_ForecastFailureIsContained(t *testing.T) {
	h := newHarness(t, 50)
	h.forecast.fail = map[string]bool{"CHI": true}
	h.addWeather("0xnyc", "New York City", 0.10)
	h.addWeather("0xchi", "Chicago", 0.10)

	s, err := h.eng.RunCycle(context.Background())
	require.NoError(t, err)

	d := h.decisions(t, s)
	assert.Equal(t, domain.DecisionTraded, d["0xnyc"].Status)
	assert.Equal(t, domain.DecisionSkipped, d["0xchi"].Status)
	assert.Equal(t, domain.SkipNoData, d["0xchi"].Reason)
	assert.Equal(t, 1, s.Skipped[domain.SkipNoData])
}

func TestRunCycle_BilledAnalysisFailureIsBooked(t *testing.T) {
	analyst := &fakeAnalyst{
		judgment: domain.Judgment{CostUSD: 0.03},
		err:      errors.New("unparseable answer"),
	}
	h := newHarness(t, 50, func(_ *engine.Config, d *engine.Deps) { d.Analyst = analyst })
	h.addGeneric("0xgen", 0.40)
	ctx := context.Background()

	s, err := h.eng.RunCycle(ctx)
	require.NoError(t, err)

	d := h.decisions(t, s)["0xgen"]
	assert.Equal(t, domain.DecisionError, d.Status)
	assert.Equal(t, domain.SkipNoJudgment, d.Reason)
	assert.InDelta(t, 0.03, s.Record.APICostUSD, 1e-12)

	b, err := h.acct.Bankroll(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 49.97, b.AvailableCash, 1e-9)
}

func TestRunCycle_AnalysisBudget(t *testing.T) {
	analyst := &fakeAnalyst{judgment: domain.Judgment{Probability: 0.5, Confidence: 0.9, DataQuality: "high", CostUSD: 0.3}}
	h := newHarness(t, 50, func(_ *engine.Config, d *engine.Deps) { d.Analyst = analyst })
	h.addGeneric("0xa", 0.50)
	h.addGeneric("0xb", 0.50)
	h.addGeneric("0xc", 0.50)

	s, err := h.eng.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, analyst.calls, "the second call starts below the budget, the third does not")
	assert.Equal(t, 1, s.Skipped[domain.SkipBudget])
	assert.Equal(t, 2, s.Skipped[domain.SkipBelowThreshold])
	assert.InDelta(t, 0.6, s.Record.APICostUSD, 1e-12)
}

func TestRunCycle_GenericTradeFromJudgment(t *testing.T) {
	analyst := &fakeAnalyst{judgment: domain.Judgment{Probability: 0.70, Confidence: 0.8, DataQuality: "medium", CostUSD: 0.01}}
	h := newHarness(t, 50, func(_ *engine.Config, d *engine.Deps) { d.Analyst = analyst })
	h.addGeneric("0xgen", 0.40)

	s, err := h.eng.RunCycle(context.Background())
	require.NoError(t, err)

	d := h.decisions(t, s)["0xgen"]
	assert.Equal(t, domain.DecisionTraded, d.Status)
	assert.False(t, d.Weather)
	assert.InDelta(t, 0.30, d.Edge, 1e-9)
}

func TestRunCycle_LowConfidenceJudgmentIsSkipped(t *testing.T) {
	analyst := &fakeAnalyst{judgment: domain.Judgment{Probability: 0.90, Confidence: 0.2, DataQuality: "high"}}
	h := newHarness(t, 50, func(_ *engine.Config, d *engine.Deps) { d.Analyst = analyst })
	h.addGeneric("0xgen", 0.40)

	s, err := h.eng.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SkipLowConfidence, h.decisions(t, s)["0xgen"].Reason)
}

func TestRunCycle_StopLossExit(t *testing.T) {
	h := newHarness(t, 50)
	h.addGeneric("0xgen", 0.32) // bid 0.30
	ctx := context.Background()
	h.hold(t, "pos-1", "0xgen", 0.5, 10)

	s, err := h.eng.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, s.Exits, 1)
	assert.Equal(t, domain.ExitStopLoss, s.Exits[0].Reason)
	assert.Equal(t, 1, s.Record.PositionsExited)

	closed, err := h.db.ClosedPositions(ctx)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.InDelta(t, -2.0, closed[0].RealizedPnL, 1e-9)

	b, err := h.acct.Bankroll(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 48.0, b.AvailableCash, 1e-9)
	assert.Equal(t, 0, b.OpenPositions)
}

func TestRunCycle_HeldMarketOutsideScanStillReviewed(t *testing.T) {
	for name, fetchErr := range map[string]error{
		"dropped from scan":   nil,
		"market fetch failed": errors.New("gamma down"),
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 50)
			h.markets.err = fetchErr
			h.addGeneric("0xother", 0.50)
			h.markets.marks = map[string]float64{"0xgone-yes": 0.30}
			h.hold(t, "pos-1", "0xgone", 0.5, 10)
			ctx := context.Background()

			s, err := h.eng.RunCycle(ctx)
			require.NoError(t, err)
			require.Len(t, s.Exits, 1)
			assert.Equal(t, domain.ExitStopLoss, s.Exits[0].Reason)
			assert.Equal(t, "0xgone", s.Exits[0].Position.MarketID)
			assert.InDelta(t, 0.30, s.Exits[0].Price, 1e-9)

			b, err := h.acct.Bankroll(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, b.OpenPositions)
			assert.InDelta(t, 48.0, b.AvailableCash, 1e-9)
		})
	}
}

func TestRunCycle_HeldMarketMarkFeedsBankroll(t *testing.T) {
	h := newHarness(t, 50)
	h.markets.marks = map[string]float64{"0xgone-yes": 0.45} // 10% down, inside the stop
	h.hold(t, "pos-1", "0xgone", 0.5, 10)
	ctx := context.Background()

	s, err := h.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.Exits)
	assert.InDelta(t, 4.5, s.Bankroll.LiquidationValue, 1e-9)

	open, err := h.db.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, 0.45, open[0].CurrentPrice, 1e-9)
}

func TestRunCycle_DrawdownBreakerHalvesStakes(t *testing.T) {
	analyst := &fakeAnalyst{judgment: domain.Judgment{Probability: 0.70, Confidence: 0.8, DataQuality: "medium"}}
	h := newHarness(t, 100, func(c *engine.Config, d *engine.Deps) {
		d.Analyst = analyst
		c.Risk = sizing.Risk{KellyMultiplier: 0.5, MaxPositionFraction: 1, MaxTotalExposure: 1, MinTradeUSD: 1}
		pc := position.DefaultConfig()
		pc.StopLoss, pc.TakeProfit = 1, 1 // keep the losing position open
		d.Manager = position.NewManager(pc)
	})
	ctx := context.Background()

	// Cash 60 plus 80 shares at 0.50: equity and peak 100.
	h.hold(t, "pos-1", "0xheld", 0.5, 80)
	_, err := h.acct.CloseCycle(ctx, domain.CycleRecord{CycleNumber: 1})
	require.NoError(t, err)

	// The held token drops to 0.10: equity 68, 32% below the peak.
	h.markets.marks = map[string]float64{"0xheld-yes": 0.10}
	h.addGeneric("0xgen", 0.40)

	s, err := h.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, s.Record.DrawdownActive)

	d := h.decisions(t, s)["0xgen"]
	require.Equal(t, domain.DecisionTraded, d.Status)
	fullStake := sizing.Kelly(0.70, 0.40) * 0.5 * 68
	assert.InDelta(t, 17.0, fullStake, 1e-9)
	assert.InDelta(t, fullStake/2, d.SizeUSD, 1e-9)

	cycles, err := h.db.RecentCycles(ctx, 1)
	require.NoError(t, err)
	assert.True(t, cycles[0].DrawdownActive)

	// Back to 0.50: equity is well above 70 and the breaker clears.
	h.markets.marks["0xheld-yes"] = 0.50
	s, err = h.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.False(t, s.Record.DrawdownActive)
	assert.Greater(t, s.Bankroll.Equity(), 70.0)
}

func TestRunCycle_FailedCommitClosesCycleAsAborted(t *testing.T) {
	analyst := &fakeAnalyst{judgment: domain.Judgment{Probability: 0.70, Confidence: 0.8, DataQuality: "medium", CostUSD: 0.02}}
	h := newHarness(t, 50, func(_ *engine.Config, d *engine.Deps) {
		d.Analyst = analyst
		d.Executor = failingExecutor{}
	})
	h.addGeneric("0xgen", 0.40)
	ctx := context.Background()

	s, err := h.eng.RunCycle(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSolvencyBreach)
	assert.True(t, s.Record.Aborted)
	assert.Empty(t, h.notes.cycles)

	cycles, err := h.db.RecentCycles(ctx, 5)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.EqualValues(t, 1, cycles[0].CycleNumber)
	assert.True(t, cycles[0].Aborted)
	assert.InDelta(t, 0.02, cycles[0].APICostUSD, 1e-12)
	assert.InDelta(t, 49.98, cycles[0].BankrollAfter, 1e-9)

	next, err := h.db.NextCycleNumber(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, next)
}

func TestRunCycle_CancellationStopsCommitBetweenTrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, 50, func(_ *engine.Config, d *engine.Deps) {
		d.Executor = &cancelAfterFirst{paper: paper.NewExecutor(), cancel: cancel}
	})
	h.addWeather("0xnyc", "New York City", 0.10)
	h.addWeather("0xmia", "Miami", 0.12)

	_, _ = h.eng.RunCycle(ctx)

	open, err := h.db.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "0xnyc", open[0].MarketID)
}

func TestRunCycle_AnalysisCostKillsBankroll(t *testing.T) {
	analyst := &fakeAnalyst{judgment: domain.Judgment{Probability: 0.5, Confidence: 0.9, DataQuality: "high", CostUSD: 0.11}}
	h := newHarness(t, 0.10, func(_ *engine.Config, d *engine.Deps) { d.Analyst = analyst })
	h.addGeneric("0xgen", 0.50)
	ctx := context.Background()

	s, err := h.eng.RunCycle(ctx)
	require.ErrorIs(t, err, domain.ErrSolvencyBreach)
	assert.InDelta(t, -0.01, s.Bankroll.AvailableCash, 1e-12)

	require.Len(t, h.notes.deaths, 1)
	assert.Contains(t, h.notes.deaths[0].Cause, "analysis costs")
	assert.Empty(t, h.notes.cycles, "a dead cycle gets the death report, not a summary")

	report, err := h.db.LatestDeathReport(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Cycle)

	// A restarted process on the dead ledger refuses to run another cycle
	// and does not write a second report.
	_, err = h.eng.RunCycle(ctx)
	assert.ErrorIs(t, err, domain.ErrSolvencyBreach)
	assert.Len(t, h.notes.deaths, 1)
}

func TestRun_StopsOnDeathAndAfterMaxCycles(t *testing.T) {
	analyst := &fakeAnalyst{judgment: domain.Judgment{Probability: 0.5, Confidence: 0.9, DataQuality: "high", CostUSD: 0.11}}
	dying := newHarness(t, 0.10, func(c *engine.Config, d *engine.Deps) {
		c.MaxCycles = 5
		d.Analyst = analyst
	})
	dying.addGeneric("0xgen", 0.50)
	assert.ErrorIs(t, dying.eng.Run(context.Background()), domain.ErrSolvencyBreach)
	assert.Equal(t, 1, analyst.calls)

	healthy := newHarness(t, 50, func(c *engine.Config, _ *engine.Deps) { c.MaxCycles = 3 })
	require.NoError(t, healthy.eng.Run(context.Background()))
	assert.Len(t, healthy.notes.cycles, 3)

	cycles, err := healthy.db.RecentCycles(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, cycles, 3)
}
