// Package engine runs the decision cycle: gather quotes, forecasts and
// judgments; estimate and detect edges on a worker pool; review open
// positions; then size and commit new trades one at a time.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyweather/internal/accounting"
	"github.com/alejandrodnm/polyweather/internal/classify"
	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/alejandrodnm/polyweather/internal/edge"
	"github.com/alejandrodnm/polyweather/internal/estimator"
	"github.com/alejandrodnm/polyweather/internal/ports"
	"github.com/alejandrodnm/polyweather/internal/position"
	"github.com/alejandrodnm/polyweather/internal/sizing"
)

// Config holds the cycle settings.
type Config struct {
	Workers         int     // evaluation goroutines, 0 = NumCPU*2
	MaxAPICost      float64 // analysis budget per cycle in USD
	ReviewWeather   bool    // also ask the analyst about weather markets
	MaxCycles       int     // 0 = run until cancelled
	AnalystProvider string  // name booked in the API cost log
	Risk            sizing.Risk
}

// Store is the persistence the engine reads and writes directly. Cash
// movements go through the accountant.
type Store interface {
	ports.PositionStore
	ports.CycleStore
	ports.WeatherStore
}

// Deps are the collaborators of the engine. Analyst, Notifier and Metrics
// may be nil.
type Deps struct {
	Markets    ports.MarketProvider
	Quotes     ports.QuoteProvider
	Forecast   ports.ForecastSource
	Analyst    ports.Analyst
	Executor   ports.Executor
	Store      Store
	Accountant *accounting.Accountant
	Classifier *classify.Classifier
	Estimator  *estimator.Estimator
	Detector   *edge.Detector
	Manager    *position.Manager
	Notifier   ports.Notifier
	Metrics    ports.Metrics
}

// Engine is the cycle orchestrator.
type Engine struct {
	cfg Config
	Deps
	now func() time.Time
}

// New creates an Engine.
func New(cfg Config, deps Deps) *Engine {
	if cfg.AnalystProvider == "" {
		cfg.AnalystProvider = "analyst"
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.New(nil)
	}
	return &Engine{
		cfg:  cfg,
		Deps: deps,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Run executes cycles until ctx is cancelled, MaxCycles is reached or the
// bankroll dies. Only a solvency breach is returned as an error; any other
// cycle failure is logged and the loop goes on.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"paper", e.Executor.Paper(),
		"max_cycles", e.cfg.MaxCycles,
		"workers", e.cfg.Workers,
		"max_api_cost", e.cfg.MaxAPICost,
	)

	for n := 1; ; n++ {
		summary, err := e.RunCycle(ctx)
		if errors.Is(err, domain.ErrSolvencyBreach) {
			return err
		}
		if err != nil {
			slog.Error("cycle failed", "err", err)
		}
		if e.cfg.MaxCycles > 0 && n >= e.cfg.MaxCycles {
			slog.Info("max cycles reached", "cycles", n)
			return nil
		}

		wait := e.Accountant.CycleInterval(summary.Bankroll.Equity())
		slog.Debug("next cycle", "in", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			slog.Info("engine stopped")
			return nil
		case <-t.C:
		}
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveCycle(domain.CycleSummary) {}
func (nopMetrics) ObserveTrade(domain.Side, float64) {}
func (nopMetrics) ObserveSkip(domain.SkipReason) {}
func (nopMetrics) ObserveExit(domain.ExitReason) {}
func (nopMetrics) ObserveAPICost(float64) {}
