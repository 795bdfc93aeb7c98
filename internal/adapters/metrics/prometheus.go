// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "polyweather"

// Recorder implements ports.Metrics on its own registry.
type Recorder struct {
	reg *prometheus.Registry

	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	equity        prometheus.Gauge
	cash          prometheus.Gauge
	drawdown      prometheus.Gauge
	openPositions prometheus.Gauge
	trades        *prometheus.CounterVec
	tradeUSD      *prometheus.CounterVec
	skips         *prometheus.CounterVec
	exits         *prometheus.CounterVec
	apiCost       prometheus.Counter
}

// NewRecorder registers every collector on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Completed decision cycles.",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Wall time of a decision cycle.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "equity_usd",
			Help: "Cash plus liquidation value of open positions.",
		}),
		cash: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cash_usd",
			Help: "Available cash from the ledger.",
		}),
		drawdown: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "drawdown_ratio",
			Help: "Fractional drop of equity from its peak.",
		}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_positions",
			Help: "Open positions after the cycle.",
		}),
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_total",
			Help: "Filled entries by side.",
		}, []string{"side"}),
		tradeUSD: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trade_size_usd_total",
			Help: "Dollars committed to entries by side.",
		}, []string{"side"}),
		skips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "skips_total",
			Help: "Markets not traded, by reason.",
		}, []string{"reason"}),
		exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "exits_total",
			Help: "Closed positions by reason.",
		}, []string{"reason"}),
		apiCost: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_cost_usd_total",
			Help: "Metered analysis spend.",
		}),
	}
}

// Registry returns the registry, for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) ObserveCycle(s domain.CycleSummary) {
	r.cycles.Inc()
	if !s.Record.StartedAt.IsZero() && s.Record.FinishedAt.After(s.Record.StartedAt) {
		r.cycleDuration.Observe(s.Record.FinishedAt.Sub(s.Record.StartedAt).Seconds())
	}
	r.equity.Set(s.Bankroll.Equity())
	r.cash.Set(s.Bankroll.AvailableCash)
	r.drawdown.Set(s.Drawdown)
	r.openPositions.Set(float64(s.Bankroll.OpenPositions))
}

func (r *Recorder) ObserveTrade(side domain.Side, sizeUSD float64) {
	r.trades.WithLabelValues(string(side)).Inc()
	r.tradeUSD.WithLabelValues(string(side)).Add(sizeUSD)
}

func (r *Recorder) ObserveSkip(reason domain.SkipReason) {
	r.skips.WithLabelValues(string(reason)).Inc()
}

func (r *Recorder) ObserveExit(reason domain.ExitReason) {
	r.exits.WithLabelValues(string(reason)).Inc()
}

func (r *Recorder) ObserveAPICost(costUSD float64) {
	if costUSD > 0 {
		r.apiCost.Add(costUSD)
	}
}

// Handler serves the registry in the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics.Serve: %w", err)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveCycle(domain.CycleSummary) {}
func (Nop) ObserveTrade(domain.Side, float64) {}
func (Nop) ObserveSkip(domain.SkipReason) {}
func (Nop) ObserveExit(domain.ExitReason) {}
func (Nop) ObserveAPICost(float64) {}
