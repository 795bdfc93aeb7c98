package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polyweather/internal/adapters/metrics"
	"github.com/alejandrodnm/polyweather/internal/adapters/notify"
	"github.com/alejandrodnm/polyweather/internal/adapters/paper"
	"github.com/alejandrodnm/polyweather/internal/adapters/sidecar"
	"github.com/alejandrodnm/polyweather/internal/application/engine"
	"github.com/alejandrodnm/polyweather/internal/application/scheduler"
	"github.com/alejandrodnm/polyweather/internal/calibration"
	"github.com/alejandrodnm/polyweather/internal/classify"
	"github.com/alejandrodnm/polyweather/internal/ports"
	"github.com/spf13/cobra"
)

func (a *app) runCmd() *cobra.Command {
	var once, table bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run decision cycles until stopped, max_cycles or death",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), once, table)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run one cycle and exit")
	cmd.Flags().BoolVar(&table, "table", false, "print trades and exits after every cycle")
	return cmd
}

func (a *app) run(ctx context.Context, once, table bool) error {
	cfg := a.cfg
	slog.Info("polyweather starting",
		"mode", cfg.Mode,
		"once", once,
		"dsn", cfg.Storage.DSN,
		"sidecar", cfg.API.SidecarURL,
		"interval_high", cfg.Cycle.IntervalHigh,
		"interval_low", cfg.Cycle.IntervalLow,
	)

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	notifier := notify.NewConsole(table)
	acct := newAccountant(cfg, store, notifier)
	if _, err := acct.EnsureSeed(ctx); err != nil {
		return err
	}

	side := newSidecar(cfg)
	var executor ports.Executor = paper.NewExecutor()
	if cfg.Live() {
		if err := side.Health(ctx); err != nil {
			return fmt.Errorf("live mode needs a healthy sidecar: %w", err)
		}
		executor = sidecar.NewExecutor(side)
	}

	recorder := metrics.NewRecorder()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := recorder.Serve(ctx, cfg.Metrics.Addr); err != nil {
				slog.Error("metrics server failed", "err", err)
			}
		}()
	}

	if !once {
		sched := scheduler.New(ctx)
		calib := calibration.NewService(store, side, calibrationConfig(cfg))
		if err := sched.Register("calibration", cfg.Calibration.Schedule, calib.Run); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	engCfg := engineConfig(cfg, side.Provider())
	if once {
		engCfg.MaxCycles = 1
	}
	market := newPolymarket(cfg)
	eng := engine.New(engCfg, engine.Deps{
		Markets:    market,
		Quotes:     market,
		Forecast:   side,
		Analyst:    side,
		Executor:   executor,
		Store:      store,
		Accountant: acct,
		Classifier: classify.New(nil),
		Estimator:  newEstimator(cfg),
		Detector:   newDetector(cfg),
		Manager:    newManager(cfg),
		Notifier:   notifier,
		Metrics:    recorder,
	})

	if err := eng.Run(ctx); err != nil {
		return err
	}
	slog.Info("polyweather stopped cleanly")
	return nil
}
