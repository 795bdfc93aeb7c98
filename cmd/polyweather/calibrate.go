package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alejandrodnm/polyweather/internal/adapters/notify"
	"github.com/alejandrodnm/polyweather/internal/calibration"
	"github.com/spf13/cobra"
)

func (a *app) calibrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate",
		Short: "Collect observed highs and refit the per-city calibration now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.calibrate(cmd.Context())
		},
	}
}

func (a *app) calibrate(ctx context.Context) error {
	store, err := openStore(a.cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	svc := calibration.NewService(store, newSidecar(a.cfg), calibrationConfig(a.cfg))
	collected, err := svc.CollectActuals(ctx)
	if err != nil {
		return err
	}
	params, err := svc.Recompute(ctx)
	if err != nil {
		return err
	}
	slog.Info("calibration refreshed", "actuals_collected", collected, "cities", len(params))
	notify.NewConsoleWriter(os.Stdout, true).PrintCalibrations(params)
	return nil
}
