package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/alejandrodnm/polyweather/internal/adapters/notify"
	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/spf13/cobra"
)

func (a *app) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print bankroll, positions, recent cycles and calibration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.report(cmd.Context())
		},
	}
}

func (a *app) report(ctx context.Context) error {
	store, err := openStore(a.cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	console := notify.NewConsoleWriter(os.Stdout, true)
	status, err := newAccountant(a.cfg, store, nil).Status(ctx)
	if err != nil {
		return err
	}
	console.PrintStatus(status, a.cfg.Mode)

	params, err := store.Calibrations(ctx)
	if err != nil {
		return err
	}
	cities := make([]domain.CalibrationParams, 0, len(params))
	for _, p := range params {
		cities = append(cities, p)
	}
	sort.Slice(cities, func(i, j int) bool { return cities[i].City < cities[j].City })
	fmt.Println("\n  Calibration:")
	console.PrintCalibrations(cities)

	death, err := store.LatestDeathReport(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	return console.NotifyDeath(ctx, death)
}
