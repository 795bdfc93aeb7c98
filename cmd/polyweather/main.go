package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polyweather/config"
	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/spf13/cobra"
)

// defaultDeathExitCode is used when the config could not be loaded.
const defaultDeathExitCode = 42

// app carries the persistent flags and the loaded config to subcommands.
type app struct {
	configPath string
	verbose    bool
	format     string
	cfg        *config.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{}
	err := a.rootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrSolvencyBreach) {
		code := defaultDeathExitCode
		if a.cfg != nil {
			code = a.cfg.Accounting.DeathExitCode
		}
		// Not restartable: a supervisor must not bring a dead bankroll back.
		slog.Error("agent died", "err", err, "exit_code", code)
		cancel()
		os.Exit(code)
	}
	slog.Error("polyweather exited with error", "err", err)
	cancel()
	os.Exit(1)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "polyweather",
		Short: "Weather prediction-market trading agent with a survival constraint",
		Long: `polyweather estimates daily-high temperature distributions from forecast
ensembles, trades Polymarket buckets whose price disagrees with the model and
stops for good the moment its bankroll is gone.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.verbose {
				cfg.Log.Level = "debug"
			}
			if a.format != "" {
				cfg.Log.Format = a.format
			}
			setupLogger(cfg.Log)
			a.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "config/config.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "set log level to debug")
	root.PersistentFlags().StringVar(&a.format, "format", "", "log format: text|json (overrides config)")

	root.AddCommand(a.runCmd(), a.reportCmd(), a.calibrateCmd(), a.migrateCmd())
	return root
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
