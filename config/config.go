// Package config loads the polyweather settings from YAML, an optional .env
// file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration.
type Config struct {
	Mode        string            `yaml:"mode" default:"paper" validate:"oneof=paper live"`
	Bankroll    BankrollConfig    `yaml:"bankroll"`
	Cycle       CycleConfig       `yaml:"cycle"`
	Estimator   EstimatorConfig   `yaml:"estimator"`
	Edge        EdgeConfig        `yaml:"edge"`
	Sizing      SizingConfig      `yaml:"sizing"`
	Positions   PositionsConfig   `yaml:"positions"`
	Accounting  AccountingConfig  `yaml:"accounting"`
	Calibration CalibrationConfig `yaml:"calibration"`
	API         APIConfig         `yaml:"api"`
	Markets     MarketsConfig     `yaml:"markets"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// BankrollConfig seeds the ledger on first start.
type BankrollConfig struct {
	Initial float64 `yaml:"initial" default:"50" validate:"gt=0"`
}

// CycleConfig controls the decision loop.
type CycleConfig struct {
	IntervalHigh         time.Duration `yaml:"interval_high" default:"10m" validate:"gt=0"`
	IntervalLow          time.Duration `yaml:"interval_low" default:"30m" validate:"gt=0"`
	LowBankrollThreshold float64       `yaml:"low_bankroll_threshold" default:"200" validate:"gte=0"`
	MaxCycles            int           `yaml:"max_cycles" validate:"gte=0"` // 0 = unlimited
	Workers              int           `yaml:"workers" validate:"gte=0"`    // 0 = NumCPU*2
	MaxAPICost           float64       `yaml:"max_api_cost" default:"0.50" validate:"gte=0"`
	ReviewWeather        bool          `yaml:"review_weather"` // also send weather markets to the analyst
}

// EstimatorConfig is the bucket grid and spread correction.
type EstimatorConfig struct {
	BucketMin     float64 `yaml:"bucket_min" default:"-40"`
	BucketMax     float64 `yaml:"bucket_max" default:"130" validate:"gtfield=BucketMin"`
	BucketWidth   float64 `yaml:"bucket_width" default:"2" validate:"gt=0"`
	SpreadFactor  float64 `yaml:"spread_factor" default:"1.15" validate:"gt=0"`
	MinKDEMembers int     `yaml:"min_kde_members" default:"5" validate:"gte=2"`
}

// EdgeConfig holds the detector thresholds.
type EdgeConfig struct {
	MinEdge            float64 `yaml:"min_edge" default:"0.08" validate:"gte=0,lt=1"`
	MinConfidence      float64 `yaml:"min_confidence" default:"0.5" validate:"gte=0,lte=1"`
	MinEnsembleMembers int     `yaml:"min_ensemble_members" default:"5" validate:"gte=1"`
	AllowDegenerate    bool    `yaml:"allow_degenerate"`
}

// SizingConfig holds the Kelly fraction and the caps, as bankroll fractions.
type SizingConfig struct {
	KellyMultiplier     float64 `yaml:"kelly_multiplier" default:"0.5" validate:"gt=0,lte=1"`
	MaxPositionFraction float64 `yaml:"max_position_fraction" default:"0.06" validate:"gt=0,lte=1"`
	MaxTotalExposure    float64 `yaml:"max_total_exposure" default:"0.40" validate:"gt=0,lte=1"`
	MaxGroupExposure    float64 `yaml:"max_group_exposure" default:"0.15" validate:"gte=0,lte=1"`
	MinTradeUSD         float64 `yaml:"min_trade_usd" default:"1" validate:"gte=0"`
	TimeDecay           bool    `yaml:"time_decay" default:"true"`
}

// PositionsConfig holds the exit rules and the drawdown breaker.
type PositionsConfig struct {
	StopLoss                float64             `yaml:"stop_loss" default:"0.15" validate:"gt=0,lte=1"`
	TakeProfit              float64             `yaml:"take_profit" default:"0.90" validate:"gt=0,lte=1"`
	MinExitEdge             float64             `yaml:"min_exit_edge" default:"0.02" validate:"gte=0,lt=1"`
	DrawdownThreshold       float64             `yaml:"drawdown_threshold" default:"0.30" validate:"gt=0,lte=1"`
	DrawdownReduction       float64             `yaml:"drawdown_reduction" default:"0.5" validate:"gt=0,lte=1"`
	HoldWeatherToResolution bool                `yaml:"hold_weather_to_resolution"`
	Groups                  map[string][]string `yaml:"groups"` // nil = built-in geographic groups
}

// AccountingConfig controls the fatal path.
type AccountingConfig struct {
	DeathExitCode int `yaml:"death_exit_code" default:"42" validate:"gt=1,lt=256"`
	RecentCycles  int `yaml:"recent_cycles" default:"10" validate:"gt=0"`
}

// CalibrationConfig controls the per-city bias and spread fit.
type CalibrationConfig struct {
	Schedule        string  `yaml:"schedule" default:"0 6 * * *" validate:"required"`
	NWSWeight       float64 `yaml:"nws_weight" default:"0.85" validate:"gte=0,lte=1"`
	MinObservations int     `yaml:"min_observations" default:"5" validate:"gte=1"`
}

// APIConfig holds the base URLs of Polymarket and the sidecar.
type APIConfig struct {
	CLOBBase     string        `yaml:"clob_base" default:"https://clob.polymarket.com" validate:"url"`
	GammaBase    string        `yaml:"gamma_base" default:"https://gamma-api.polymarket.com" validate:"url"`
	SidecarURL   string        `yaml:"sidecar_url" default:"http://127.0.0.1:9090" validate:"url"`
	SidecarRate  float64       `yaml:"sidecar_rate" default:"10" validate:"gt=0"` // requests per second
	Timeout      time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
	AnalystModel string        `yaml:"analyst_model" default:"claude-sonnet"`
}

// MarketsConfig filters the generic universe. Weather markets bypass the
// volume floors.
type MarketsConfig struct {
	MinLiquidity float64 `yaml:"min_liquidity" default:"500" validate:"gte=0"`
	MinVolume    float64 `yaml:"min_volume" default:"1000" validate:"gte=0"`
	MaxMarkets   int     `yaml:"max_markets" default:"200" validate:"gte=0"`
	WeatherTagID int     `yaml:"weather_tag_id" default:"84" validate:"gte=0"`
}

// StorageConfig controls where the ledger is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn" default:"polyweather.db" validate:"required"` // SQLite file, or ":memory:"
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

var validate = validator.New()

// Load reads the YAML file, applies defaults to missing keys, then .env and
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes. Empty input yields the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("config.Parse: defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Parse: parse YAML: %w", err)
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config.Validate: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("config.Validate: %s", strings.Join(msgs, "; "))
}

// Live reports whether orders go to the real executor.
func (c *Config) Live() bool {
	return c.Mode == "live"
}

// applyEnvOverrides overrides values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYWEATHER_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("POLYWEATHER_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SIDECAR_URL"); v != "" {
		cfg.API.SidecarURL = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}
