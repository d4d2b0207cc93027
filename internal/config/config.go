// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig                 `mapstructure:"app"`
	Exchanges map[string]ExchangeConfig `mapstructure:"exchanges"`
	Detector  DetectorConfig            `mapstructure:"detector"`
	Risk      RiskConfig                `mapstructure:"risk"`
	Execution ExecutionConfig           `mapstructure:"execution"`
	Transfers TransferConfig            `mapstructure:"transfers"`
	Telemetry TelemetryConfig           `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	HealthPort  int    `mapstructure:"health_port"`
}

// ExchangeConfig holds per-venue connection and fee parameters.
type ExchangeConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	WebSocketURL     string        `mapstructure:"websocket_url"`
	APIKey           string        `mapstructure:"api_key"`
	APISecret        string        `mapstructure:"api_secret"`
	Pairs            []string      `mapstructure:"pairs"`
	TradingFee       float64       `mapstructure:"trading_fee"`    // fraction, e.g. 0.001 = 10 bps
	WithdrawalFee    float64       `mapstructure:"withdrawal_fee"` // fraction charged on cross-venue transfers
	MinOrderSize     float64       `mapstructure:"min_order_size"`
	MaxOrderSize     float64       `mapstructure:"max_order_size"`
	RequestsPerSec   float64       `mapstructure:"requests_per_sec"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxLimiterDelay  time.Duration `mapstructure:"max_limiter_delay"`
	Simulated        bool          `mapstructure:"simulated"`
}

// TradingFeeDecimal returns the trading fee as decimal.Decimal.
func (c *ExchangeConfig) TradingFeeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TradingFee)
}

// WithdrawalFeeDecimal returns the withdrawal fee as decimal.Decimal.
func (c *ExchangeConfig) WithdrawalFeeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.WithdrawalFee)
}

// MinOrderSizeDecimal returns the minimum order size as decimal.Decimal.
func (c *ExchangeConfig) MinOrderSizeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinOrderSize)
}

// MaxOrderSizeDecimal returns the maximum order size as decimal.Decimal.
func (c *ExchangeConfig) MaxOrderSizeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxOrderSize)
}

// DetectorConfig tunes the snapshot and cycle-detection loop.
type DetectorConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	SnapshotTimeout  time.Duration `mapstructure:"snapshot_timeout"`
	StalenessWindow  time.Duration `mapstructure:"staleness_window"`
	MaxStaleFraction float64       `mapstructure:"max_stale_fraction"`
	Epsilon          float64       `mapstructure:"epsilon"` // weight-sum tolerance for cycle acceptance
}

// RiskConfig tunes plan validation and sizing.
type RiskConfig struct {
	MinProfitFraction float64 `mapstructure:"min_profit_fraction"`
	SafetyMarginBps   float64 `mapstructure:"safety_margin_bps"`
	MaxSlippageBps    float64 `mapstructure:"max_slippage_bps"`
	ExposureFraction  float64 `mapstructure:"exposure_fraction"`
}

// MinProfitDecimal returns the minimum profit threshold as decimal.Decimal.
func (c *RiskConfig) MinProfitDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfitFraction)
}

// ExposureFractionDecimal returns the exposure cap as decimal.Decimal.
func (c *RiskConfig) ExposureFractionDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.ExposureFraction)
}

// ExecutionConfig tunes order submission and monitoring.
type ExecutionConfig struct {
	OrderTimeout       time.Duration `mapstructure:"order_timeout"`
	StatusPollInterval time.Duration `mapstructure:"status_poll_interval"`
	DryRun             bool          `mapstructure:"dry_run"`
}

// TransferConfig controls cross-venue transfer edges in the price graph.
type TransferConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CYCLEARB")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Config file is optional; env vars alone can carry a full config.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "CYCLEARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "CYCLEARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "CYCLEARB_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.health_port", "CYCLEARB_HEALTH_PORT")

	// Detector
	v.BindEnv("detector.poll_interval", "CYCLEARB_POLL_INTERVAL")
	v.BindEnv("detector.staleness_window", "CYCLEARB_STALENESS_WINDOW")
	v.BindEnv("detector.epsilon", "CYCLEARB_EPSILON")

	// Risk
	v.BindEnv("risk.min_profit_fraction", "CYCLEARB_MIN_PROFIT_FRACTION")
	v.BindEnv("risk.max_slippage_bps", "CYCLEARB_MAX_SLIPPAGE_BPS")
	v.BindEnv("risk.exposure_fraction", "CYCLEARB_EXPOSURE_FRACTION")

	// Execution
	v.BindEnv("execution.order_timeout", "CYCLEARB_ORDER_TIMEOUT")
	v.BindEnv("execution.dry_run", "CYCLEARB_DRY_RUN", "DRY_RUN")

	// Telemetry
	v.BindEnv("telemetry.enabled", "CYCLEARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "CYCLEARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.trace_provider", "CYCLEARB_TRACE_PROVIDER", "TRACE_PROVIDER")
	v.BindEnv("telemetry.otlp_endpoint", "CYCLEARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "cyclearb")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8081)

	// Detector defaults
	v.SetDefault("detector.poll_interval", "2s")
	v.SetDefault("detector.snapshot_timeout", "3s")
	v.SetDefault("detector.staleness_window", "5s")
	v.SetDefault("detector.max_stale_fraction", 0.5)
	v.SetDefault("detector.epsilon", 1e-6)

	// Risk defaults
	v.SetDefault("risk.min_profit_fraction", 0.01)
	v.SetDefault("risk.safety_margin_bps", 5)
	v.SetDefault("risk.max_slippage_bps", 10)
	v.SetDefault("risk.exposure_fraction", 0.25)

	// Execution defaults
	v.SetDefault("execution.order_timeout", "10s")
	v.SetDefault("execution.status_poll_interval", "250ms")
	v.SetDefault("execution.dry_run", true)

	// Transfer defaults
	v.SetDefault("transfers.enabled", true)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "cyclearb")
	v.SetDefault("telemetry.trace_provider", "EMPTY_PROVIDER")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("at least one exchange must be configured")
	}
	for name, ex := range c.Exchanges {
		if !ex.Simulated && ex.BaseURL == "" {
			return fmt.Errorf("exchanges.%s.base_url is required", name)
		}
		if len(ex.Pairs) == 0 {
			return fmt.Errorf("exchanges.%s.pairs cannot be empty", name)
		}
		if ex.TradingFee < 0 || ex.TradingFee >= 1 {
			return fmt.Errorf("exchanges.%s.trading_fee must be in [0,1)", name)
		}
		if ex.WithdrawalFee < 0 || ex.WithdrawalFee >= 1 {
			return fmt.Errorf("exchanges.%s.withdrawal_fee must be in [0,1)", name)
		}
		if ex.MinOrderSize < 0 {
			return fmt.Errorf("exchanges.%s.min_order_size cannot be negative", name)
		}
		if ex.MaxOrderSize > 0 && ex.MaxOrderSize < ex.MinOrderSize {
			return fmt.Errorf("exchanges.%s.max_order_size below min_order_size", name)
		}
		if ex.RequestsPerSec <= 0 {
			return fmt.Errorf("exchanges.%s.requests_per_sec must be positive", name)
		}
	}
	if c.Detector.PollInterval <= 0 {
		return fmt.Errorf("detector.poll_interval must be positive")
	}
	if c.Detector.Epsilon <= 0 {
		return fmt.Errorf("detector.epsilon must be positive")
	}
	if c.Detector.MaxStaleFraction < 0 || c.Detector.MaxStaleFraction > 1 {
		return fmt.Errorf("detector.max_stale_fraction must be in [0,1]")
	}
	if c.Risk.MinProfitFraction < 0 {
		return fmt.Errorf("risk.min_profit_fraction cannot be negative")
	}
	if c.Risk.ExposureFraction <= 0 || c.Risk.ExposureFraction > 1 {
		return fmt.Errorf("risk.exposure_fraction must be in (0,1]")
	}
	if c.Execution.OrderTimeout <= 0 {
		return fmt.Errorf("execution.order_timeout must be positive")
	}
	return nil
}
