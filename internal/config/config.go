// Package config defines all configuration for the oracle-dislocation taker.
// AppConfig is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via HIP3_* environment variables. Per the
// core's design, components downstream of this package only ever see an
// already-populated AppConfig value - they never touch the filesystem.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is the top-level configuration, maps directly to the YAML file.
type AppConfig struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	API       APIConfig       `mapstructure:"api"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Exit      ExitConfig      `mapstructure:"exit"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// WalletConfig holds the Ethereum wallet used to sign actions.
type WalletConfig struct {
	PrivateKey   string `mapstructure:"private_key"`
	VaultAddress string `mapstructure:"vault_address"`
	ChainSource  string `mapstructure:"chain_source"` // "a" (mainnet) or "b" (testnet)
}

// APIConfig holds venue endpoints and the subscription set that must be
// acknowledged before trading is considered ready.
type APIConfig struct {
	WSURL                 string   `mapstructure:"ws_url"`
	MarketListURL         string   `mapstructure:"market_list_url"`
	RequiredSubscriptions []string `mapstructure:"required_subscriptions"`
}

// DetectorConfig tunes the edge model.
//
//   - TakerFeeBps:     base taker fee before the HIP-3 multiplier.
//   - FeeMultiplier:   HIP-3 default 2x.
//   - SlippageBps:     assumed execution slippage.
//   - MinEdgeBps:      minimum required edge over cost.
//   - SizingAlpha:     fraction of book-top size to target.
//   - MaxNotionalUSD:  cap on a single signal's notional.
type DetectorConfig struct {
	TakerFeeBps    float64 `mapstructure:"taker_fee_bps"`
	FeeMultiplier  float64 `mapstructure:"fee_multiplier"`
	SlippageBps    float64 `mapstructure:"slippage_bps"`
	MinEdgeBps     float64 `mapstructure:"min_edge_bps"`
	SizingAlpha    float64 `mapstructure:"sizing_alpha"`
	MaxNotionalUSD float64 `mapstructure:"max_notional_usd"`
}

// RiskConfig sets the gate thresholds and hard-stop triggers.
type RiskConfig struct {
	OracleFreshWindowMs       int64         `mapstructure:"oracle_fresh_window_ms"`
	MarkMidDivergenceBps      float64       `mapstructure:"mark_mid_divergence_bps"`
	MarkMidEmergencyBps       float64       `mapstructure:"mark_mid_emergency_bps"`
	SpreadShockCeilingBps     float64       `mapstructure:"spread_shock_ceiling_bps"`
	OiCapUSD                  float64       `mapstructure:"oi_cap_usd"`
	LiquidationBufferFloorPct float64       `mapstructure:"liquidation_buffer_floor_pct"`
	MaxPositionPerMarketUSD   float64       `mapstructure:"max_position_per_market_usd"`
	MaxPositionTotalUSD       float64       `mapstructure:"max_position_total_usd"`
	ConsecutiveRejectLimit    int           `mapstructure:"consecutive_reject_limit"`
	RejectWindow              time.Duration `mapstructure:"reject_window"`
	TimeoutWindow             time.Duration `mapstructure:"timeout_window"`
	ConsecutiveTimeoutLimit   int           `mapstructure:"consecutive_timeout_limit"`
	MaxDrawdownUSD            float64       `mapstructure:"max_drawdown_usd"`
}

// ExecutionConfig tunes the scheduler, nonce manager, and duplex session.
type ExecutionConfig struct {
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	MaxBatchSize        int           `mapstructure:"max_batch_size"`
	InflightSoftCeiling int           `mapstructure:"inflight_soft_ceiling"`
	ActionTimeout       time.Duration `mapstructure:"action_timeout"`
	NonceWindow         time.Duration `mapstructure:"nonce_window"`
	NewOrdersPerSec     float64       `mapstructure:"new_orders_per_sec"`
	NewOrdersBurst      int           `mapstructure:"new_orders_burst"`
}

// ExitConfig tunes the exit supervisor.
type ExitConfig struct {
	TimeStop           time.Duration `mapstructure:"time_stop"`
	MarkRegressionBps  float64       `mapstructure:"mark_regression_bps"`
	LossCutStreak      int           `mapstructure:"loss_cut_streak"`
	ProfitTakeStreak   int           `mapstructure:"profit_take_streak"`
	FlattenSlippageBps float64       `mapstructure:"flatten_slippage_bps"`
	FlattenOnShutdown  bool          `mapstructure:"flatten_on_shutdown"`
}

// StoreConfig sets where the signal archive writes data.
type StoreConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	ChannelDepth int    `mapstructure:"channel_depth"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the web dashboard collaborator.
type DashboardConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	UpdateInterval time.Duration `mapstructure:"update_interval"`
	MaxConnections int           `mapstructure:"max_connections"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
}

// AuthEnabled reports whether the dashboard requires basic auth.
func (c DashboardConfig) AuthEnabled() bool {
	return c.Username != "" && c.Password != ""
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: HIP3_PRIVATE_KEY, HIP3_VAULT_ADDRESS.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("dashboard.update_interval", 100*time.Millisecond)
	v.SetDefault("dashboard.max_connections", 10)
	v.SetEnvPrefix("HIP3")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("HIP3_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if vault := os.Getenv("HIP3_VAULT_ADDRESS"); vault != "" {
		cfg.Wallet.VaultAddress = vault
	}
	if os.Getenv("HIP3_DRY_RUN") == "true" || os.Getenv("HIP3_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *AppConfig) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set HIP3_PRIVATE_KEY)")
	}
	if c.Wallet.ChainSource != "a" && c.Wallet.ChainSource != "b" {
		return fmt.Errorf("wallet.chain_source must be \"a\" (mainnet) or \"b\" (testnet)")
	}
	if c.API.WSURL == "" {
		return fmt.Errorf("api.ws_url is required")
	}
	if c.Detector.MinEdgeBps < 0 {
		return fmt.Errorf("detector.min_edge_bps must be >= 0")
	}
	if c.Risk.MaxPositionPerMarketUSD <= 0 {
		return fmt.Errorf("risk.max_position_per_market_usd must be > 0")
	}
	if c.Risk.MaxPositionTotalUSD <= 0 {
		return fmt.Errorf("risk.max_position_total_usd must be > 0")
	}
	if c.Execution.MaxBatchSize <= 0 {
		return fmt.Errorf("execution.max_batch_size must be > 0")
	}
	if c.Exit.TimeStop <= 0 {
		return fmt.Errorf("exit.time_stop must be > 0")
	}
	return nil
}
