// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

// Config holds application settings loaded from config.json.
type Config struct {
	License            string `mapstructure:"license"`
	KeygenAccountID    string `mapstructure:"keygen_account_id"`
	KeygenProductToken string `mapstructure:"keygen_product_token"`
	KeygenProductID    string `mapstructure:"keygen_product_id"`

	RPCURL          string   `mapstructure:"rpc_url"`
	RPCFallbackURLs []string `mapstructure:"rpc_fallback_urls"`
	PrivateKey      string   `mapstructure:"private_key"`
	MarketAPIURL    string   `mapstructure:"market_api_url"`
	TradeAPIURL     string   `mapstructure:"trade_api_url"`

	// Candidate selection
	MinMarketCap   float64 `mapstructure:"min_market_cap"`
	MaxCandidates  int     `mapstructure:"max_candidates"`
	RequireSocials bool    `mapstructure:"require_socials"`

	// Acquisition
	MinBuyAmount           float64 `mapstructure:"min_buy_amount"`
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
	Slippage               float64 `mapstructure:"slippage"`
	PriorityFee            float64 `mapstructure:"priority_fee"`
	Pool                   string  `mapstructure:"pool"`

	// Exit rules
	RapidRiseTrigger     float64   `mapstructure:"rapid_rise_trigger"`
	PriceDeclineTrigger  float64   `mapstructure:"price_decline_trigger"`
	ProfitTakingLevels   []float64 `mapstructure:"profit_taking_levels"`
	ReversalMinGain      float64   `mapstructure:"reversal_min_gain"`
	StopLossTrigger      float64   `mapstructure:"stop_loss_trigger"`
	HoldWalletTokens     bool      `mapstructure:"hold_wallet_tokens"`
	PriceHistoryCapacity int       `mapstructure:"price_history_capacity"`

	// Scheduling
	AcquireInterval    time.Duration `mapstructure:"-"`
	AcquireIntervalMS  int           `mapstructure:"acquire_interval_ms"`
	MonitorInterval    time.Duration `mapstructure:"-"`
	MonitorIntervalMS  int           `mapstructure:"monitor_interval_ms"`
	ShutdownTimeout    time.Duration `mapstructure:"-"`
	ShutdownTimeoutMS  int           `mapstructure:"shutdown_timeout_ms"`
	FetchWorkers       int           `mapstructure:"fetch_workers"`
	RequestsPerSecond  int           `mapstructure:"requests_per_second"`
	SellRetryInitial   time.Duration `mapstructure:"-"`
	SellRetryInitialMS int           `mapstructure:"sell_retry_initial_ms"`
	SellRetryMax       time.Duration `mapstructure:"-"`
	SellRetryMaxMS     int           `mapstructure:"sell_retry_max_ms"`
	MaxSellRetries     int           `mapstructure:"max_sell_retries"`
	ConfirmTimeout     time.Duration `mapstructure:"-"`
	ConfirmTimeoutMS   int           `mapstructure:"confirm_timeout_ms"`

	// Outputs
	StorageDSN   string `mapstructure:"storage_dsn"`
	TradeLogDir  string `mapstructure:"trade_log_dir"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
	StatusTable  bool   `mapstructure:"status_table"`
	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

const (
	DefaultRPCURL        = "https://api.mainnet-beta.solana.com"
	DefaultMarketAPIURL  = "https://frontend-api.pump.fun"
	DefaultTradeAPIURL   = "https://pumpportal.fun/api/trade-local"
	DefaultMinMarketCap  = 20000
	DefaultMaxCandidates = 3
	DefaultMinBuyAmount  = 0.1
	DefaultMaxPositions  = 3
	DefaultSlippage      = 10
	DefaultPriorityFee   = 0.005
	DefaultPool          = "pump"

	DefaultRapidRiseTrigger    = 100
	DefaultPriceDeclineTrigger = 10
	DefaultReversalMinGain     = 50
	DefaultHistoryCapacity     = 20

	DefaultAcquireIntervalMS  = 30000
	DefaultMonitorIntervalMS  = 5000
	DefaultShutdownTimeoutMS  = 30000
	DefaultFetchWorkers       = 8
	DefaultRequestsPerSecond  = 10
	DefaultSellRetryInitialMS = 5000
	DefaultSellRetryMaxMS     = 120000
	DefaultMaxSellRetries     = 10
	DefaultConfirmTimeoutMS   = 30000
)

// DefaultProfitTakingLevels is the take-profit ladder in percent.
var DefaultProfitTakingLevels = []float64{200, 300, 400}

const envPrefix = "PUMPBOT"

// Load reads configuration from the specified file path and performs validation.
// An empty path loads defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"rpc_url":                  DefaultRPCURL,
		"market_api_url":           DefaultMarketAPIURL,
		"trade_api_url":            DefaultTradeAPIURL,
		"min_market_cap":           DefaultMinMarketCap,
		"max_candidates":           DefaultMaxCandidates,
		"require_socials":          true,
		"min_buy_amount":           DefaultMinBuyAmount,
		"max_concurrent_positions": DefaultMaxPositions,
		"slippage":                 DefaultSlippage,
		"priority_fee":             DefaultPriorityFee,
		"pool":                     DefaultPool,
		"rapid_rise_trigger":       DefaultRapidRiseTrigger,
		"price_decline_trigger":    DefaultPriceDeclineTrigger,
		"profit_taking_levels":     DefaultProfitTakingLevels,
		"reversal_min_gain":        DefaultReversalMinGain,
		"price_history_capacity":   DefaultHistoryCapacity,
		"acquire_interval_ms":      DefaultAcquireIntervalMS,
		"monitor_interval_ms":      DefaultMonitorIntervalMS,
		"shutdown_timeout_ms":      DefaultShutdownTimeoutMS,
		"fetch_workers":            DefaultFetchWorkers,
		"requests_per_second":      DefaultRequestsPerSecond,
		"sell_retry_initial_ms":    DefaultSellRetryInitialMS,
		"sell_retry_max_ms":        DefaultSellRetryMaxMS,
		"max_sell_retries":         DefaultMaxSellRetries,
		"confirm_timeout_ms":       DefaultConfirmTimeoutMS,
		"trade_log_dir":            "logs",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	// AutomaticEnv only applies to keys viper already knows about.
	if key := v.GetString("private_key"); key != "" {
		cfg.PrivateKey = key
	}
	if lic := v.GetString("license"); lic != "" {
		cfg.License = lic
	}

	// Convert ms to Duration
	cfg.AcquireInterval = time.Duration(cfg.AcquireIntervalMS) * time.Millisecond
	cfg.MonitorInterval = time.Duration(cfg.MonitorIntervalMS) * time.Millisecond
	cfg.ShutdownTimeout = time.Duration(cfg.ShutdownTimeoutMS) * time.Millisecond
	cfg.SellRetryInitial = time.Duration(cfg.SellRetryInitialMS) * time.Millisecond
	cfg.SellRetryMax = time.Duration(cfg.SellRetryMaxMS) * time.Millisecond
	cfg.ConfirmTimeout = time.Duration(cfg.ConfirmTimeoutMS) * time.Millisecond

	sort.Float64s(cfg.ProfitTakingLevels)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks required fields and numeric ranges.
func (c *Config) validate() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("%w: private_key is required: %w", domain.ErrConfig, domain.ErrMissingCredentials)
	}
	for name, raw := range map[string]string{
		"rpc_url":        c.RPCURL,
		"market_api_url": c.MarketAPIURL,
		"trade_api_url":  c.TradeAPIURL,
	} {
		if err := validateURL(raw, "http"); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrConfig, name, err)
		}
	}
	for _, raw := range c.RPCFallbackURLs {
		if err := validateURL(raw, "http"); err != nil {
			return fmt.Errorf("%w: rpc_fallback_urls: %v", domain.ErrConfig, err)
		}
	}
	if err := c.validateNumericParams(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	return nil
}

func (c *Config) validateNumericParams() error {
	switch {
	case c.MinMarketCap < 0:
		return fmt.Errorf("invalid min_market_cap")
	case c.MaxCandidates <= 0:
		return fmt.Errorf("invalid max_candidates")
	case c.MinBuyAmount <= 0:
		return fmt.Errorf("invalid min_buy_amount")
	case c.MaxConcurrentPositions <= 0:
		return fmt.Errorf("invalid max_concurrent_positions")
	case c.RapidRiseTrigger <= 0:
		return fmt.Errorf("invalid rapid_rise_trigger")
	case c.PriceDeclineTrigger <= 0 || c.PriceDeclineTrigger >= 100:
		return fmt.Errorf("invalid price_decline_trigger")
	case c.StopLossTrigger < 0 || c.StopLossTrigger >= 100:
		return fmt.Errorf("invalid stop_loss_trigger")
	case c.PriceHistoryCapacity < 3:
		return fmt.Errorf("price_history_capacity must be at least 3")
	case c.AcquireInterval <= 0:
		return fmt.Errorf("invalid acquire_interval_ms")
	case c.MonitorInterval <= 0:
		return fmt.Errorf("invalid monitor_interval_ms")
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("invalid shutdown_timeout_ms")
	case c.FetchWorkers <= 0:
		return fmt.Errorf("invalid fetch_workers")
	case c.RequestsPerSecond <= 0:
		return fmt.Errorf("invalid requests_per_second")
	case c.SellRetryInitial <= 0 || c.SellRetryMax < c.SellRetryInitial:
		return fmt.Errorf("invalid sell retry interval")
	case c.MaxSellRetries < 0:
		return fmt.Errorf("invalid max_sell_retries")
	case c.ConfirmTimeout <= 0:
		return fmt.Errorf("invalid confirm_timeout_ms")
	case c.Slippage < 0 || c.PriorityFee < 0:
		return fmt.Errorf("invalid slippage or priority_fee")
	}
	for _, level := range c.ProfitTakingLevels {
		if level <= 0 {
			return fmt.Errorf("profit_taking_levels must be positive")
		}
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return fmt.Errorf("invalid URL protocol")
	}
	return nil
}

// KeygenConfigured reports whether Keygen.sh license validation is enabled.
func (c *Config) KeygenConfigured() bool {
	return c.KeygenAccountID != "" && c.KeygenProductToken != "" && c.KeygenProductID != ""
}

// RPCURLs returns the primary RPC endpoint followed by the fallbacks.
func (c *Config) RPCURLs() []string {
	return append([]string{c.RPCURL}, c.RPCFallbackURLs...)
}

// MaskedRPC returns the RPC URL with its query string stripped for logging.
func (c *Config) MaskedRPC() string {
	parsed, err := url.Parse(c.RPCURL)
	if err != nil {
		return "invalid"
	}
	if parsed.RawQuery != "" {
		parsed.RawQuery = "api-key=***"
	}
	return parsed.String()
}
