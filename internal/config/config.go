package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"collateral-oracle/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Ethereum EthereumConfig `mapstructure:"ethereum"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// EthereumConfig covers on-chain data access.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// OracleConfig declares the routing and risk configuration applied at
// startup by the configured owner.
type OracleConfig struct {
	Owner               string          `mapstructure:"owner"`
	MaxDeviationCapBps  int64           `mapstructure:"max_deviation_cap_bps"`
	DefaultDeviationBps int64           `mapstructure:"default_deviation_bps"`
	Feeds               []FeedConfig    `mapstructure:"feeds"`
	Vaults              []VaultConfig   `mapstructure:"vaults"`
	Wrappers            []WrapperConfig `mapstructure:"wrappers"`
}

// FeedConfig binds a plain token to its USD aggregator feed and risk config.
// MaxDeviationBps bounds the spot/twap divergence of any pool whose token0
// is this asset; zero means the default applies.
type FeedConfig struct {
	Asset                   string `mapstructure:"asset"`
	Aggregator              string `mapstructure:"aggregator"`
	LiquidationThresholdBps int64  `mapstructure:"liquidation_threshold_bps"`
	MaxDeviationBps         int64  `mapstructure:"max_deviation_bps"`
}

// VaultConfig declares one liquidity vault whose shares are priceable.
type VaultConfig struct {
	Address                 string `mapstructure:"address"`
	LiquidationThresholdBps int64  `mapstructure:"liquidation_threshold_bps"`
}

// WrapperConfig whitelists a wrapper asset type for position valuation.
type WrapperConfig struct {
	Address string `mapstructure:"address"`
}

// WatcherConfig governs the sampling cadence of the valuation watcher.
type WatcherConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "collateral-oracle")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("oracle.owner", "config")
	v.SetDefault("oracle.max_deviation_cap_bps", int64(1000))
	v.SetDefault("oracle.default_deviation_bps", int64(200))

	v.SetDefault("watcher.interval", "5m")
	v.SetDefault("watcher.align_to_bucket", true)
	v.SetDefault("watcher.advisory_lock_key", int64(0x6f72636c))
	v.SetDefault("watcher.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Watcher.Interval <= 0 {
		return fmt.Errorf("watcher.interval must be greater than zero")
	}
	if c.Oracle.Owner == "" {
		return fmt.Errorf("oracle.owner must be configured")
	}
	if c.Oracle.MaxDeviationCapBps <= 0 {
		return fmt.Errorf("oracle.max_deviation_cap_bps must be greater than zero")
	}
	if c.Oracle.DefaultDeviationBps <= 0 || c.Oracle.DefaultDeviationBps > c.Oracle.MaxDeviationCapBps {
		return fmt.Errorf("oracle.default_deviation_bps must be within (0, max_deviation_cap_bps]")
	}
	for i, feed := range c.Oracle.Feeds {
		if !common.IsHexAddress(feed.Asset) {
			return fmt.Errorf("oracle.feeds[%d].asset is not a hex address", i)
		}
		if !common.IsHexAddress(feed.Aggregator) {
			return fmt.Errorf("oracle.feeds[%d].aggregator is not a hex address", i)
		}
		if feed.MaxDeviationBps < 0 || feed.MaxDeviationBps > c.Oracle.MaxDeviationCapBps {
			return fmt.Errorf("oracle.feeds[%d].max_deviation_bps must be within [0, max_deviation_cap_bps]", i)
		}
	}
	for i, vault := range c.Oracle.Vaults {
		if !common.IsHexAddress(vault.Address) {
			return fmt.Errorf("oracle.vaults[%d].address is not a hex address", i)
		}
	}
	for i, wrapper := range c.Oracle.Wrappers {
		if !common.IsHexAddress(wrapper.Address) {
			return fmt.Errorf("oracle.wrappers[%d].address is not a hex address", i)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be configured")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be configured")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
