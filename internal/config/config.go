package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pump-dump-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Binance   BinanceConfig   `mapstructure:"binance"`
	Detection DetectionConfig `mapstructure:"detection"`
	Filters   FiltersConfig   `mapstructure:"filters"`
	Collector CollectorConfig `mapstructure:"collector"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN
// disables alert persistence entirely.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// BinanceConfig covers futures market data access.
type BinanceConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	SymbolRefresh  time.Duration `mapstructure:"symbol_refresh"`
}

// DetectionConfig holds the window→threshold maps and alert pacing.
// Window keys are integer seconds; thresholds are fractional returns
// (0.03 means 3%). Pump thresholds must be positive, dump negative.
type DetectionConfig struct {
	PumpWindows   map[string]float64 `mapstructure:"pump_windows"`
	DumpWindows   map[string]float64 `mapstructure:"dump_windows"`
	AlertCooldown time.Duration      `mapstructure:"alert_cooldown"`
	GracePeriod   time.Duration      `mapstructure:"grace_period"`
}

// FiltersConfig groups the confirmation filters.
type FiltersConfig struct {
	Volume       VolumeFilterConfig `mapstructure:"volume"`
	Spread       SpreadFilterConfig `mapstructure:"spread"`
	OpenInterest OIFilterConfig     `mapstructure:"open_interest"`
}

// VolumeFilterConfig gates alerts on traded quote volume.
type VolumeFilterConfig struct {
	WindowMin       int     `mapstructure:"window_min"`
	LookbackMin     int     `mapstructure:"lookback_min"`
	MinWindowVolume float64 `mapstructure:"min_5m_volume_usdt"`
	MinSpikeRatio   float64 `mapstructure:"min_spike_ratio"`
}

// SpreadFilterConfig gates alerts on order-book health.
type SpreadFilterConfig struct {
	MaxSpreadPct   float64       `mapstructure:"max_spread_pct"`
	DepthLimit     int           `mapstructure:"depth_limit"`
	MinBidNotional float64       `mapstructure:"min_bid_notional"`
	BookTTL        time.Duration `mapstructure:"book_ttl"`
}

// OIFilterConfig configures the open-interest context window.
type OIFilterConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// CollectorConfig tunes the background data collector.
type CollectorConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	RepollInterval time.Duration `mapstructure:"repoll_interval"`
	HotWindow      time.Duration `mapstructure:"hot_window"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	Channels        []string       `mapstructure:"channels"`
	DeliveryTimeout time.Duration  `mapstructure:"delivery_timeout"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram delivery channel.
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
	v.SetEnvPrefix("PUMPWATCHER")
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
	v.SetDefault("app.name", "pumpwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("binance.request_timeout", "10s")
	v.SetDefault("binance.reconnect_delay", "5s")
	v.SetDefault("binance.symbol_refresh", "1h")

	v.SetDefault("detection.pump_windows", map[string]float64{"60": 0.02, "300": 0.05})
	v.SetDefault("detection.dump_windows", map[string]float64{"60": -0.02, "300": -0.05})
	v.SetDefault("detection.alert_cooldown", "30m")
	v.SetDefault("detection.grace_period", "30s")

	v.SetDefault("filters.volume.window_min", 5)
	v.SetDefault("filters.volume.lookback_min", 60)
	v.SetDefault("filters.volume.min_5m_volume_usdt", 300000.0)
	v.SetDefault("filters.volume.min_spike_ratio", 3.0)

	v.SetDefault("filters.spread.max_spread_pct", 0.5)
	v.SetDefault("filters.spread.depth_limit", 5)
	v.SetDefault("filters.spread.min_bid_notional", 50000.0)
	v.SetDefault("filters.spread.book_ttl", "30s")

	v.SetDefault("filters.open_interest.window", "15m")

	v.SetDefault("collector.workers", 4)
	v.SetDefault("collector.queue_size", 512)
	v.SetDefault("collector.repoll_interval", "1m")
	v.SetDefault("collector.hot_window", "10m")
	v.SetDefault("collector.request_timeout", "10s")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{"console"})
	v.SetDefault("alerting.delivery_timeout", "15s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
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

// Validate performs sanity checks on the configuration values. The
// process must not start partially configured; window/threshold shape is
// checked again in depth when rules are built.
func (c *Config) Validate() error {
	if len(c.Detection.PumpWindows) == 0 && len(c.Detection.DumpWindows) == 0 {
		return fmt.Errorf("detection: at least one pump or dump window is required")
	}
	if c.Detection.AlertCooldown <= 0 {
		return fmt.Errorf("detection.alert_cooldown must be greater than zero")
	}
	if c.Filters.Volume.WindowMin <= 0 {
		return fmt.Errorf("filters.volume.window_min must be greater than zero")
	}
	if c.Filters.Volume.LookbackMin <= c.Filters.Volume.WindowMin {
		return fmt.Errorf("filters.volume.lookback_min must exceed window_min")
	}
	if c.Filters.Volume.MinSpikeRatio < 0 {
		return fmt.Errorf("filters.volume.min_spike_ratio cannot be negative")
	}
	if c.Filters.Spread.MaxSpreadPct <= 0 {
		return fmt.Errorf("filters.spread.max_spread_pct must be greater than zero")
	}
	if c.Filters.Spread.DepthLimit <= 0 {
		return fmt.Errorf("filters.spread.depth_limit must be greater than zero")
	}
	if c.Filters.OpenInterest.Window <= 0 {
		return fmt.Errorf("filters.open_interest.window must be greater than zero")
	}
	if c.Collector.Workers <= 0 {
		return fmt.Errorf("collector.workers must be greater than zero")
	}
	if c.Collector.QueueSize <= 0 {
		return fmt.Errorf("collector.queue_size must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
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
