package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"price-tracker/internal/logging"
)

// Bounds accepted for runtime-mutable alert settings and cleanup input.
const (
	MinThresholdPct = 0.1
	MaxThresholdPct = 100.0
	MinCooldown     = 60 * time.Second
	MaxCooldown     = 3600 * time.Second
	MinCleanupDays  = 1
	MaxCleanupDays  = 365
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Crypto    CryptoAPIConfig `mapstructure:"crypto_api"`
	Stocks    StockAPIConfig  `mapstructure:"stock_api"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Export    ExportConfig    `mapstructure:"export"`
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
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// TrackerConfig governs the tracked symbol set and polling cadence.
type TrackerConfig struct {
	CryptoSymbols []string      `mapstructure:"crypto_symbols"`
	StockSymbols  []string      `mapstructure:"stock_symbols"`
	Interval      time.Duration `mapstructure:"interval"`
	StockEvery    int           `mapstructure:"stock_every"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	RetentionDays int           `mapstructure:"retention_days"`
	MaxChangePct  float64       `mapstructure:"max_change_pct"`
	CSVLogPath    string        `mapstructure:"csv_log_path"`
}

// CryptoAPIConfig captures CoinGecko connectivity.
type CryptoAPIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// StockAPIConfig captures the stock quote service connectivity.
type StockAPIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Cooldown     time.Duration  `mapstructure:"cooldown"`
	Email        EmailConfig    `mapstructure:"email"`
	Webhook      WebhookConfig  `mapstructure:"webhook"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig describes the SMTP alert channel. The password is supplied via
// the PRICETRACKER_ALERTING_EMAIL_PASSWORD environment variable and never logged.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
	Password string `mapstructure:"password"`
}

// WebhookConfig describes the webhook alert channel.
type WebhookConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DashboardConfig sets the HTTP dashboard behaviour.
type DashboardConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ListenAddr          string        `mapstructure:"listen_addr"`
	RequestsPerMinute   int           `mapstructure:"requests_per_minute"`
	ChartDefaultHours   int           `mapstructure:"chart_default_hours"`
	ChartMaxHours       int           `mapstructure:"chart_max_hours"`
	CurrentPricesLimit  int           `mapstructure:"current_prices_limit"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICETRACKER")
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
	v.SetDefault("app.name", "pricetracker")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracker.crypto_symbols", []string{
		"bitcoin", "ethereum", "binancecoin", "cardano",
		"solana", "ripple", "polkadot", "dogecoin",
	})
	v.SetDefault("tracker.stock_symbols", []string{
		"AAPL", "GOOGL", "MSFT", "TSLA", "AMZN", "NVDA", "META", "NFLX",
	})
	v.SetDefault("tracker.interval", "60s")
	v.SetDefault("tracker.stock_every", 5)
	v.SetDefault("tracker.startup_delay", "0s")
	v.SetDefault("tracker.retention_days", 30)
	v.SetDefault("tracker.max_change_pct", 500.0)
	v.SetDefault("tracker.csv_log_path", "logs/price_logs.csv")

	v.SetDefault("crypto_api.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("crypto_api.requests_per_minute", 50)
	v.SetDefault("crypto_api.request_timeout", "15s")
	v.SetDefault("crypto_api.user_agent", "pricetracker/1.0")

	v.SetDefault("stock_api.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("stock_api.requests_per_minute", 30)
	v.SetDefault("stock_api.request_timeout", "15s")
	v.SetDefault("stock_api.user_agent", "pricetracker/1.0")

	v.SetDefault("alerting.threshold_pct", 5.0)
	v.SetDefault("alerting.cooldown", "5m")
	v.SetDefault("alerting.email.enabled", false)
	v.SetDefault("alerting.email.smtp_host", "smtp.gmail.com")
	v.SetDefault("alerting.email.smtp_port", 587)
	v.SetDefault("alerting.webhook.enabled", false)
	v.SetDefault("alerting.webhook.request_timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.listen_addr", "127.0.0.1:5000")
	v.SetDefault("dashboard.requests_per_minute", 60)
	v.SetDefault("dashboard.chart_default_hours", 24)
	v.SetDefault("dashboard.chart_max_hours", 168)
	v.SetDefault("dashboard.current_prices_limit", 50)
	v.SetDefault("dashboard.shutdown_grace_period", "5s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if c.Tracker.Interval <= 0 {
		return fmt.Errorf("tracker.interval must be greater than zero")
	}
	if c.Tracker.StockEvery <= 0 {
		return fmt.Errorf("tracker.stock_every must be greater than zero")
	}
	if len(c.Tracker.CryptoSymbols) == 0 && len(c.Tracker.StockSymbols) == 0 {
		return fmt.Errorf("tracker has no symbols configured")
	}
	if c.Tracker.RetentionDays <= 0 {
		return fmt.Errorf("tracker.retention_days must be greater than zero")
	}
	if c.Tracker.MaxChangePct <= 0 {
		return fmt.Errorf("tracker.max_change_pct must be greater than zero")
	}
	if c.Alerting.ThresholdPct < MinThresholdPct || c.Alerting.ThresholdPct > MaxThresholdPct {
		return fmt.Errorf("alerting.threshold_pct must be between %.1f and %.1f", MinThresholdPct, MaxThresholdPct)
	}
	if c.Alerting.Cooldown < MinCooldown || c.Alerting.Cooldown > MaxCooldown {
		return fmt.Errorf("alerting.cooldown must be between %s and %s", MinCooldown, MaxCooldown)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Dashboard.RequestsPerMinute <= 0 {
		return fmt.Errorf("dashboard.requests_per_minute must be greater than zero")
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.From == "" || c.Alerting.Email.To == "" {
			return fmt.Errorf("alerting.email.from and alerting.email.to must be configured")
		}
		if c.Alerting.Email.Password == "" {
			return fmt.Errorf("alerting.email.password must be provided via environment")
		}
	}
	if c.Alerting.Webhook.Enabled && c.Alerting.Webhook.URL == "" {
		return fmt.Errorf("alerting.webhook.url must be configured")
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
