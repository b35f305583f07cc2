package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Program  ProgramConfig  `mapstructure:"program"`
	Tiers    []TierConfig   `mapstructure:"tiers"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	RequireToken bool   `mapstructure:"require_token"`
	AdminKey     string `mapstructure:"admin_key"`
}

// BackendConfig points at the capacity backend, the source of truth for
// all counters. The token is forwarded as-is; tiergate never mints its own.
type BackendConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Token     string `mapstructure:"token"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type RefreshConfig struct {
	IntervalSeconds        int `mapstructure:"interval_seconds"`
	TierStatusTTLSeconds   int `mapstructure:"tier_status_ttl_seconds"`
	TierCapacityTTLSeconds int `mapstructure:"tier_capacity_ttl_seconds"`
	WarningDisplaySeconds  int `mapstructure:"warning_display_seconds"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	DSN                  string `mapstructure:"dsn"`
	WarningRetentionDays int    `mapstructure:"warning_retention_days"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ProgramConfig holds the global daily ceilings. MaxAffiliates must equal
// the sum of tier max_affiliates; the mismatch check runs once at startup.
type ProgramConfig struct {
	DailyClickLimit int `mapstructure:"daily_click_limit"`
	DailySaleLimit  int `mapstructure:"daily_sale_limit"`
	MaxAffiliates   int `mapstructure:"max_affiliates"`
}

type TierConfig struct {
	Name                 string `mapstructure:"name"`
	MaxAffiliates        int    `mapstructure:"max_affiliates"`
	ClickLimit           int    `mapstructure:"click_limit"`
	SalesToUpgrade       int    `mapstructure:"sales_to_upgrade"` // 0 = terminal tier
	CommissionMultiplier string `mapstructure:"commission_multiplier"`
	Priority             int    `mapstructure:"priority"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. TIERGATE_BACKEND_BASE_URL
	viper.SetEnvPrefix("tiergate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("auth.require_token", false)
	viper.SetDefault("auth.admin_key", "")
	viper.SetDefault("backend.timeout_ms", 10000)
	viper.SetDefault("refresh.interval_seconds", 60)
	viper.SetDefault("refresh.tier_status_ttl_seconds", 300)
	viper.SetDefault("refresh.tier_capacity_ttl_seconds", 60)
	viper.SetDefault("refresh.warning_display_seconds", 30)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("database.warning_retention_days", 30)
	viper.SetDefault("program.daily_click_limit", 5000)
	viper.SetDefault("program.daily_sale_limit", 500)
	viper.SetDefault("program.max_affiliates", 1000)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
