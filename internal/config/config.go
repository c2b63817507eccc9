// Package config provides configuration management using viper.
// It supports loading from YAML files, a local .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingRequired is wrapped by Load when a required setting is absent.
var ErrMissingRequired = errors.New("missing required configuration")

// MaxBonusMagnitude bounds daily.min_bonus and daily.max_bonus so the bonus
// range always fits in an int64.
const MaxBonusMagnitude = 1_000_000_000

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
)

// Score scopes.
const (
	ScopeGroup  = "group"
	ScopeGlobal = "global"
)

// Config holds all application configuration.
type Config struct {
	Bot         BotConfig         `mapstructure:"bot"`
	Store       StoreConfig       `mapstructure:"store"`
	Scores      ScoresConfig      `mapstructure:"scores"`
	Daily       DailyConfig       `mapstructure:"daily"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Whitelist   WhitelistConfig   `mapstructure:"whitelist"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Log         LogConfig         `mapstructure:"log"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token          string        `mapstructure:"token"`
	AdminID        int64         `mapstructure:"admin_id"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
}

// StoreConfig holds the score store connection configuration.
// Driver may be left empty, in which case it is inferred from the URI scheme.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	URI             string        `mapstructure:"uri"`
	Database        string        `mapstructure:"database"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// ScoresConfig controls how score rows are keyed.
type ScoresConfig struct {
	Scope string `mapstructure:"scope"`
}

// DailyConfig holds daily bonus configuration.
type DailyConfig struct {
	MinBonus int64         `mapstructure:"min_bonus"`
	MaxBonus int64         `mapstructure:"max_bonus"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// LeaderboardConfig holds leaderboard rendering configuration.
type LeaderboardConfig struct {
	Size int `mapstructure:"size"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// RateLimitConfig holds per-user command rate limiting configuration.
// When RedisAddr is set the limit is shared through Redis.
type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Requests      int           `mapstructure:"requests"`
	Window        time.Duration `mapstructure:"window"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// JobsConfig holds cron specs for background jobs.
type JobsConfig struct {
	HealthCheck  string `mapstructure:"health_check"`
	LimiterPrune string `mapstructure:"limiter_prune"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ResolvedDriver returns the configured driver, or infers one from the URI scheme.
func (s *StoreConfig) ResolvedDriver() string {
	if s.Driver != "" {
		return strings.ToLower(s.Driver)
	}
	uri := strings.ToLower(s.URI)
	switch {
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		return DriverMongo
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(uri, "file:"), strings.HasSuffix(uri, ".db"), uri == ":memory:":
		return DriverSQLite
	}
	return ""
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory is loaded first if one exists.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DAILY_MIN_BONUS, RATE_LIMIT_REDIS_ADDR, WHITELIST_CHATS="-1001,-1002"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindEnv maps the short, deployment-facing variable names onto config keys.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("bot.token", "BOT_TOKEN")
	_ = v.BindEnv("bot.admin_id", "ADMIN_ID")
	_ = v.BindEnv("bot.poll_timeout", "BOT_POLL_TIMEOUT")
	_ = v.BindEnv("bot.handler_timeout", "BOT_HANDLER_TIMEOUT")
	_ = v.BindEnv("store.uri", "STORE_URI", "MONGO_URI", "DATABASE_URL")
	_ = v.BindEnv("store.driver", "STORE_DRIVER")
	_ = v.BindEnv("store.database", "STORE_DATABASE")
	_ = v.BindEnv("store.tls_insecure", "STORE_TLS_INSECURE")
	_ = v.BindEnv("scores.scope", "SCORES_SCOPE")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.poll_timeout", "10s")
	v.SetDefault("bot.handler_timeout", "10s")

	v.SetDefault("store.database", "points_db")
	v.SetDefault("store.pool_size", 20)
	v.SetDefault("store.connect_timeout", "10s")
	v.SetDefault("store.max_conn_lifetime", "1h")
	v.SetDefault("store.max_conn_idle_time", "30m")

	v.SetDefault("scores.scope", ScopeGroup)

	v.SetDefault("daily.min_bonus", 10)
	v.SetDefault("daily.max_bonus", 50)
	v.SetDefault("daily.cooldown", "24h")

	v.SetDefault("leaderboard.size", 10)

	// Keys without a default are invisible to AutomaticEnv.
	v.SetDefault("whitelist.chats", []int64{})

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 10)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.redis_addr", "")
	v.SetDefault("rate_limit.redis_password", "")
	v.SetDefault("rate_limit.redis_db", 0)

	v.SetDefault("jobs.health_check", "@every 1m")
	v.SetDefault("jobs.limiter_prune", "@every 5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	var missing []string
	if c.Bot.Token == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if c.Store.URI == "" {
		missing = append(missing, "STORE_URI/MONGO_URI")
	}
	if c.Bot.AdminID == 0 {
		missing = append(missing, "ADMIN_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}

	switch c.Store.ResolvedDriver() {
	case DriverPostgres, DriverMongo, DriverSQLite:
	default:
		return fmt.Errorf("cannot determine store driver for %q (set STORE_DRIVER)", c.Store.Driver)
	}

	switch c.Scores.Scope {
	case ScopeGroup, ScopeGlobal:
	default:
		return fmt.Errorf("invalid scores.scope %q", c.Scores.Scope)
	}

	if c.Daily.MinBonus < -MaxBonusMagnitude || c.Daily.MaxBonus > MaxBonusMagnitude {
		return fmt.Errorf("daily bonus bounds must be within ±%d", MaxBonusMagnitude)
	}
	if c.Daily.MinBonus > c.Daily.MaxBonus {
		return fmt.Errorf("daily.min_bonus (%d) exceeds daily.max_bonus (%d)", c.Daily.MinBonus, c.Daily.MaxBonus)
	}
	if c.Daily.Cooldown <= 0 {
		return fmt.Errorf("daily.cooldown must be positive")
	}
	if c.Leaderboard.Size <= 0 {
		return fmt.Errorf("leaderboard.size must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit.requests and rate_limit.window must be positive")
	}
	return nil
}

// IsPrivilegedUser checks if a user ID is the configured bot admin.
func (c *Config) IsPrivilegedUser(userID int64) bool {
	return c.Bot.AdminID != 0 && c.Bot.AdminID == userID
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
