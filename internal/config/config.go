package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Automation    AutomationConfig    `mapstructure:"automation"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	Mode            string        `mapstructure:"mode"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path           string          `mapstructure:"path"`
	MaxConnections int             `mapstructure:"max_connections"`
	BusyTimeout    time.Duration   `mapstructure:"busy_timeout"`
	Migration      MigrationConfig `mapstructure:"migration"`
}

type MigrationConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig controls the periodic rules and alerts passes
type SchedulerConfig struct {
	Enabled        bool       `mapstructure:"enabled"`
	RulesSchedule  string     `mapstructure:"rules_schedule"`
	AlertsSchedule string     `mapstructure:"alerts_schedule"`
	Workers        int        `mapstructure:"workers"`
	Timezone       string     `mapstructure:"timezone"`
	Lock           LockConfig `mapstructure:"lock"`
}

// LockConfig selects how concurrent passes are excluded
type LockConfig struct {
	Backend string        `mapstructure:"backend"` // local, redis
	TTL     time.Duration `mapstructure:"ttl"`
}

// AutomationConfig bounds every suspension point of rule evaluation
type AutomationConfig struct {
	ActionTimeout  time.Duration `mapstructure:"action_timeout"`
	MetricsTimeout time.Duration `mapstructure:"metrics_timeout"`
}

// GatewayConfig configures the Platform Gateway client
type GatewayConfig struct {
	BaseURL        string               `mapstructure:"base_url"`
	TokenURL       string               `mapstructure:"token_url"`
	ClientID       string               `mapstructure:"client_id"`
	ClientSecret   string               `mapstructure:"client_secret"`
	Scopes         []string             `mapstructure:"scopes"`
	RateLimit      float64              `mapstructure:"rate_limit"`
	Burst          int                  `mapstructure:"burst"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

type NotificationsConfig struct {
	SlackWebhookURL string        `mapstructure:"slack_webhook_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	NATS            NATSConfig    `mapstructure:"nats"`
}

// NATSConfig configures the email notification queue
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// Load reads config.yaml from ./configs or the working directory, layered
// under environment overrides
func Load() (*Config, error) {
	return LoadWith(viper.New(), "")
}

// LoadWith loads configuration through v. A non-empty path reads that file
// instead of searching the default locations.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.path", "DATABASE_PATH")
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("gateway.base_url", "GATEWAY_BASE_URL")
	v.BindEnv("gateway.client_secret", "GATEWAY_CLIENT_SECRET")
	v.BindEnv("notifications.slack_webhook_url", "SLACK_WEBHOOK_URL")
	v.BindEnv("notifications.nats.url", "NATS_URL")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.mode", "production")
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.path", "./data/automation.db")
	v.SetDefault("database.max_connections", 8)
	v.SetDefault("database.busy_timeout", "5s")
	v.SetDefault("database.migration.enabled", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.rules_schedule", "@every 5m")
	v.SetDefault("scheduler.alerts_schedule", "@every 15m")
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.lock.backend", "local")
	v.SetDefault("scheduler.lock.ttl", "10m")

	v.SetDefault("automation.action_timeout", "30s")
	v.SetDefault("automation.metrics_timeout", "15s")

	v.SetDefault("gateway.rate_limit", 10.0)
	v.SetDefault("gateway.burst", 20)
	v.SetDefault("gateway.timeout", "30s")
	v.SetDefault("gateway.circuit_breaker.enabled", true)
	v.SetDefault("gateway.circuit_breaker.max_failures", 5)
	v.SetDefault("gateway.circuit_breaker.reset_timeout", "1m")

	v.SetDefault("notifications.timeout", "10s")
	v.SetDefault("notifications.nats.subject", "notifications.email")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.prefix", "campaign_automation")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errors []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, "server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		errors = append(errors, "database.path is required")
	}
	if c.Scheduler.Workers <= 0 {
		errors = append(errors, "scheduler.workers must be positive")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("scheduler.timezone %q is invalid", c.Scheduler.Timezone))
	}
	switch c.Scheduler.Lock.Backend {
	case "local":
	case "redis":
		if c.Redis.Addr == "" {
			errors = append(errors, "redis.addr is required when scheduler.lock.backend is redis")
		}
	default:
		errors = append(errors, fmt.Sprintf("scheduler.lock.backend %q is not supported", c.Scheduler.Lock.Backend))
	}
	if c.Automation.ActionTimeout <= 0 {
		errors = append(errors, "automation.action_timeout must be positive")
	}
	if c.Automation.MetricsTimeout <= 0 {
		errors = append(errors, "automation.metrics_timeout must be positive")
	}
	if c.Notifications.NATS.Enabled && c.Notifications.NATS.URL == "" {
		errors = append(errors, "notifications.nats.url is required when nats is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}
	return nil
}

// Location returns the scheduler timezone, falling back to UTC
func (c SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Address returns host:port for the admin HTTP server
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
