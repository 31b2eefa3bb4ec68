package config

import (
	"log"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/stanstork/medequip-events/internal/alerting"
)

type Config struct {
	DatabaseURL   string              `mapstructure:"database_url"`
	ServerPort    string              `mapstructure:"server_port"`
	JWTSecret     string              `mapstructure:"jwt_secret"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Temporal      TemporalConfig      `mapstructure:"temporal"`
	Email         EmailConfig         `mapstructure:"email"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Alerts        AlertsConfig        `mapstructure:"alerts"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type EmailConfig struct {
	From     string `mapstructure:"from"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Enabled reports whether the mail channel can be used.
func (c EmailConfig) Enabled() bool {
	return strings.TrimSpace(c.SMTPHost) != "" && strings.TrimSpace(c.From) != ""
}

type PipelineConfig struct {
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
	MaxAttempts       int32         `mapstructure:"max_attempts"`
	IdempotencyTTL    time.Duration `mapstructure:"idempotency_ttl"`
}

type NotificationsConfig struct {
	// RateCaps maps a priority tier (critical, high, normal, other) to the
	// hourly cap per category.
	RateCaps map[string]int64 `mapstructure:"rate_caps"`
	// AlwaysEmail overrides the always-email actions of a category.
	AlwaysEmail map[string][]string `mapstructure:"always_email"`
}

type AlertsConfig struct {
	Cooldown   time.Duration                 `mapstructure:"cooldown"`
	AlertTTL   time.Duration                 `mapstructure:"alert_ttl"`
	Thresholds map[string]alerting.Threshold `mapstructure:"thresholds"`
}

type MetricsConfig struct {
	TrendWindowDays       int                `mapstructure:"trend_window_days"`
	TrendMinPoints        int                `mapstructure:"trend_min_points"`
	TrendDefaultThreshold float64            `mapstructure:"trend_default_threshold"`
	TrendThresholds       map[string]float64 `mapstructure:"trend_thresholds"`
}

type SchedulerConfig struct {
	SLACacheTTL time.Duration `mapstructure:"sla_cache_ttl"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	config, err := LoadFrom(v)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	return config
}

// LoadFrom unmarshals an already populated viper instance, applies
// environment overrides (MEDEQUIP_ prefix) and fills defaults.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("medequip")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"database_url", "server_port", "jwt_secret", "redis.addr", "redis.password", "temporal.host_port", "email.password"} {
		_ = v.BindEnv(key)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}

	if config.JWTSecret == "" {
		return nil, errors.New("JWT secret must be set in the config file")
	}

	if config.Redis.Addr == "" {
		config.Redis.Addr = "localhost:6379"
	}
	if config.Temporal.HostPort == "" {
		config.Temporal.HostPort = "localhost:7233"
	}
	if config.Temporal.Namespace == "" {
		config.Temporal.Namespace = "default"
	}
	if config.Temporal.TaskQueue == "" {
		config.Temporal.TaskQueue = "MEDEQUIP_EVENTS"
	}
	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}

	if config.Pipeline.ProcessingTimeout <= 0 {
		config.Pipeline.ProcessingTimeout = 90 * time.Second
	}
	if config.Pipeline.MaxAttempts <= 0 {
		config.Pipeline.MaxAttempts = 3
	}
	if config.Pipeline.IdempotencyTTL <= 0 {
		config.Pipeline.IdempotencyTTL = 24 * time.Hour
	}

	if config.Alerts.Cooldown <= 0 {
		config.Alerts.Cooldown = time.Hour
	}
	if config.Alerts.AlertTTL <= 0 {
		config.Alerts.AlertTTL = 24 * time.Hour
	}
	thresholds := alerting.DefaultThresholds()
	for key, t := range config.Alerts.Thresholds {
		thresholds[key] = t
	}
	config.Alerts.Thresholds = thresholds

	if config.Metrics.TrendWindowDays <= 0 {
		config.Metrics.TrendWindowDays = 7
	}
	if config.Metrics.TrendMinPoints <= 0 {
		config.Metrics.TrendMinPoints = 3
	}
	if config.Metrics.TrendDefaultThreshold <= 0 {
		config.Metrics.TrendDefaultThreshold = 1.5
	}

	if config.Scheduler.SLACacheTTL <= 0 {
		config.Scheduler.SLACacheTTL = 7 * 24 * time.Hour
	}

	return &config, nil
}
