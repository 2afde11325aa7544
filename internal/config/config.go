// Package config defines all configuration for the trading control daemon.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via ITIRP_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	EventLog EventLogConfig `mapstructure:"event_log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP/WebSocket API server.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig holds the JWT signing secret and token lifetime.
// The secret is sensitive; set it via ITIRP_AUTH_JWT_SECRET.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	Issuer      string        `mapstructure:"issuer"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

// RiskConfig sets the initial pre-trade limits loaded at startup. Limits are
// notional USD amounts and can be replaced at runtime through the risk API.
type RiskConfig struct {
	MaxPositionSize  float64 `mapstructure:"max_position_size"`
	MaxDailyVolume   float64 `mapstructure:"max_daily_volume"`
	MaxNetExposure   float64 `mapstructure:"max_net_exposure"`
	MaxGrossExposure float64 `mapstructure:"max_gross_exposure"`
}

// ExecutorConfig selects and tunes the downstream executor adapter.
//
//   - Mode "simulated": in-process executor with configurable latency and
//     failure probability (for development and testing).
//   - Mode "http": REST client against a venue gateway at BaseURL.
type ExecutorConfig struct {
	Mode           string        `mapstructure:"mode"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	SimLatency     time.Duration `mapstructure:"sim_latency"`
	SimFailureRate float64       `mapstructure:"sim_failure_rate"`
}

// BreakerConfig tunes the execution circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	OpenDuration     time.Duration `mapstructure:"open_duration"`
}

// PipelineConfig tunes the asynchronous execution pipeline.
//
//   - Workers: number of concurrent execution goroutines.
//   - QueueSize: approved orders buffered before Submit blocks.
//   - MaxAttempts: executor attempts per order before giving up.
//   - AttemptTimeout: deadline applied to each individual executor call.
type PipelineConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// EventLogConfig bounds the in-memory audit journal.
type EventLogConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// StorageConfig enables the persistent event-store adapter. When Path is
// empty the journal is memory-only.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: ITIRP_AUTH_JWT_SECRET, ITIRP_EXECUTOR_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ITIRP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if secret := os.Getenv("ITIRP_AUTH_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if key := os.Getenv("ITIRP_EXECUTOR_API_KEY"); key != "" {
		cfg.Executor.APIKey = key
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.issuer", "itirp")
	v.SetDefault("auth.token_expiry", time.Hour)
	v.SetDefault("executor.mode", "simulated")
	v.SetDefault("executor.sim_latency", 50*time.Millisecond)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.open_duration", 60*time.Second)
	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.queue_size", 256)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.attempt_timeout", 5*time.Second)
	v.SetDefault("event_log.capacity", 100_000)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535]")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set ITIRP_AUTH_JWT_SECRET)")
	}
	if c.Auth.TokenExpiry <= 0 {
		return fmt.Errorf("auth.token_expiry must be > 0")
	}
	switch c.Executor.Mode {
	case "simulated":
	case "http":
		if c.Executor.BaseURL == "" {
			return fmt.Errorf("executor.base_url is required when executor.mode is http")
		}
	default:
		return fmt.Errorf("executor.mode must be one of: simulated, http")
	}
	if c.Executor.SimFailureRate < 0 || c.Executor.SimFailureRate > 1 {
		return fmt.Errorf("executor.sim_failure_rate must be in [0, 1]")
	}
	if c.Risk.MaxPositionSize <= 0 {
		return fmt.Errorf("risk.max_position_size must be > 0")
	}
	if c.Risk.MaxDailyVolume <= 0 {
		return fmt.Errorf("risk.max_daily_volume must be > 0")
	}
	if c.Risk.MaxNetExposure <= 0 {
		return fmt.Errorf("risk.max_net_exposure must be > 0")
	}
	if c.Risk.MaxGrossExposure <= 0 {
		return fmt.Errorf("risk.max_gross_exposure must be > 0")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be > 0")
	}
	if c.Breaker.OpenDuration <= 0 {
		return fmt.Errorf("breaker.open_duration must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.max_attempts must be > 0")
	}
	if c.Pipeline.AttemptTimeout <= 0 {
		return fmt.Errorf("pipeline.attempt_timeout must be > 0")
	}
	if c.EventLog.Capacity <= 0 {
		return fmt.Errorf("event_log.capacity must be > 0")
	}
	return nil
}
